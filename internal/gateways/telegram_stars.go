package gateways

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remnashop/internal/db"
)

// BotRequester is the raw Bot API call used to create invoice links.
type BotRequester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// TelegramStars issues invoices in XTR. Payments come back as bot updates,
// so there is no webhook.
type TelegramStars struct {
	base
	bot BotRequester
}

func newTelegramStars(cfg *db.PaymentGateway, opts Options) *TelegramStars {
	b := newBase(cfg, opts, "")
	b.currency = db.CurrencyXTR
	return &TelegramStars{base: b, bot: opts.Bot}
}

type starsPrice struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

func (g *TelegramStars) CreatePayment(ctx context.Context, amount decimal.Decimal, details string) (PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return PaymentResult{}, err
	}
	paymentID := uuid.New()
	prices, err := json.Marshal([]starsPrice{{Label: details, Amount: amount.Ceil().IntPart()}})
	if err != nil {
		return PaymentResult{}, err
	}
	params := tgbotapi.Params{
		"title":       details,
		"description": details,
		"payload":     paymentID.String(),
		"currency":    string(db.CurrencyXTR),
		"prices":      string(prices),
	}
	resp, err := g.bot.MakeRequest("createInvoiceLink", params)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("create invoice link: %w", err)
	}
	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return PaymentResult{}, fmt.Errorf("create invoice link: %w", err)
	}
	return PaymentResult{ID: paymentID, URL: link}, nil
}

func (g *TelegramStars) HandleWebhook(context.Context, WebhookRequest) (uuid.UUID, db.TransactionStatus, error) {
	return uuid.Nil, "", ErrWebhookUnsupported
}
