package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remnashop/internal/db"
)

const yoomoneyQuickpay = "https://yoomoney.ru/quickpay/confirm"

// YooMoney pays through a quickpay form; no API call is made on creation.
type YooMoney struct {
	base
	settings db.YooMoneySettings
}

func newYooMoney(cfg *db.PaymentGateway, settings db.YooMoneySettings, opts Options) *YooMoney {
	return &YooMoney{base: newBase(cfg, opts, yoomoneyQuickpay), settings: settings}
}

func (g *YooMoney) CreatePayment(_ context.Context, amount decimal.Decimal, details string) (PaymentResult, error) {
	paymentID := uuid.New()
	q := url.Values{}
	q.Set("receiver", g.settings.WalletID)
	q.Set("quickpay-form", "button")
	q.Set("paymentType", "AC")
	q.Set("sum", amount.StringFixed(2))
	q.Set("label", paymentID.String())
	q.Set("targets", details)
	if u := g.redirectURL(); u != "" {
		q.Set("successURL", u)
	}
	return PaymentResult{ID: paymentID, URL: g.baseURL + "?" + q.Encode()}, nil
}

// yoomoneySignedFields is the order in which the notification hash is built;
// the secret goes right before the label.
var yoomoneySignedFields = []string{
	"notification_type", "operation_id", "amount", "currency", "datetime", "sender", "codepro",
}

func (g *YooMoney) HandleWebhook(_ context.Context, req WebhookRequest) (uuid.UUID, db.TransactionStatus, error) {
	g.log.Debug("webhook received")
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return uuid.Nil, "", err
	}
	if g.settings.NotificationSecret == "" {
		return uuid.Nil, "", g.verificationFailed()
	}

	parts := make([]string, 0, len(yoomoneySignedFields)+2)
	for _, f := range yoomoneySignedFields {
		parts = append(parts, form.Get(f))
	}
	parts = append(parts, g.settings.NotificationSecret, form.Get("label"))
	sum := sha1.Sum([]byte(strings.Join(parts, "&")))
	expected := hex.EncodeToString(sum[:])
	if !hmac.Equal([]byte(strings.ToLower(form.Get("sha1_hash"))), []byte(expected)) {
		return uuid.Nil, "", g.verificationFailed()
	}

	paymentID, err := parsePaymentID("label", form.Get("label"))
	if err != nil {
		return uuid.Nil, "", err
	}
	if form.Get("codepro") == "true" {
		return uuid.Nil, "", &UnsupportedStatusError{Gateway: g.kind, Status: "codepro"}
	}
	if form.Get("unaccepted") == "true" {
		return uuid.Nil, "", &UnsupportedStatusError{Gateway: g.kind, Status: "unaccepted"}
	}
	return paymentID, db.TransactionCompleted, nil
}
