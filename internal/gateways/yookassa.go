package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"remnashop/internal/db"
)

const yookassaAPI = "https://api.yookassa.ru/v3"

type YooKassa struct {
	base
	settings db.YooKassaSettings
}

func newYooKassa(cfg *db.PaymentGateway, settings db.YooKassaSettings, opts Options) *YooKassa {
	return &YooKassa{base: newBase(cfg, opts, yookassaAPI), settings: settings}
}

type yookassaAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yookassaPaymentRequest struct {
	Amount       yookassaAmount    `json:"amount"`
	Confirmation map[string]string `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

type yookassaPaymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

func (g *YooKassa) CreatePayment(ctx context.Context, amount decimal.Decimal, details string) (PaymentResult, error) {
	paymentID := uuid.New()
	confirmation := map[string]string{"type": "redirect"}
	if u := g.redirectURL(); u != "" {
		confirmation["return_url"] = u
	}
	payload, err := json.Marshal(yookassaPaymentRequest{
		Amount:       yookassaAmount{Value: amount.StringFixed(2), Currency: string(g.currency)},
		Confirmation: confirmation,
		Capture:      true,
		Description:  details,
		Metadata:     map[string]string{"payment_id": paymentID.String()},
	})
	if err != nil {
		return PaymentResult{}, err
	}

	header := http.Header{}
	header.Set("Idempotence-Key", paymentID.String())
	header.Set("Authorization", basicAuth(g.settings.ShopID, g.settings.APIKey))

	var pr yookassaPaymentResponse
	if err := g.postJSON(ctx, "/payments", header, payload, &pr); err != nil {
		return PaymentResult{}, err
	}
	if pr.Confirmation.ConfirmationURL == "" {
		return PaymentResult{}, &MissingFieldError{Field: "confirmation.confirmation_url"}
	}
	return PaymentResult{ID: paymentID, URL: pr.Confirmation.ConfirmationURL}, nil
}

type yookassaEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

func (g *YooKassa) HandleWebhook(_ context.Context, req WebhookRequest) (uuid.UUID, db.TransactionStatus, error) {
	g.log.Debug("webhook received")
	if !checkYooKassaSignature(g.settings.APIKey, req.Body, req.Header.Get("Authorization"), req.Header.Get("Content-Yoomoney-Signature")) {
		return uuid.Nil, "", g.verificationFailed()
	}

	var event yookassaEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return uuid.Nil, "", err
	}
	paymentID, err := parsePaymentID("object.metadata.payment_id", event.Object.Metadata["payment_id"])
	if err != nil {
		return uuid.Nil, "", err
	}

	switch event.Object.Status {
	case "succeeded":
		return paymentID, db.TransactionCompleted, nil
	case "canceled":
		return paymentID, db.TransactionCanceled, nil
	}
	g.log.Warn("unsupported payment status", zap.String("status", event.Object.Status), zap.String("provider_id", event.Object.ID))
	return uuid.Nil, "", &UnsupportedStatusError{Gateway: g.kind, Status: event.Object.Status}
}

// checkYooKassaSignature verifies the HMAC-SHA256 of the body passed either
// in Authorization or in Content-Yoomoney-Signature.
func checkYooKassaSignature(secret string, body []byte, authHeader, yoomoneyHeader string) bool {
	if secret == "" {
		return false
	}
	var signatures []string
	if strings.HasPrefix(authHeader, "HMAC ") || strings.HasPrefix(authHeader, "HMAC-SHA256 ") {
		parts := strings.SplitN(authHeader, " ", 2)
		signatures = append(signatures, strings.TrimSpace(parts[1]))
	}
	if yoomoneyHeader != "" {
		signatures = append(signatures, yoomoneyHeader)
	}
	if len(signatures) == 0 {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	calc := hex.EncodeToString(h.Sum(nil))
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(calc)) {
			return true
		}
	}
	return false
}
