package gateways

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"remnashop/internal/db"
)

const plategaAPI = "https://app.platega.io"

// Platega does not hand back a correlation id we control, so the payment id
// is generated here and travels through the provider in the payload field.
type Platega struct {
	base
	settings db.PlategaSettings
}

func newPlatega(cfg *db.PaymentGateway, settings db.PlategaSettings, opts Options) *Platega {
	return &Platega{base: newBase(cfg, opts, plategaAPI), settings: settings}
}

type plategaPaymentRequest struct {
	PaymentMethod  int `json:"paymentMethod"`
	PaymentDetails struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"paymentDetails"`
	Description string `json:"description"`
	Return      string `json:"return,omitempty"`
	FailedURL   string `json:"failedUrl,omitempty"`
	Payload     string `json:"payload"`
}

type plategaPaymentResponse struct {
	TransactionID string `json:"transactionId"`
	Redirect      string `json:"redirect"`
}

func (g *Platega) CreatePayment(ctx context.Context, amount decimal.Decimal, details string) (PaymentResult, error) {
	paymentID := uuid.New()
	body := plategaPaymentRequest{
		PaymentMethod: g.settings.PaymentMethod,
		Description:   details,
		Return:        g.redirectURL(),
		FailedURL:     g.redirectURL(),
		Payload:       paymentID.String(),
	}
	body.PaymentDetails.Amount = amount.InexactFloat64()
	body.PaymentDetails.Currency = string(g.currency)
	payload, err := json.Marshal(body)
	if err != nil {
		return PaymentResult{}, err
	}

	var pr plategaPaymentResponse
	if err := g.postJSON(ctx, "/transaction/process", g.credentials(), payload, &pr); err != nil {
		return PaymentResult{}, err
	}
	if pr.TransactionID == "" {
		return PaymentResult{}, &MissingFieldError{Field: "transactionId"}
	}
	if pr.Redirect == "" {
		return PaymentResult{}, &MissingFieldError{Field: "redirect"}
	}
	g.log.Info("payment created", zap.String("payment_id", paymentID.String()), zap.String("provider_id", pr.TransactionID))
	return PaymentResult{ID: paymentID, URL: pr.Redirect}, nil
}

type plategaCallback struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Payload string `json:"payload"`
}

func (g *Platega) HandleWebhook(_ context.Context, req WebhookRequest) (uuid.UUID, db.TransactionStatus, error) {
	g.log.Debug("webhook received")
	if !g.verify(req.Header) {
		return uuid.Nil, "", g.verificationFailed()
	}

	var cb plategaCallback
	if err := json.Unmarshal(req.Body, &cb); err != nil {
		return uuid.Nil, "", err
	}
	paymentID, err := parsePaymentID("payload", cb.Payload)
	if err != nil {
		return uuid.Nil, "", err
	}

	switch cb.Status {
	case "CONFIRMED":
		return paymentID, db.TransactionCompleted, nil
	case "CANCELED":
		return paymentID, db.TransactionCanceled, nil
	case "CHARGEBACK":
		return paymentID, db.TransactionRefunded, nil
	}
	return uuid.Nil, "", &UnsupportedStatusError{Gateway: g.kind, Status: cb.Status}
}

// verify compares both credential headers in constant time. Unconfigured
// credentials never match.
func (g *Platega) verify(header http.Header) bool {
	if g.settings.MerchantID == "" || g.settings.APIKey == "" {
		return false
	}
	merchantOK := hmac.Equal([]byte(header.Get("X-MerchantId")), []byte(g.settings.MerchantID))
	secretOK := hmac.Equal([]byte(header.Get("X-Secret")), []byte(g.settings.APIKey))
	return merchantOK && secretOK
}

func (g *Platega) credentials() http.Header {
	header := http.Header{}
	header.Set("X-MerchantId", g.settings.MerchantID)
	header.Set("X-Secret", g.settings.APIKey)
	return header
}
