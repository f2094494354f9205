package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"remnashop/internal/db"
)

const (
	cryptomusAPI = "https://api.cryptomus.com"
	heleketAPI   = "https://api.heleket.com"
)

// Signed serves Cryptomus and Heleket, which share one API shape: requests
// and callbacks carry md5(base64(body) + api key).
type Signed struct {
	base
	merchantID string
	apiKey     string
}

func newSigned(cfg *db.PaymentGateway, merchantID, apiKey, defaultURL string, opts Options) *Signed {
	return &Signed{base: newBase(cfg, opts, defaultURL), merchantID: merchantID, apiKey: apiKey}
}

type signedPaymentRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	OrderID     string `json:"order_id"`
	URLReturn   string `json:"url_return,omitempty"`
	URLSuccess  string `json:"url_success,omitempty"`
	Description string `json:"additional_data,omitempty"`
}

type signedPaymentResponse struct {
	State  int `json:"state"`
	Result struct {
		UUID string `json:"uuid"`
		URL  string `json:"url"`
	} `json:"result"`
}

func (g *Signed) CreatePayment(ctx context.Context, amount decimal.Decimal, details string) (PaymentResult, error) {
	paymentID := uuid.New()
	payload, err := json.Marshal(signedPaymentRequest{
		Amount:      amount.StringFixed(2),
		Currency:    string(g.currency),
		OrderID:     paymentID.String(),
		URLReturn:   g.redirectURL(),
		URLSuccess:  g.redirectURL(),
		Description: details,
	})
	if err != nil {
		return PaymentResult{}, err
	}

	header := http.Header{}
	header.Set("merchant", g.merchantID)
	header.Set("sign", g.sign(payload))

	var pr signedPaymentResponse
	if err := g.postJSON(ctx, "/v1/payment", header, payload, &pr); err != nil {
		return PaymentResult{}, err
	}
	if pr.Result.URL == "" {
		return PaymentResult{}, &MissingFieldError{Field: "result.url"}
	}
	return PaymentResult{ID: paymentID, URL: pr.Result.URL}, nil
}

type signedCallback struct {
	Sign          string `json:"sign"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func (g *Signed) HandleWebhook(_ context.Context, req WebhookRequest) (uuid.UUID, db.TransactionStatus, error) {
	g.log.Debug("webhook received")
	var cb signedCallback
	if err := json.Unmarshal(req.Body, &cb); err != nil {
		return uuid.Nil, "", err
	}
	if cb.Sign == "" || g.apiKey == "" {
		return uuid.Nil, "", g.verificationFailed()
	}
	expected := g.sign(stripSign(req.Body))
	if !hmac.Equal([]byte(strings.ToLower(cb.Sign)), []byte(expected)) {
		return uuid.Nil, "", g.verificationFailed()
	}

	paymentID, err := parsePaymentID("order_id", cb.OrderID)
	if err != nil {
		return uuid.Nil, "", err
	}
	status := cb.Status
	if status == "" {
		status = cb.PaymentStatus
	}
	switch status {
	case "paid", "paid_over":
		return paymentID, db.TransactionCompleted, nil
	case "cancel", "fail", "system_fail":
		return paymentID, db.TransactionCanceled, nil
	case "refund_paid":
		return paymentID, db.TransactionRefunded, nil
	}
	g.log.Warn("unsupported payment status", zap.String("status", status))
	return uuid.Nil, "", &UnsupportedStatusError{Gateway: g.kind, Status: status}
}

func (g *Signed) sign(body []byte) string {
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(body) + g.apiKey))
	return hex.EncodeToString(sum[:])
}

var (
	signTrailing = regexp.MustCompile(`,\s*"sign"\s*:\s*"[^"]*"`)
	signLeading  = regexp.MustCompile(`"sign"\s*:\s*"[^"]*"\s*,?`)
)

// stripSign removes the sign member from the raw callback body, keeping the
// remaining bytes exactly as the provider serialized them.
func stripSign(body []byte) []byte {
	if signTrailing.Match(body) {
		return signTrailing.ReplaceAll(body, nil)
	}
	return signLeading.ReplaceAll(body, nil)
}
