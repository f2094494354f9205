package gateways

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"remnashop/internal/db"
)

var (
	ErrVerificationFailed = errors.New("webhook verification failed")
	ErrWebhookUnsupported = errors.New("gateway does not accept webhooks")
)

// VerificationError reports a webhook whose signature or credentials did
// not match. It matches ErrVerificationFailed.
type VerificationError struct {
	Gateway db.PaymentGatewayType
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s webhook verification failed", e.Gateway)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}

type UnsupportedStatusError struct {
	Gateway db.PaymentGatewayType
	Status  string
}

func (e *UnsupportedStatusError) Error() string {
	return fmt.Sprintf("unsupported %s status %q", e.Gateway, e.Status)
}

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %q is missing", e.Field)
}

// APIError is a non-2xx answer from a provider API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api returned %d: %s", e.StatusCode, e.Body)
}

type PaymentResult struct {
	ID  uuid.UUID
	URL string
}

// WebhookRequest is the buffered inbound callback.
type WebhookRequest struct {
	Body   []byte
	Header http.Header
}

// Gateway is one configured payment provider.
type Gateway interface {
	Type() db.PaymentGatewayType
	Currency() db.Currency
	CreatePayment(ctx context.Context, amount decimal.Decimal, details string) (PaymentResult, error)
	// HandleWebhook verifies the callback and returns the payment it refers to
	// with its provider-neutral status.
	HandleWebhook(ctx context.Context, req WebhookRequest) (uuid.UUID, db.TransactionStatus, error)
}

type Options struct {
	HTTPClient  *http.Client
	BotUsername string
	Bot         BotRequester
	// BaseURL replaces the provider API endpoint.
	BaseURL string
	Log     *zap.Logger
}

type base struct {
	kind     db.PaymentGatewayType
	currency db.Currency
	client   *http.Client
	baseURL  string
	botName  string
	log      *zap.Logger
}

func newBase(cfg *db.PaymentGateway, opts Options, defaultURL string) base {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return base{
		kind:     cfg.Type,
		currency: cfg.Currency,
		client:   client,
		baseURL:  baseURL,
		botName:  opts.BotUsername,
		log:      log.With(zap.String("gateway_type", string(cfg.Type))),
	}
}

func (b base) Type() db.PaymentGatewayType { return b.kind }

func (b base) Currency() db.Currency { return b.currency }

func (b base) redirectURL() string {
	if b.botName == "" {
		return ""
	}
	return "https://t.me/" + b.botName
}

func (b base) verificationFailed() error {
	b.log.Warn("webhook verification failed")
	return &VerificationError{Gateway: b.kind}
}

// postJSON sends payload and decodes a 2xx answer into out.
func (b base) postJSON(ctx context.Context, path string, header http.Header, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", b.kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s response: %w", b.kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.log.Error("payment api error", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s response: %w", b.kind, err)
	}
	return nil
}

func parsePaymentID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, &MissingFieldError{Field: field}
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("field %q: %w", field, err)
	}
	return id, nil
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
