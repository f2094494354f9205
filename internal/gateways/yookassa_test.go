package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remnashop/internal/db"
)

func sign256(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func TestCheckYooKassaSignature(t *testing.T) {
	secret := "testsecret"
	body := []byte(`{"test":"data"}`)
	calc := sign256(secret, body)

	tests := []struct {
		desc        string
		authHeader  string
		yoomoneyHdr string
		want        bool
	}{
		{"valid Authorization", "HMAC " + calc, "", true},
		{"valid Authorization SHA256", "HMAC-SHA256 " + calc, "", true},
		{"valid Yoomoney header", "", calc, true},
		{"wrong signature", "HMAC wrong", "", false},
		{"wrong yoomoney", "", "wrong", false},
		{"both empty", "", "", false},
		{"basic auth is not a signature", "Basic " + calc, "", false},
	}

	for _, tt := range tests {
		if got := checkYooKassaSignature(secret, body, tt.authHeader, tt.yoomoneyHdr); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.desc, got, tt.want)
		}
	}
	if checkYooKassaSignature("", body, "", sign256("", body)) {
		t.Error("empty secret must never verify")
	}
}

func TestYooKassaWebhook(t *testing.T) {
	const secret = "live_key"
	gw, err := New(gatewayRow(db.GatewayYooKassa, db.GatewaySettings{
		YooKassa: &db.YooKassaSettings{ShopID: "1", APIKey: secret},
	}), Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	paymentID := uuid.New()

	event := func(status string) []byte {
		return []byte(`{"event":"payment.` + status + `","object":{"id":"2c","status":"` + status +
			`","metadata":{"payment_id":"` + paymentID.String() + `"}}}`)
	}
	tests := []struct {
		desc    string
		body    []byte
		sig     string
		want    db.TransactionStatus
		wantErr func(error) bool
	}{
		{"succeeded", event("succeeded"), "", db.TransactionCompleted, nil},
		{"canceled", event("canceled"), "", db.TransactionCanceled, nil},
		{"waiting", event("waiting_for_capture"), "", "", func(err error) bool {
			var target *UnsupportedStatusError
			return errors.As(err, &target) && target.Status == "waiting_for_capture"
		}},
		{"bad signature", event("succeeded"), "HMAC deadbeef", "", func(err error) bool {
			return errors.Is(err, ErrVerificationFailed)
		}},
		{"no payment id", []byte(`{"object":{"status":"succeeded"}}`), "", "", func(err error) bool {
			var target *MissingFieldError
			return errors.As(err, &target)
		}},
	}
	for _, tt := range tests {
		sig := tt.sig
		if sig == "" {
			sig = "HMAC " + sign256(secret, tt.body)
		}
		header := http.Header{}
		header.Set("Authorization", sig)
		id, status, err := gw.HandleWebhook(context.Background(), WebhookRequest{Body: tt.body, Header: header})
		if tt.wantErr != nil {
			if !tt.wantErr(err) {
				t.Errorf("%s: unexpected error %v", tt.desc, err)
			}
			continue
		}
		if err != nil || id != paymentID || status != tt.want {
			t.Errorf("%s: got %s %s %v", tt.desc, id, status, err)
		}
	}
}

func TestYooKassaCreatePayment(t *testing.T) {
	var got yookassaPaymentRequest
	var idempotenceKey, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		idempotenceKey = r.Header.Get("Idempotence-Key")
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"2c","status":"pending","confirmation":{"confirmation_url":"https://yoomoney.ru/checkout/2c"}}`))
	}))
	defer srv.Close()

	gw, err := New(gatewayRow(db.GatewayYooKassa, db.GatewaySettings{
		YooKassa: &db.YooKassaSettings{ShopID: "shop", APIKey: "key"},
	}), Options{HTTPClient: srv.Client(), BaseURL: srv.URL, BotUsername: "remnashop_bot"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := gw.CreatePayment(context.Background(), decimal.RequireFromString("199.9"), "Basic, 30 days")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.URL != "https://yoomoney.ru/checkout/2c" {
		t.Errorf("url: got %q", res.URL)
	}
	if idempotenceKey != res.ID.String() || got.Metadata["payment_id"] != res.ID.String() {
		t.Errorf("payment id not propagated: key %q metadata %v", idempotenceKey, got.Metadata)
	}
	if got.Amount.Value != "199.90" || got.Amount.Currency != "RUB" {
		t.Errorf("amount: %+v", got.Amount)
	}
	if got.Confirmation["return_url"] != "https://t.me/remnashop_bot" {
		t.Errorf("return url: %v", got.Confirmation)
	}
	if auth != basicAuth("shop", "key") {
		t.Errorf("auth: got %q", auth)
	}
}

func TestYooKassaCreatePaymentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	gw, _ := New(gatewayRow(db.GatewayYooKassa, db.DefaultSettings(db.GatewayYooKassa)),
		Options{HTTPClient: srv.Client(), BaseURL: srv.URL})
	_, err := gw.CreatePayment(context.Background(), decimal.NewFromInt(1), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("got %v", err)
	}
}
