package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remnashop/internal/db"
)

func plategaRow() *db.PaymentGateway {
	return gatewayRow(db.GatewayPlatega, db.GatewaySettings{
		Platega: &db.PlategaSettings{MerchantID: "merchant", APIKey: "secret", PaymentMethod: 2},
	})
}

func plategaHeader(merchant, secret string) http.Header {
	h := http.Header{}
	h.Set("X-MerchantId", merchant)
	h.Set("X-Secret", secret)
	return h
}

func TestPlategaWebhook(t *testing.T) {
	gw, err := New(plategaRow(), Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	paymentID := uuid.New()
	body := func(status string) []byte {
		return []byte(`{"id":"` + uuid.NewString() + `","status":"` + status + `","payload":"` + paymentID.String() + `"}`)
	}

	tests := []struct {
		status string
		want   db.TransactionStatus
	}{
		{"CONFIRMED", db.TransactionCompleted},
		{"CANCELED", db.TransactionCanceled},
		{"CHARGEBACK", db.TransactionRefunded},
	}
	for _, tt := range tests {
		id, status, err := gw.HandleWebhook(context.Background(), WebhookRequest{
			Body:   body(tt.status),
			Header: plategaHeader("merchant", "secret"),
		})
		if err != nil || id != paymentID || status != tt.want {
			t.Errorf("%s: got %s %s %v", tt.status, id, status, err)
		}
	}

	_, _, err = gw.HandleWebhook(context.Background(), WebhookRequest{
		Body:   body("PENDING"),
		Header: plategaHeader("merchant", "secret"),
	})
	var unsupported *UnsupportedStatusError
	if !errors.As(err, &unsupported) || unsupported.Status != "PENDING" {
		t.Errorf("PENDING: got %v", err)
	}
}

func TestPlategaWebhookCredentials(t *testing.T) {
	gw, _ := New(plategaRow(), Options{})
	body := []byte(`{"status":"CONFIRMED","payload":"` + uuid.NewString() + `"}`)

	tests := []struct {
		desc   string
		header http.Header
	}{
		{"wrong secret", plategaHeader("merchant", "guess")},
		{"wrong merchant", plategaHeader("other", "secret")},
		{"no headers", http.Header{}},
	}
	for _, tt := range tests {
		_, _, err := gw.HandleWebhook(context.Background(), WebhookRequest{Body: body, Header: tt.header})
		if !errors.Is(err, ErrVerificationFailed) {
			t.Errorf("%s: got %v", tt.desc, err)
		}
	}

	unconfigured, _ := New(gatewayRow(db.GatewayPlatega, db.DefaultSettings(db.GatewayPlatega)), Options{})
	_, _, err := unconfigured.HandleWebhook(context.Background(), WebhookRequest{Body: body, Header: plategaHeader("", "")})
	if !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("empty credentials: got %v", err)
	}
}

func TestPlategaWebhookMissingPayload(t *testing.T) {
	gw, _ := New(plategaRow(), Options{})
	_, _, err := gw.HandleWebhook(context.Background(), WebhookRequest{
		Body:   []byte(`{"id":"x","status":"CONFIRMED"}`),
		Header: plategaHeader("merchant", "secret"),
	})
	var missing *MissingFieldError
	if !errors.As(err, &missing) || missing.Field != "payload" {
		t.Errorf("got %v", err)
	}
}

func TestPlategaCreatePayment(t *testing.T) {
	var got plategaPaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/process" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-MerchantId") != "merchant" || r.Header.Get("X-Secret") != "secret" {
			t.Errorf("credentials not sent: %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"transactionId":"` + uuid.NewString() + `","redirect":"https://pay.platega.io/x"}`))
	}))
	defer srv.Close()

	gw, _ := New(plategaRow(), Options{HTTPClient: srv.Client(), BaseURL: srv.URL})
	res, err := gw.CreatePayment(context.Background(), decimal.RequireFromString("150.50"), "Basic, 30 days")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.URL != "https://pay.platega.io/x" {
		t.Errorf("url: got %q", res.URL)
	}
	if got.Payload != res.ID.String() {
		t.Errorf("payload %q does not carry payment id %s", got.Payload, res.ID)
	}
	if got.PaymentMethod != 2 || got.PaymentDetails.Amount != 150.5 || got.PaymentDetails.Currency != "RUB" {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestPlategaCreatePaymentMissingRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactionId":"abc"}`))
	}))
	defer srv.Close()

	gw, _ := New(plategaRow(), Options{HTTPClient: srv.Client(), BaseURL: srv.URL})
	_, err := gw.CreatePayment(context.Background(), decimal.NewFromInt(10), "x")
	var missing *MissingFieldError
	if !errors.As(err, &missing) || missing.Field != "redirect" {
		t.Errorf("got %v", err)
	}
}
