package gateways

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remnashop/internal/db"
)

func md5Sign(body []byte, key string) string {
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(body) + key))
	return hex.EncodeToString(sum[:])
}

func TestStripSign(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1,"sign":"abc"}`, `{"a":1}`},
		{`{"sign":"abc","a":1}`, `{"a":1}`},
		{`{"a":1, "sign" : "abc", "b":2}`, `{"a":1, "b":2}`},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := string(stripSign([]byte(tt.in))); got != tt.want {
			t.Errorf("stripSign(%s): got %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSignedWebhook(t *testing.T) {
	for _, gt := range []db.PaymentGatewayType{db.GatewayCryptomus, db.GatewayHeleket} {
		settings := db.GatewaySettings{}
		if gt == db.GatewayCryptomus {
			settings.Cryptomus = &db.CryptomusSettings{MerchantID: "m", APIKey: "key"}
		} else {
			settings.Heleket = &db.HeleketSettings{MerchantID: "m", APIKey: "key"}
		}
		gw, err := New(gatewayRow(gt, settings), Options{})
		if err != nil {
			t.Fatalf("%s: new: %v", gt, err)
		}
		paymentID := uuid.New()

		tests := []struct {
			status string
			want   db.TransactionStatus
		}{
			{"paid", db.TransactionCompleted},
			{"paid_over", db.TransactionCompleted},
			{"cancel", db.TransactionCanceled},
			{"system_fail", db.TransactionCanceled},
			{"refund_paid", db.TransactionRefunded},
		}
		for _, tt := range tests {
			unsigned := `{"type":"payment","order_id":"` + paymentID.String() + `","status":"` + tt.status + `"`
			sign := md5Sign([]byte(unsigned+"}"), "key")
			body := []byte(unsigned + `,"sign":"` + sign + `"}`)

			id, status, err := gw.HandleWebhook(context.Background(), WebhookRequest{Body: body})
			if err != nil || id != paymentID || status != tt.want {
				t.Errorf("%s %s: got %s %s %v", gt, tt.status, id, status, err)
			}
		}

		forged := []byte(`{"order_id":"` + paymentID.String() + `","status":"paid","sign":"` + md5Sign([]byte(`{}`), "key") + `"}`)
		if _, _, err := gw.HandleWebhook(context.Background(), WebhookRequest{Body: forged}); !errors.Is(err, ErrVerificationFailed) {
			t.Errorf("%s forged: got %v", gt, err)
		}

		unsigned := `{"order_id":"` + paymentID.String() + `","status":"check"`
		body := []byte(unsigned + `,"sign":"` + md5Sign([]byte(unsigned+"}"), "key") + `"}`)
		var unsupported *UnsupportedStatusError
		if _, _, err := gw.HandleWebhook(context.Background(), WebhookRequest{Body: body}); !errors.As(err, &unsupported) {
			t.Errorf("%s check: got %v", gt, err)
		}
	}
}

func TestSignedCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path != "/v1/payment" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("merchant") != "m" || r.Header.Get("sign") != md5Sign(body, "key") {
			t.Errorf("bad request signature: %v", r.Header)
		}
		w.Write([]byte(`{"state":0,"result":{"uuid":"26109ba0","url":"https://pay.cryptomus.com/pay/26109ba0"}}`))
	}))
	defer srv.Close()

	gw, _ := New(gatewayRow(db.GatewayCryptomus, db.GatewaySettings{
		Cryptomus: &db.CryptomusSettings{MerchantID: "m", APIKey: "key"},
	}), Options{HTTPClient: srv.Client(), BaseURL: srv.URL})

	res, err := gw.CreatePayment(context.Background(), decimal.NewFromInt(5), "Basic")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.URL != "https://pay.cryptomus.com/pay/26109ba0" || res.ID == uuid.Nil {
		t.Errorf("unexpected result: %+v", res)
	}
	if gw.Currency() != db.CurrencyUSD {
		t.Errorf("currency: got %s", gw.Currency())
	}
}
