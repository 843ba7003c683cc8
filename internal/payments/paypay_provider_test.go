package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestPayPayGateway(t *testing.T, handler http.HandlerFunc) *PayPayGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := NewPayPayGateway(PayPayGatewayConfig{
		BaseURL:    srv.URL,
		APIKey:     "key",
		APISecret:  "secret",
		MerchantID: "merchant-1",
		HTTPClient: srv.Client(),
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		Nonce:      func() string { return "nonce123" },
	})
	if err != nil {
		t.Fatalf("new paypay gateway: %v", err)
	}
	return gw
}

func TestPayPayCreateOrder(t *testing.T) {
	var body paypayCreateCodeRequest
	gw := newTestPayPayGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/codes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "hmac OPA-Auth:key:") || !strings.Contains(auth, ":nonce123:1700000000:") {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if r.Header.Get("X-ASSUME-MERCHANT") != "merchant-1" {
			t.Errorf("missing merchant header")
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"resultInfo":{"code":"SUCCESS"},"data":{"codeId":"c1","url":"https://pay.example/c1","merchantPaymentId":"o1"}}`)
	})

	url, err := gw.CreateOrder(context.Background(), WalletOrderRequest{
		OrderID:     "o1",
		Amount:      2500,
		RedirectURL: "https://api.example/checkout/paypay/callback?orderId=o1",
		Items:       []WalletLineItem{{ProductID: "p1", Name: "Tee", Quantity: 1, UnitPrice: 2000}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if url != "https://pay.example/c1" {
		t.Fatalf("unexpected url %s", url)
	}
	if body.MerchantPaymentID != "o1" || body.Amount.Amount != 2500 || body.Amount.Currency != "JPY" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.CodeType != "ORDER_QR" || body.RedirectType != "WEB_LINK" || body.RequestedAt != 1700000000 {
		t.Fatalf("unexpected code settings: %+v", body)
	}
	if len(body.OrderItems) != 1 || body.OrderItems[0].UnitPrice.Amount != 2000 {
		t.Fatalf("unexpected order items: %+v", body.OrderItems)
	}
}

func TestPayPayPaymentDetails(t *testing.T) {
	gw := newTestPayPayGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v2/codes/payments/o1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasSuffix(auth, ":empty") {
			t.Errorf("expected empty body hash, got %q", auth)
		}
		_, _ = io.WriteString(w, `{"resultInfo":{"code":"SUCCESS"},"data":{"paymentId":"pay_1","merchantPaymentId":"o1","status":"COMPLETED","amount":{"amount":2500,"currency":"JPY"}}}`)
	})

	payment, err := gw.PaymentDetails(context.Background(), "o1")
	if err != nil {
		t.Fatalf("payment details: %v", err)
	}
	if payment.PaymentID != "pay_1" || payment.Status != StatusSucceeded || payment.Amount != 2500 {
		t.Fatalf("unexpected payment: %+v", payment)
	}
}

func TestPayPayRefund(t *testing.T) {
	var body paypayRefundRequest
	gw := newTestPayPayGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/refunds" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"resultInfo":{"code":"SUCCESS"},"data":{"status":"CREATED","paymentId":"pay_1"}}`)
	})

	id, err := gw.Refund(context.Background(), RefundRequest{Reference: "pay_1", Amount: 700, IdempotencyKey: "order-refund-ord_1"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if id != "order-refund-ord_1" || body.MerchantRefundID != id {
		t.Fatalf("expected the idempotency key as merchant refund id, got %q (sent %q)", id, body.MerchantRefundID)
	}
	if body.PaymentID != "pay_1" || body.Amount.Amount != 700 {
		t.Fatalf("unexpected refund body: %+v", body)
	}
}

func TestPayPayFailureBecomesGatewayError(t *testing.T) {
	gw := newTestPayPayGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"resultInfo":{"code":"INVALID_PARAMS","message":"bad amount"}}`)
	})

	_, err := gw.Refund(context.Background(), RefundRequest{Reference: "pay_1", Amount: 700})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.Code != "INVALID_PARAMS" || gwErr.Message != "bad amount" || gwErr.Temporary {
		t.Fatalf("unexpected gateway error: %+v", gwErr)
	}
}

func TestPayPayServerErrorIsTemporary(t *testing.T) {
	gw := newTestPayPayGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream unavailable")
	})

	_, err := gw.PaymentDetails(context.Background(), "o1")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || !gwErr.Temporary || gwErr.Code != "502" {
		t.Fatalf("expected temporary gateway error, got %v", err)
	}
}

func TestNewPayPayGatewayRequiresCredentials(t *testing.T) {
	if _, err := NewPayPayGateway(PayPayGatewayConfig{BaseURL: "https://example"}); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
}
