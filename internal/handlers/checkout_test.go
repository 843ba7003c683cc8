package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	"github.com/3ureka-official/religionne00-sub001/internal/payments"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

var testStorefront = StorefrontPages{
	CompleteURL: "https://shop.example.com/checkout/complete",
	FailedURL:   "https://shop.example.com/checkout/failed",
}

const checkoutPayload = `{
	"customer": {
		"name": "Hanako Yamada",
		"email": "hanako@example.com",
		"phone": "09012345678",
		"address": {"postalCode": "1500001", "prefecture": "Tokyo", "city": "Shibuya", "line1": "1-1-1"}
	},
	"items": [{"productId": "prod-1", "name": "Tee", "price": 4000, "quantity": 2, "size": "M"}],
	"paymentMethod": " Wallet "
}`

func TestCheckoutHandlers_CreateOrderWalletRedirect(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFunc: func(_ context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
			captured = cmd
			order := sampleOrder("ord-1", domain.OrderStatusPending)
			order.PaymentMethod = domain.PaymentMethodWallet
			return services.CreateOrderResult{Order: order, RedirectURL: "https://paypay.example/ord-1"}, nil
		},
	}
	router := chi.NewRouter()
	NewCheckoutHandlers(svc, testStorefront).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/orders", bytes.NewBufferString(checkoutPayload)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PaymentMethod != domain.PaymentMethodWallet {
		t.Fatalf("expected normalised payment method, got %q", captured.PaymentMethod)
	}
	if captured.Customer.Address.Prefecture != "Tokyo" || captured.Customer.Email != "hanako@example.com" {
		t.Fatalf("unexpected customer %#v", captured.Customer)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 || captured.Items[0].Size != "M" {
		t.Fatalf("unexpected items %#v", captured.Items)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RedirectURL != "https://paypay.example/ord-1" {
		t.Fatalf("expected redirect url, got %q", resp.RedirectURL)
	}
	if resp.Order.Status != "pending" || resp.Order.Total != 8500 {
		t.Fatalf("unexpected order %#v", resp.Order)
	}
}

func TestCheckoutHandlers_CreateOrderValidationFields(t *testing.T) {
	svc := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (services.CreateOrderResult, error) {
			return services.CreateOrderResult{}, &services.ValidationError{Fields: map[string]string{"customer.email": "is required"}}
		},
	}
	router := chi.NewRouter()
	NewCheckoutHandlers(svc, testStorefront).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/orders", bytes.NewBufferString(checkoutPayload)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error != "invalid_request" {
		t.Fatalf("expected invalid_request, got %s", body.Error)
	}
	if body.Fields["customer.email"] != "is required" {
		t.Fatalf("expected field detail, got %#v", body.Fields)
	}
}

func TestCheckoutHandlers_CreateOrderGuardApplied(t *testing.T) {
	guard := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})
	}
	called := false
	svc := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (services.CreateOrderResult, error) {
			called = true
			return services.CreateOrderResult{}, nil
		},
	}
	router := chi.NewRouter()
	NewCheckoutHandlers(svc, testStorefront, WithOrderCreationGuard(guard)).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/orders", bytes.NewBufferString(checkoutPayload)))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected guard response 409, got %d", rr.Code)
	}
	if called {
		t.Fatalf("expected service not to be called")
	}
}

func TestCheckoutHandlers_CreatePaymentIntent(t *testing.T) {
	svc := &stubOrderService{
		intentFunc: func(_ context.Context, orderID string) (payments.CardIntent, error) {
			if orderID != "ord-1" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return payments.CardIntent{ID: "pi_123", ClientSecret: "pi_123_secret", Amount: 8500}, nil
		},
	}
	router := chi.NewRouter()
	NewCheckoutHandlers(svc, testStorefront).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/payment-intents", bytes.NewBufferString(`{"orderId":" ord-1 "}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp paymentIntentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PaymentIntentID != "pi_123" || resp.ClientSecret != "pi_123_secret" || resp.Amount != 8500 {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestCheckoutHandlers_ConfirmCardRequiresIntent(t *testing.T) {
	router := chi.NewRouter()
	NewCheckoutHandlers(&stubOrderService{}, testStorefront).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/orders/ord-1:confirm-card", bytes.NewBufferString(`{}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCheckoutHandlers_ConfirmCard(t *testing.T) {
	svc := &stubOrderService{
		finalizeFunc: func(_ context.Context, orderID, intentID string) (services.Order, error) {
			if orderID != "ord-1" || intentID != "pi_123" {
				t.Fatalf("unexpected ids %s %s", orderID, intentID)
			}
			return sampleOrder(orderID, domain.OrderStatusPaid), nil
		},
	}
	router := chi.NewRouter()
	NewCheckoutHandlers(svc, testStorefront).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/orders/ord-1:confirm-card", bytes.NewBufferString(`{"paymentIntentId":"pi_123"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Order orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Status != "paid" {
		t.Fatalf("expected paid order, got %s", resp.Order.Status)
	}
}

func TestCheckoutHandlers_WalletCallbackRedirects(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		err      error
		wantBase string
		reason   string
	}{
		{name: "completed", query: "?orderId=ord-1", wantBase: testStorefront.CompleteURL},
		{name: "not completed", query: "?orderId=ord-1", err: services.ErrPaymentIncomplete, wantBase: testStorefront.FailedURL, reason: "payment_incomplete"},
		{name: "gateway failure", query: "?orderId=ord-1", err: errors.Join(services.ErrGateway, errors.New("timeout")), wantBase: testStorefront.FailedURL, reason: "gateway_error"},
		{name: "missing order id", query: "", wantBase: testStorefront.FailedURL, reason: "missing_order"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				walletFunc: func(_ context.Context, orderID string) (services.Order, error) {
					if tc.err != nil {
						return services.Order{}, tc.err
					}
					return sampleOrder(orderID, domain.OrderStatusPaid), nil
				},
			}
			router := chi.NewRouter()
			NewCheckoutHandlers(svc, testStorefront).Routes(router)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/checkout/paypay/callback"+tc.query, nil))

			if rr.Code != http.StatusSeeOther {
				t.Fatalf("expected status 303, got %d", rr.Code)
			}
			loc, err := url.Parse(rr.Header().Get("Location"))
			if err != nil {
				t.Fatalf("invalid location: %v", err)
			}
			if base := loc.Scheme + "://" + loc.Host + loc.Path; base != tc.wantBase {
				t.Fatalf("expected redirect to %s, got %s", tc.wantBase, base)
			}
			if got := loc.Query().Get("reason"); got != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, got)
			}
		})
	}
}
