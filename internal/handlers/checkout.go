package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/requestctx"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

const maxCheckoutRequestBody = 16 * 1024

// StorefrontPages are the absolute URLs the wallet callback redirects to.
type StorefrontPages struct {
	CompleteURL string
	FailedURL   string
}

// CheckoutHandlers exposes the anonymous storefront checkout flow.
type CheckoutHandlers struct {
	orders     services.OrderLifecycleService
	storefront StorefrontPages
	guard      func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithOrderCreationGuard wraps order creation, typically with the
// idempotency middleware so a retried submit does not create a second order.
func WithOrderCreationGuard(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) { h.guard = mw }
}

func NewCheckoutHandlers(orders services.OrderLifecycleService, storefront StorefrontPages, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{orders: orders, storefront: storefront}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints relative to the API root.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.guard != nil {
		create = h.guard(create)
	}
	r.Method(http.MethodPost, "/checkout/orders", create)
	r.Post("/checkout/payment-intents", h.createPaymentIntent)
	r.Post("/checkout/orders/{orderID}:confirm-card", h.confirmCard)
	r.Get("/checkout/paypay/callback", h.walletCallback)
}

type checkoutCustomer struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Address addressPayload `json:"address"`
}

type createOrderRequest struct {
	Customer      checkoutCustomer   `json:"customer"`
	Items         []orderItemPayload `json:"items"`
	PaymentMethod string             `json:"paymentMethod"`
}

type createOrderResponse struct {
	Order       orderPayload `json:"order"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return
	}
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, maxCheckoutRequestBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	items := make([]services.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItem(item))
	}
	result, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Customer: services.CustomerInfo{
			Name:    req.Customer.Name,
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Address: services.Address(req.Customer.Address),
		},
		Items:         items,
		PaymentMethod: services.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	})
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createOrderResponse{
		Order:       newOrderPayload(result.Order),
		RedirectURL: result.RedirectURL,
	})
}

type paymentIntentRequest struct {
	OrderID string `json:"orderId"`
}

type paymentIntentResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
}

func (h *CheckoutHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return
	}
	var req paymentIntentRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		writeBadRequest(ctx, w, "orderId is required")
		return
	}
	intent, err := h.orders.CreateCardIntent(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentIntentResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
	})
}

type confirmCardRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

func (h *CheckoutHandlers) confirmCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return
	}
	var req confirmCardRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		writeBadRequest(ctx, w, "paymentIntentId is required")
		return
	}
	order, err := h.orders.FinalizeCardPayment(ctx, chi.URLParam(r, "orderID"), intentID)
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": newOrderPayload(order)})
}

// walletCallback is where PayPay sends the customer after the wallet app.
// The payment state is always re-read from PayPay; query parameters other
// than orderId are ignored.
func (h *CheckoutHandlers) walletCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	if orderID == "" {
		http.Redirect(w, r, pageURL(h.storefront.FailedURL, "", "missing_order"), http.StatusSeeOther)
		return
	}
	if h.orders == nil {
		http.Redirect(w, r, pageURL(h.storefront.FailedURL, orderID, "service_unavailable"), http.StatusSeeOther)
		return
	}

	if _, err := h.orders.CompleteWalletPayment(ctx, orderID); err != nil {
		reason := serviceError(ctx, err, "order_not_found").Code
		if !errors.Is(err, services.ErrPaymentIncomplete) {
			requestctx.Logger(ctx).Warn("checkout: wallet completion failed",
				zap.String("orderId", orderID), zap.String("reason", reason), zap.Error(err))
		}
		http.Redirect(w, r, pageURL(h.storefront.FailedURL, orderID, reason), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, pageURL(h.storefront.CompleteURL, orderID, ""), http.StatusSeeOther)
}

func pageURL(base, orderID, reason string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
