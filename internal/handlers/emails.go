package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/requestctx"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

const maxEmailRequestBody = 64 * 1024

// EmailHandlers lets the storefront or a scheduled job re-send transactional
// mail for an order.
type EmailHandlers struct {
	orders        services.OrderLifecycleService
	notifications services.NotificationService
}

func NewEmailHandlers(orders services.OrderLifecycleService, notifications services.NotificationService) *EmailHandlers {
	return &EmailHandlers{orders: orders, notifications: notifications}
}

// Routes registers endpoints relative to the /emails group.
func (h *EmailHandlers) Routes(r chi.Router) {
	r.Post("/order-confirmation", h.send("order_confirmation", true, func(n services.NotificationService) sendFunc {
		return n.SendConfirmation
	}))
	r.Post("/admin-alert", h.send("admin_alert", true, func(n services.NotificationService) sendFunc {
		return n.SendAdminAlert
	}))
	r.Post("/shipment", h.send("shipment", false, func(n services.NotificationService) sendFunc {
		return n.SendShipmentNotice
	}))
}

type sendFunc func(ctx context.Context, order services.Order) error

type emailRequest struct {
	OrderID   string        `json:"orderId"`
	OrderData *orderPayload `json:"orderData"`
}

// send builds a handler for one mail kind. When inline is true a caller may
// supply the order body directly, which covers the window before the order
// document is readable.
func (h *EmailHandlers) send(kind string, inline bool, pick func(services.NotificationService) sendFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.notifications == nil {
			writeUnavailable(ctx, w, "notification service")
			return
		}
		var req emailRequest
		if err := httpx.DecodeJSON(r, maxEmailRequestBody, &req); err != nil {
			writeBodyError(ctx, w, err)
			return
		}

		order, ok := h.resolveOrder(ctx, w, req, inline)
		if !ok {
			return
		}
		if err := pick(h.notifications)(ctx, order); err != nil {
			requestctx.Logger(ctx).Warn("emails: send failed",
				zap.String("kind", kind), zap.String("orderId", order.ID), zap.Error(err))
			writeServiceError(ctx, w, err, "order_not_found")
			return
		}
		requestctx.Logger(ctx).Info("emails: sent", zap.String("kind", kind), zap.String("orderId", order.ID))
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (h *EmailHandlers) resolveOrder(ctx context.Context, w http.ResponseWriter, req emailRequest, inline bool) (services.Order, bool) {
	orderID := strings.TrimSpace(req.OrderID)
	if inline && req.OrderData != nil {
		order := req.OrderData.toOrder()
		if order.ID == "" {
			order.ID = orderID
		}
		if order.ID == "" {
			writeBadRequest(ctx, w, "orderId is required")
			return services.Order{}, false
		}
		return order, true
	}
	if orderID == "" {
		writeBadRequest(ctx, w, "orderId is required")
		return services.Order{}, false
	}
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return services.Order{}, false
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return services.Order{}, false
	}
	return order, true
}
