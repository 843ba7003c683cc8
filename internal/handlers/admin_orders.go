package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/pagination"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

// AdminOrderHandlers lets the back office list orders, ship them and issue
// refunds.
type AdminOrderHandlers struct {
	orders      services.OrderLifecycleService
	refundGuard func(http.Handler) http.Handler
}

// AdminOrderOption customises AdminOrderHandlers.
type AdminOrderOption func(*AdminOrderHandlers)

// WithRefundGuard wraps the refund endpoint, typically with an idempotency
// middleware that requires a key.
func WithRefundGuard(mw func(http.Handler) http.Handler) AdminOrderOption {
	return func(h *AdminOrderHandlers) { h.refundGuard = mw }
}

func NewAdminOrderHandlers(orders services.OrderLifecycleService, opts ...AdminOrderOption) *AdminOrderHandlers {
	h := &AdminOrderHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers endpoints relative to the admin group.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{orderID}", h.get)
	r.Post("/orders/{orderID}:ship", h.ship)

	refund := http.Handler(http.HandlerFunc(h.refund))
	if h.refundGuard != nil {
		refund = h.refundGuard(refund)
	}
	r.Method(http.MethodPost, "/refund", refund)
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func (h *AdminOrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return
	}
	page, err := pagination.ParseRequest(r)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	filter := services.OrderListFilter{Pagination: page}

	query := r.URL.Query()
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := services.OrderStatus(part)
			if !status.Valid() {
				writeBadRequest(ctx, w, "unknown status "+part)
				return
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if filter.CreatedGTE, err = parseDateParam(query.Get("from")); err != nil {
		writeBadRequest(ctx, w, "from must be YYYY-MM-DD or RFC3339")
		return
	}
	if filter.CreatedLT, err = parseDateParam(query.Get("to")); err != nil {
		writeBadRequest(ctx, w, "to must be YYYY-MM-DD or RFC3339")
		return
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return
	}
	resp := orderListResponse{
		Orders:        make([]orderPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, order := range result.Items {
		resp.Orders = append(resp.Orders, newOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminOrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": newOrderPayload(order)})
}

func (h *AdminOrderHandlers) ship(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return
	}
	order, err := h.orders.TransitionToShipped(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": newOrderPayload(order)})
}

type refundRequest struct {
	OrderID string `json:"orderId"`
	Amount  *int64 `json:"amount"`
}

type refundResponse struct {
	Success      bool         `json:"success"`
	RefundAmount int64        `json:"refundAmount"`
	Order        orderPayload `json:"order"`
}

func (h *AdminOrderHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order service")
		return
	}
	var req refundRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		writeBadRequest(ctx, w, "orderId is required")
		return
	}
	result, err := h.orders.Refund(ctx, orderID, req.Amount)
	if err != nil {
		writeServiceError(ctx, w, err, "order_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, refundResponse{
		Success:      true,
		RefundAmount: result.RefundAmount,
		Order:        newOrderPayload(result.Order),
	})
}

var errBadDate = errors.New("invalid date")

// parseDateParam accepts a calendar date (start of day in Asia/Tokyo) or an
// RFC3339 timestamp. Empty input yields nil.
func parseDateParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, tokyo); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	return nil, errBadDate
}

var tokyo = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}()
