package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/3ureka-official/religionne00-sub001/internal/payments"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/requestctx"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

// writeServiceError maps service sentinels onto the API error envelope.
// notFoundCode distinguishes order_not_found from product_not_found.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, notFoundCode string) {
	httpx.WriteError(ctx, w, serviceError(ctx, err, notFoundCode))
}

func serviceError(ctx context.Context, err error, notFoundCode string) httpx.Error {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		fields := make(map[string]any, len(validation.Fields))
		for k, v := range validation.Fields {
			fields[k] = v
		}
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"fields": fields})
	case errors.Is(err, services.ErrValidation):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound):
		return httpx.NewError(notFoundCode, "resource not found", http.StatusNotFound)
	case errors.Is(err, services.ErrAlreadyRefunded):
		return httpx.NewError("already_refunded", "order has already been refunded", http.StatusConflict)
	case errors.Is(err, services.ErrInvalidTransition):
		return httpx.NewError("invalid_transition", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrMissingPaymentReference):
		return httpx.NewError("missing_payment_reference", "order has no payment reference", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrPaymentIncomplete):
		return httpx.NewError("payment_incomplete", "payment has not completed", http.StatusConflict)
	case errors.Is(err, services.ErrConflict):
		return httpx.NewError("order_conflict", "resource was modified concurrently, retry the request", http.StatusConflict)
	case errors.Is(err, services.ErrGateway):
		message := "payment provider request failed"
		var gwErr *payments.GatewayError
		if errors.As(err, &gwErr) {
			message = gwErr.UserMessage()
		}
		return httpx.NewError("gateway_error", message, http.StatusBadGateway)
	case errors.Is(err, services.ErrUnavailable):
		return httpx.NewError("service_unavailable", "a dependency is temporarily unavailable", http.StatusServiceUnavailable)
	}
	requestctx.Logger(ctx).Error("handlers: unexpected service error", zap.Error(err))
	return httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, httpx.BodyError(err))
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, what string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", what+" unavailable", http.StatusServiceUnavailable))
}
