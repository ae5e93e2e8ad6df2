package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-settlement/internal/services"
	"ticket-settlement/internal/status"
	"ticket-settlement/security"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	limiter        *security.RateLimiter
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, limiter *security.RateLimiter) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
		limiter:        limiter,
	}
}

// CreateIntent - Quote a purchase and create the provider payment intent
func (h *PaymentHandler) CreateIntent(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	if !h.limiter.Allow(ctx, "payment-intents", e.RealIP()) {
		return apis.NewApiError(http.StatusTooManyRequests, "Too many requests", nil)
	}

	var req services.CreateIntentRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" || req.UserID == "" || req.TicketTypeID == "" {
		return apis.NewBadRequestError("event_id, user_id and ticket_type_id are required", nil)
	}

	result, err := h.paymentService.CreateIntent(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrInvalidQuantity),
			errors.Is(err, status.ErrUnknownTicketType),
			errors.Is(err, status.ErrSalesClosed),
			errors.Is(err, status.ErrInsufficientInventory),
			errors.Is(err, status.ErrGatewayRejected):
			return apis.NewBadRequestError(err.Error(), nil)

		case errors.Is(err, status.ErrGatewayUnavailable):
			return apis.NewApiError(http.StatusServiceUnavailable, "Payment provider unavailable, retry shortly", nil)

		default:
			slog.Error("h.paymentService.CreateIntent()", "req", req, "error", err)
			return apis.NewInternalServerError("internal error", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"client_secret":      result.ClientSecret,
		"provider_intent_id": result.ProviderIntentID,
		"amount":             result.Amount,
		"currency":           result.Currency,
	})
}

// OrderTickets - List the tickets issued for an order
func (h *PaymentHandler) OrderTickets(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")
	if orderID == "" {
		return apis.NewBadRequestError("orderId is required", nil)
	}

	tickets, err := h.paymentService.OrderTickets(e.Request.Context(), orderID)
	if err != nil {
		slog.Error("h.paymentService.OrderTickets()", "order", orderID, "error", err)
		return apis.NewInternalServerError("internal error", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

// IntentStatus - Check payment intent status
func (h *PaymentHandler) IntentStatus(e *core.RequestEvent) error {
	intentID := e.Request.PathValue("intentId")
	ctx := e.Request.Context()

	st, err := h.paymentService.IntentStatus(ctx, intentID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return apis.NewNotFoundError("Payment intent not found", nil)
		}
		slog.Error("h.paymentService.IntentStatus()", "intent", intentID, "error", err)
		return apis.NewInternalServerError("internal error", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"status": st})
}
