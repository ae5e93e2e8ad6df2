package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-settlement/internal/services"
	"ticket-settlement/internal/status"
)

// SignatureHeader carries the provider's HMAC over the raw body.
const SignatureHeader = "Flowpay-Signature"

type WebhookHandler struct {
	app               *pocketbase.PocketBase
	settlementService *services.SettlementService
}

func NewWebhookHandler(app *pocketbase.PocketBase, settlementService *services.SettlementService) *WebhookHandler {
	return &WebhookHandler{
		app:               app,
		settlementService: settlementService,
	}
}

// PaymentCallback - Provider webhook endpoint. 200 means "stop
// redelivering", including idempotent no-ops. 400 is reserved for
// signature failures and malformed payloads; transient processing errors
// return 500 so the provider redelivers.
func (h *WebhookHandler) PaymentCallback(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("unreadable body", err)
	}

	signature := e.Request.Header.Get(SignatureHeader)

	if err := h.settlementService.HandleWebhook(e.Request.Context(), body, signature); err != nil {
		switch {
		case errors.Is(err, status.ErrInvalidSignature):
			slog.Warn("webhook: rejected delivery with bad signature", "ip", e.RealIP())
			return apis.NewBadRequestError("invalid signature", nil)

		case errors.Is(err, status.ErrMalformedEvent):
			return apis.NewBadRequestError("malformed event", nil)

		default:
			slog.Error("h.settlementService.HandleWebhook()", "error", err)
			return apis.NewInternalServerError("internal error", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"received": true})
}
