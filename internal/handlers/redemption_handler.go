package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"

	"ticket-settlement/internal/services"
	"ticket-settlement/security"
)

// StaffKeyHeader carries the door-staff API key.
const StaffKeyHeader = "X-Staff-Key"

type RedemptionHandler struct {
	app               *pocketbase.PocketBase
	redemptionService *services.RedemptionService
	limiter           *security.RateLimiter
	staffKeyHash      string
}

func NewRedemptionHandler(app *pocketbase.PocketBase, redemptionService *services.RedemptionService, limiter *security.RateLimiter, staffKeyHash string) *RedemptionHandler {
	return &RedemptionHandler{
		app:               app,
		redemptionService: redemptionService,
		limiter:           limiter,
		staffKeyHash:      staffKeyHash,
	}
}

// Redeem - Validate and consume a ticket at the door. Always 200 with the
// verdict in the body; "not found" and "already used" are expected
// outcomes, not errors. Only storage faults surface as 5xx.
func (h *RedemptionHandler) Redeem(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	if !h.allowStaff(e.Request.Header.Get(StaffKeyHeader)) {
		return apis.NewForbiddenError("Access denied", nil)
	}
	if !h.limiter.Allow(ctx, "redeem", e.RealIP()) {
		return apis.NewApiError(http.StatusTooManyRequests, "Too many requests", nil)
	}

	var req struct {
		QRCode string `json:"qr_code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.QRCode == "" {
		return apis.NewBadRequestError("qr_code is required", nil)
	}

	result, err := h.redemptionService.Redeem(ctx, req.QRCode)
	if err != nil {
		slog.Error("h.redemptionService.Redeem()", "error", err)
		return apis.NewInternalServerError("internal error", err)
	}

	message := "ticket accepted"
	if !result.Valid {
		message = result.Reason
	}

	return e.JSON(http.StatusOK, map[string]any{
		"valid":   result.Valid,
		"message": message,
		"ticket":  result.Ticket,
	})
}

// allowStaff verifies the scanner's key against the configured bcrypt
// hash. An empty hash disables the guard for development setups.
func (h *RedemptionHandler) allowStaff(key string) bool {
	if h.staffKeyHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(h.staffKeyHash), []byte(key)) == nil
}
