package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"ticket-settlement/internal/services"
	"ticket-settlement/internal/services/gateway"
	"ticket-settlement/security"
)

// newRequestEvent builds a request event the way the router would,
// app included; RealIP and friends dereference it.
func newRequestEvent(app core.App, req *http.Request) (*core.RequestEvent, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{App: app}
	e.Request = req
	e.Response = rec

	return e, rec
}

func openLimiter() *security.RateLimiter {
	// redismock without expectations errors every call; the limiter fails
	// open, which is exactly what these tests need
	db, _ := redismock.NewClientMock()
	return security.NewRateLimiter(db, 100, time.Minute)
}

// rejectingGateway refuses every signature; enough to exercise the
// webhook handler's rejection path without a provider.
type rejectingGateway struct{}

func (rejectingGateway) CreateIntent(context.Context, *gateway.IntentRequest) (*gateway.Intent, error) {
	return nil, nil
}
func (rejectingGateway) CheckIntent(context.Context, string) (*gateway.Intent, error) {
	return nil, nil
}
func (rejectingGateway) VerifySignature([]byte, string) bool          { return false }
func (rejectingGateway) SetNoticeChannel(chan *gateway.PaymentNotice) {}
func (rejectingGateway) Close(context.Context) error                  { return nil }

func TestPaymentHandler_CreateIntent_MissingFields(t *testing.T) {
	handler := &PaymentHandler{
		app:            pocketbase.New(),
		paymentService: nil, // the request must be rejected before the service
		limiter:        openLimiter(),
	}

	body := bytes.NewBufferString(`{"event_id":"ev-1","quantity":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-intents", body)
	req.Header.Set("Content-Type", "application/json")

	e, _ := newRequestEvent(handler.app, req)

	err := handler.CreateIntent(e)

	assert.Error(t, err)
	apiErr, ok := err.(*router.ApiError)
	if assert.True(t, ok) {
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	}
}

func TestPaymentHandler_CreateIntent_InvalidBody(t *testing.T) {
	handler := &PaymentHandler{
		app:            pocketbase.New(),
		paymentService: nil,
		limiter:        openLimiter(),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-intents", bytes.NewBufferString("{broken"))
	req.Header.Set("Content-Type", "application/json")

	e, _ := newRequestEvent(handler.app, req)

	err := handler.CreateIntent(e)

	assert.Error(t, err)
}

func TestWebhookHandler_PaymentCallback_BadSignature(t *testing.T) {
	db, _ := redismock.NewClientMock()
	settlement := services.NewSettlementService(db, nil, rejectingGateway{}, nil, time.Hour)

	handler := &WebhookHandler{
		app:               pocketbase.New(),
		settlementService: settlement,
	}

	body := bytes.NewBufferString(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", body)
	req.Header.Set(SignatureHeader, "forged")

	e, _ := newRequestEvent(handler.app, req)

	err := handler.PaymentCallback(e)

	assert.Error(t, err)
	apiErr, ok := err.(*router.ApiError)
	if assert.True(t, ok) {
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	}
}

func TestRedemptionHandler_Redeem_MissingQRCode(t *testing.T) {
	handler := &RedemptionHandler{
		app:               pocketbase.New(),
		redemptionService: nil,
		limiter:           openLimiter(),
		staffKeyHash:      "",
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/redeem", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	e, _ := newRequestEvent(handler.app, req)

	err := handler.Redeem(e)

	assert.Error(t, err)
	apiErr, ok := err.(*router.ApiError)
	if assert.True(t, ok) {
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	}
}

func TestRedemptionHandler_Redeem_WrongStaffKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("door-key"), bcrypt.DefaultCost)
	assert.NoError(t, err)

	handler := &RedemptionHandler{
		app:               pocketbase.New(),
		redemptionService: nil,
		limiter:           openLimiter(),
		staffKeyHash:      string(hash),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/redeem", bytes.NewBufferString(`{"qr_code":"TKT-X"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(StaffKeyHeader, "wrong-key")

	e, _ := newRequestEvent(handler.app, req)

	err = handler.Redeem(e)

	assert.Error(t, err)
	apiErr, ok := err.(*router.ApiError)
	if assert.True(t, ok) {
		assert.Equal(t, http.StatusForbidden, apiErr.Status)
	}
}

func TestRedemptionHandler_AllowStaff(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("door-key"), bcrypt.DefaultCost)
	assert.NoError(t, err)

	guarded := &RedemptionHandler{staffKeyHash: string(hash)}
	assert.True(t, guarded.allowStaff("door-key"))
	assert.False(t, guarded.allowStaff("wrong-key"))
	assert.False(t, guarded.allowStaff(""))

	open := &RedemptionHandler{staffKeyHash: ""}
	assert.True(t, open.allowStaff("anything"))
}
