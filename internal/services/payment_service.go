package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-settlement/internal/services/gateway"
	"ticket-settlement/internal/status"
	"ticket-settlement/internal/store"
	"ticket-settlement/models"
	"ticket-settlement/monitoring"
	"ticket-settlement/utils"
)

// PaymentService owns the quote-to-intent flow: price the purchase, create
// the provider intent behind a circuit breaker, record the local intent in
// status "created" and cache a session for status polling. No inventory is
// reserved here; a client abandoning the quote leaves no durable side
// effect.
type PaymentService struct {
	Redis      *redis.Client
	store      store.Store
	pricing    *PricingService
	gw         gateway.PaymentGateway
	breaker    *utils.CircuitBreaker
	sessionTTL time.Duration
}

func NewPaymentService(redisClient *redis.Client, st store.Store, pricing *PricingService, gw gateway.PaymentGateway, sessionTTL time.Duration) *PaymentService {
	return &PaymentService{
		Redis:      redisClient,
		store:      st,
		pricing:    pricing,
		gw:         gw,
		breaker:    utils.NewCircuitBreaker("flowpay-create-intent"),
		sessionTTL: sessionTTL,
	}
}

type CreateIntentRequest struct {
	EventID      string `json:"event_id"`
	UserID       string `json:"user_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	PromoCode    string `json:"promo_code,omitempty"`
}

type CreateIntentResult struct {
	ProviderIntentID string `json:"provider_intent_id"`
	ClientSecret     string `json:"client_secret"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

func (s *PaymentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResult, error) {
	tt, err := s.store.TicketType(ctx, req.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if tt.EventID != req.EventID {
		return nil, status.ErrUnknownTicketType
	}

	amount, currency, promoApplied, err := s.pricing.ComputeCharge(ctx, tt, req.Quantity, req.PromoCode)
	if err != nil {
		return nil, err
	}

	// only a code that actually discounted the charge travels with the
	// intent; settlement counts usage solely off the intent record
	promoCode := ""
	if promoApplied {
		promoCode = req.PromoCode
	}

	idemKey, err := utils.NewIdempotencyKey()
	if err != nil {
		return nil, err
	}

	var intent *gateway.Intent
	err = s.breaker.Execute(func() error {
		var callErr error
		intent, callErr = s.gw.CreateIntent(ctx, &gateway.IntentRequest{
			Amount:         amount,
			Currency:       currency,
			IdempotencyKey: idemKey,
			Metadata: map[string]string{
				"event_id":       req.EventID,
				"user_id":        req.UserID,
				"ticket_type_id": req.TicketTypeID,
				"quantity":       strconv.Itoa(req.Quantity),
				"promo_code":     promoCode,
			},
		})
		return callErr
	})
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrBreakerOpen):
			monitoring.TrackGatewayError("breaker_open")
			return nil, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
		case errors.Is(err, status.ErrGatewayRejected):
			monitoring.TrackGatewayError("rejected")
			return nil, err
		default:
			monitoring.TrackGatewayError("unavailable")
			return nil, err
		}
	}

	rec := &models.PaymentIntentRecord{
		ProviderIntentID: intent.ID,
		EventID:          req.EventID,
		UserID:           req.UserID,
		TicketTypeID:     req.TicketTypeID,
		Quantity:         req.Quantity,
		PromoCode:        promoCode,
		Amount:           amount,
		Currency:         currency,
		Status:           models.IntentStatusCreated,
	}
	if err := s.store.CreateIntent(ctx, rec); err != nil {
		return nil, err
	}

	s.cacheSession(ctx, rec)
	monitoring.TrackIntentCreated(req.EventID)

	return &CreateIntentResult{
		ProviderIntentID: intent.ID,
		ClientSecret:     intent.ClientSecret,
		Amount:           amount,
		Currency:         currency,
	}, nil
}

func (s *PaymentService) cacheSession(ctx context.Context, rec *models.PaymentIntentRecord) {
	sessionKey := fmt.Sprintf("payment_intent:%s", rec.ProviderIntentID)

	sessionData := map[string]any{
		"provider_intent_id": rec.ProviderIntentID,
		"user_id":            rec.UserID,
		"event_id":           rec.EventID,
		"ticket_type_id":     rec.TicketTypeID,
		"quantity":           rec.Quantity,
		"amount":             rec.Amount,
		"currency":           rec.Currency,
		"status":             rec.Status,
		"created_at":         time.Now().Unix(),
	}
	for k, v := range sessionData {
		s.Redis.HSet(ctx, sessionKey, k, v)
	}

	s.Redis.Expire(ctx, sessionKey, s.sessionTTL)
}

// OrderTickets lists the tickets issued for an order, newest first.
func (s *PaymentService) OrderTickets(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	return s.store.TicketsByOrder(ctx, orderID)
}

// IntentStatus reports the current state of an intent, preferring the
// cached session over a storage roundtrip.
func (s *PaymentService) IntentStatus(ctx context.Context, providerIntentID string) (string, error) {
	sessionKey := fmt.Sprintf("payment_intent:%s", providerIntentID)

	st, err := s.Redis.HGet(ctx, sessionKey, "status").Result()
	if err == nil && st != "" {
		return st, nil
	}
	if err != nil && err != redis.Nil {
		slog.Warn("payment: session cache read failed", "intent", providerIntentID, "error", err)
	}

	rec, err := s.store.IntentByProviderID(ctx, providerIntentID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}
