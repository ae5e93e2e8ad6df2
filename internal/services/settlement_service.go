package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-settlement/internal/services/gateway"
	"ticket-settlement/internal/status"
	"ticket-settlement/internal/store"
	"ticket-settlement/models"
	"ticket-settlement/monitoring"
	"ticket-settlement/utils"
)

// SettlementService converts verified provider callbacks into durable
// Order and Ticket records. It is idempotent per provider intent: the
// unique payment_provider_id column on orders is the anchor, so any number
// of redeliveries in any order converge to one Order and N Tickets.
type SettlementService struct {
	Redis    *redis.Client
	store    store.Store
	gw       gateway.PaymentGateway
	notifier Notifier
	dedupTTL time.Duration
}

func NewSettlementService(redisClient *redis.Client, st store.Store, gw gateway.PaymentGateway, notifier Notifier, dedupTTL time.Duration) *SettlementService {
	return &SettlementService{
		Redis:    redisClient,
		store:    st,
		gw:       gw,
		notifier: notifier,
		dedupTTL: dedupTTL,
	}
}

// HandleWebhook verifies and dispatches one provider delivery. A signature
// or parse failure is the only reason to reject; everything else is
// acknowledged so the provider stops redelivering.
func (s *SettlementService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gw.VerifySignature(body, signature) {
		monitoring.TrackWebhookEvent("unknown", "invalid_signature")
		return status.ErrInvalidSignature
	}

	var ev gateway.Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		monitoring.TrackWebhookEvent("unknown", "malformed")
		return status.ErrMalformedEvent
	}

	switch ev.Type {
	case gateway.EventIntentSucceeded:
		if ev.Data.Object.ID == "" {
			monitoring.TrackWebhookEvent(ev.Type, "malformed")
			return status.ErrMalformedEvent
		}
		if err := s.Settle(ctx, ev.Data.Object.ID); err != nil {
			monitoring.TrackWebhookEvent(ev.Type, "error")
			return err
		}
		monitoring.TrackWebhookEvent(ev.Type, "processed")

	case gateway.EventIntentFailed:
		if ev.Data.Object.ID == "" {
			monitoring.TrackWebhookEvent(ev.Type, "malformed")
			return status.ErrMalformedEvent
		}
		if err := s.store.MarkIntentStatus(ctx, ev.Data.Object.ID, models.IntentStatusFailed); err != nil {
			monitoring.TrackWebhookEvent(ev.Type, "error")
			return err
		}
		s.cacheStatus(ctx, ev.Data.Object.ID, models.IntentStatusFailed)
		monitoring.TrackWebhookEvent(ev.Type, "processed")

	default:
		// acknowledged and ignored
		monitoring.TrackWebhookEvent(ev.Type, "ignored")
	}

	return nil
}

// SettleFromNotice handles a push-channel transaction notice. Pushed
// notices are advisory only; the intent state is re-verified against the
// provider before settling, then funneled through the same idempotent
// path the webhook uses.
func (s *SettlementService) SettleFromNotice(ctx context.Context, notice *gateway.PaymentNotice) error {
	intent, err := s.gw.CheckIntent(ctx, notice.ProviderIntentID)
	if err != nil {
		return fmt.Errorf("settlement: verify pushed notice %s: %w", notice.ProviderIntentID, err)
	}
	if intent.Status != "succeeded" {
		return nil
	}
	return s.Settle(ctx, intent.ID)
}

// Settle issues the order and tickets for a succeeded intent exactly once.
func (s *SettlementService) Settle(ctx context.Context, providerIntentID string) error {
	// Cheap redelivery counter; the authoritative guard is the order
	// lookup below.
	dedupKey := fmt.Sprintf("webhook:intent:%s", providerIntentID)
	if set, err := s.Redis.SetNX(ctx, dedupKey, 1, s.dedupTTL).Result(); err == nil && !set {
		slog.Info("settlement: redelivery", "intent", providerIntentID)
	}

	if _, err := s.store.OrderByProviderID(ctx, providerIntentID); err == nil {
		s.cacheStatus(ctx, providerIntentID, models.IntentStatusSucceeded)
		monitoring.TrackSettlement("duplicate")
		return nil
	} else if !errors.Is(err, status.ErrNotFound) {
		return err
	}

	intent, err := s.store.IntentByProviderID(ctx, providerIntentID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			// not an intent of ours; ack so the provider stops retrying
			slog.Warn("settlement: event for unknown intent", "intent", providerIntentID)
			return nil
		}
		return err
	}

	var (
		order       *models.Order
		qrCodes     []string
		alreadyDone bool
	)
	txErr := s.store.Atomic(ctx, func(tx store.Store) error {
		// re-check under the transaction; a concurrent delivery may have
		// won the race since the lookup above
		if _, err := tx.OrderByProviderID(ctx, providerIntentID); err == nil {
			alreadyDone = true
			return nil
		} else if !errors.Is(err, status.ErrNotFound) {
			return err
		}

		if err := tx.CommitInventory(ctx, intent.TicketTypeID, intent.Quantity); err != nil {
			return err
		}

		order = &models.Order{
			EventID:           intent.EventID,
			UserID:            intent.UserID,
			Amount:            decimal.NewFromInt(intent.Amount).Div(decimal.NewFromInt(100)),
			Currency:          intent.Currency,
			PaymentStatus:     "paid",
			PaymentProviderID: intent.ProviderIntentID,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		qrCodes = make([]string, 0, intent.Quantity)
		for i := 0; i < intent.Quantity; i++ {
			qr, err := utils.NewQRCode()
			if err != nil {
				return err
			}
			ticket := &models.Ticket{
				OrderID:      order.ID,
				EventID:      intent.EventID,
				TicketTypeID: intent.TicketTypeID,
				OwnerUserID:  intent.UserID,
				QRCode:       qr,
			}
			if err := tx.CreateTicket(ctx, ticket); err != nil {
				return err
			}
			qrCodes = append(qrCodes, qr)
		}

		// first and only place promo usage is counted
		if intent.PromoCode != "" {
			counted, err := tx.ConsumePromoUse(ctx, intent.PromoCode, intent.EventID)
			if err != nil {
				return err
			}
			if !counted {
				slog.Warn("settlement: promo exhausted before settlement",
					"intent", providerIntentID, "promo", intent.PromoCode)
			}
		}

		return tx.MarkIntentStatus(ctx, providerIntentID, models.IntentStatusSucceeded)
	})

	if errors.Is(txErr, status.ErrInsufficientInventory) {
		return s.escalateOvercommit(ctx, intent)
	}
	if txErr != nil {
		// nothing durable happened; the provider's redelivery will retry
		monitoring.TrackSettlement("error")
		return txErr
	}
	if alreadyDone {
		s.cacheStatus(ctx, providerIntentID, models.IntentStatusSucceeded)
		monitoring.TrackSettlement("duplicate")
		return nil
	}

	s.cacheStatus(ctx, providerIntentID, models.IntentStatusSucceeded)
	monitoring.TrackSettlement("settled")
	s.notifier.TicketsIssued(intent.UserID, order, qrCodes)

	slog.Info("settlement: tickets issued",
		"intent", providerIntentID, "order", order.ID, "tickets", len(qrCodes))
	return nil
}

// escalateOvercommit handles the sold-out-after-payment case. The money
// was already captured, so the callback is acknowledged and the case is
// escalated to the operator refund workflow instead of being retried.
func (s *SettlementService) escalateOvercommit(ctx context.Context, intent *models.PaymentIntentRecord) error {
	monitoring.TrackOversell()
	monitoring.TrackSettlement("overcommit")

	slog.Error("settlement: inventory exhausted after payment captured; refund required",
		"intent", intent.ProviderIntentID,
		"ticket_type", intent.TicketTypeID,
		"quantity", intent.Quantity,
		"amount", intent.Amount)

	// the intent row is the durable record; the cached session expires
	if err := s.store.MarkIntentStatus(ctx, intent.ProviderIntentID, models.IntentStatusRequiresRefund); err != nil {
		slog.Error("settlement: mark overcommitted intent", "intent", intent.ProviderIntentID, "error", err)
	}
	s.cacheStatus(ctx, intent.ProviderIntentID, models.IntentStatusRequiresRefund)

	s.notifier.OpsAlert("payment captured for sold-out ticket type; manual refund required", map[string]any{
		"provider_intent_id": intent.ProviderIntentID,
		"ticket_type_id":     intent.TicketTypeID,
		"quantity":           intent.Quantity,
		"amount":             intent.Amount,
		"currency":           intent.Currency,
	})

	return nil
}

func (s *SettlementService) cacheStatus(ctx context.Context, providerIntentID, st string) {
	sessionKey := fmt.Sprintf("payment_intent:%s", providerIntentID)
	if err := s.Redis.HSet(ctx, sessionKey, "status", st).Err(); err != nil {
		slog.Warn("settlement: session cache update failed", "intent", providerIntentID, "error", err)
	}
}
