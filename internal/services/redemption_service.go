package services

import (
	"context"
	"errors"
	"time"

	"ticket-settlement/internal/status"
	"ticket-settlement/internal/store"
	"ticket-settlement/models"
	"ticket-settlement/monitoring"
)

// Redemption reasons. These are expected business outcomes, not faults;
// only storage errors propagate as errors.
const (
	ReasonNotFound    = "not found"
	ReasonAlreadyUsed = "already used"
)

type RedemptionResult struct {
	Valid  bool           `json:"valid"`
	Reason string         `json:"reason,omitempty"`
	Ticket *models.Ticket `json:"ticket,omitempty"`
}

// RedemptionService marks tickets used at the door, exactly once.
type RedemptionService struct {
	store    store.Store
	notifier Notifier
}

func NewRedemptionService(st store.Store, notifier Notifier) *RedemptionService {
	return &RedemptionService{
		store:    st,
		notifier: notifier,
	}
}

// Redeem consumes a ticket by qr code. The scanned flag flips through a
// single conditional update in the store, so two simultaneous scans of the
// same code produce exactly one valid result and one "already used".
func (s *RedemptionService) Redeem(ctx context.Context, qrCode string) (*RedemptionResult, error) {
	ticket, err := s.store.TicketByQR(ctx, qrCode)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			monitoring.TrackRedemption("not_found")
			return &RedemptionResult{Valid: false, Reason: ReasonNotFound}, nil
		}
		return nil, err
	}

	if ticket.IsScanned {
		monitoring.TrackRedemption("already_used")
		return &RedemptionResult{Valid: false, Reason: ReasonAlreadyUsed}, nil
	}

	ok, err := s.store.ConsumeTicket(ctx, qrCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost the race to a concurrent scan
		monitoring.TrackRedemption("already_used")
		return &RedemptionResult{Valid: false, Reason: ReasonAlreadyUsed}, nil
	}

	now := time.Now()
	ticket.IsScanned = true
	ticket.ScannedAt = &now

	monitoring.TrackRedemption("redeemed")
	s.notifier.TicketRedeemed(ticket)

	return &RedemptionResult{Valid: true, Ticket: ticket}, nil
}
