package services

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"ticket-settlement/models"
)

// Notifier is the outbound event surface of the core. Delivery is
// fire-and-forget; a failed publish never rolls back issuance or
// redemption.
type Notifier interface {
	TicketsIssued(userID string, order *models.Order, qrCodes []string)
	TicketRedeemed(t *models.Ticket)
	OpsAlert(message string, fields map[string]any)
}

// NotifyService publishes core events over PubNub for the delivery
// collaborator.
type NotifyService struct {
	PubNub     *pubnub.PubNub
	opsChannel string
}

func NewNotifyService(pn *pubnub.PubNub, opsChannel string) *NotifyService {
	return &NotifyService{
		PubNub:     pn,
		opsChannel: opsChannel,
	}
}

func (s *NotifyService) TicketsIssued(userID string, order *models.Order, qrCodes []string) {
	go s.publish(fmt.Sprintf("user-%s", userID), map[string]any{
		"type":     "tickets_issued",
		"order_id": order.ID,
		"event_id": order.EventID,
		"amount":   order.Amount.String(),
		"currency": order.Currency,
		"qr_codes": qrCodes,
	})
}

func (s *NotifyService) TicketRedeemed(t *models.Ticket) {
	go s.publish(fmt.Sprintf("user-%s", t.OwnerUserID), map[string]any{
		"type":      "ticket_redeemed",
		"ticket_id": t.ID,
		"event_id":  t.EventID,
	})
}

func (s *NotifyService) OpsAlert(message string, fields map[string]any) {
	payload := map[string]any{"type": "ops_alert", "message": message}
	for k, v := range fields {
		payload[k] = v
	}
	go s.publish(s.opsChannel, payload)
}

func (s *NotifyService) publish(channel string, message map[string]any) {
	_, _, err := s.PubNub.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		slog.Error("notify: publish failed", "channel", channel, "type", message["type"], "error", err)
	}
}
