package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	IntentStatusCreated        = "created"
	IntentStatusSucceeded      = "succeeded"
	IntentStatusFailed         = "failed"
	IntentStatusRequiresRefund = "requires_refund"
)

// PaymentIntentRecord mirrors the provider-side intent. It is created when
// a quote is requested and transitions out of "created" exactly once,
// driven only by a verified provider callback. An intent the provider never
// calls back about stays in "created" forever; that is an accepted
// abandoned state since no inventory was committed for it. An intent paid
// for after inventory ran out lands in "requires_refund" so the shortfall
// stays visible after any cached session expires.
type PaymentIntentRecord struct {
	ProviderIntentID string    `db:"provider_intent_id" json:"provider_intent_id"`
	EventID          string    `db:"event_id" json:"event_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	TicketTypeID     string    `db:"ticket_type_id" json:"ticket_type_id"`
	Quantity         int       `db:"quantity" json:"quantity"`
	PromoCode        string    `db:"promo_code" json:"promo_code,omitempty"`
	Amount           int64     `db:"amount" json:"amount"` // minor units
	Currency         string    `db:"currency" json:"currency"`
	Status           string    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Order is created exactly once per successful payment intent. The unique
// PaymentProviderID column is the idempotency anchor for webhook
// redelivery.
type Order struct {
	ID                string          `db:"id" json:"id"`
	EventID           string          `db:"event_id" json:"event_id"`
	UserID            string          `db:"user_id" json:"user_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	PaymentStatus     string          `db:"payment_status" json:"payment_status"`
	PaymentProviderID string          `db:"payment_provider_id" json:"payment_provider_id"`
	PurchasedAt       time.Time       `db:"purchased_at" json:"purchased_at"`
}
