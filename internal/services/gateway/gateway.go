package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types delivered on the provider webhook. Only the succeeded event
// drives ticket issuance; everything else is acknowledged and ignored.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// IntentRequest describes a charge to create on the provider side. The
// idempotency key is client-generated so a retried call with the same key
// never double-charges.
type IntentRequest struct {
	Amount         int64             `json:"amount"` // minor units
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"-"`
	Metadata       map[string]string `json:"metadata"`
}

// Intent is the provider-side representation of a pending charge.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

// Event is the parsed form of a provider webhook payload.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// PaymentNotice is a transaction notification received on the provider's
// push channel. Pushed notices are advisory; the settlement processor
// re-verifies them against the provider's check-intent API.
type PaymentNotice struct {
	ProviderIntentID string          `json:"provider_intent_id"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	ReceivedAt       time.Time       `json:"received_at"`
}

// PaymentGateway is the boundary to the external payment provider. The
// core treats it as unreliable: create calls are retried behind a circuit
// breaker with a stable idempotency key and webhook payloads are never
// trusted before signature verification.
type PaymentGateway interface {
	// CreateIntent creates a provider payment intent.
	CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error)

	// CheckIntent fetches the authoritative state of an intent.
	CheckIntent(ctx context.Context, providerIntentID string) (*Intent, error)

	// VerifySignature checks a webhook body against the configured secret.
	VerifySignature(body []byte, signature string) bool

	// SetNoticeChannel sets the channel receiving push notifications.
	SetNoticeChannel(ch chan *PaymentNotice)

	// Close gracefully shuts down provider connections.
	Close(ctx context.Context) error
}
