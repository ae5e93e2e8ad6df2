package status

import "errors"

var (
	// Input errors. Rejected synchronously, client-correctable.
	ErrInvalidQuantity       = errors.New("pricing: quantity must be at least 1")
	ErrUnknownTicketType     = errors.New("pricing: unknown ticket type")
	ErrSalesClosed           = errors.New("pricing: ticket type is not on sale")
	ErrInsufficientInventory = errors.New("inventory: not enough tickets remaining")

	// Gateway errors. Unavailable is safe to retry with the same
	// idempotency key, rejected is terminal.
	ErrGatewayUnavailable = errors.New("gateway: provider unavailable")
	ErrGatewayRejected    = errors.New("gateway: provider rejected the request")

	// Integrity errors. Dropped and logged, never processed.
	ErrInvalidSignature = errors.New("webhook: signature verification failed")
	ErrMalformedEvent   = errors.New("webhook: malformed event payload")

	ErrNotFound = errors.New("store: record not found")
)
