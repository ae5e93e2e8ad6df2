// Package store is the persistence layer on top of the pocketbase app
// database. Plain lookups and inserts go through the record API; every
// mutation of a shared counter (quantity_sold, uses_so_far, is_scanned)
// goes through a single conditional UPDATE checked by rows affected, so
// concurrent requests can never lose updates to each other.
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pocketbase/pocketbase/core"

	"ticket-settlement/models"
)

// Store is the persistence surface the services depend on.
type Store interface {
	// Inventory ledger. CommitInventory is the only writer of
	// quantity_sold.
	TicketType(ctx context.Context, id string) (*models.TicketType, error)
	CommitInventory(ctx context.Context, ticketTypeID string, quantity int) error

	// Promo codes.
	FindPromo(ctx context.Context, code, eventID string) (*models.PromoCode, error)
	ConsumePromoUse(ctx context.Context, code, eventID string) (bool, error)

	// Payment intents.
	CreateIntent(ctx context.Context, rec *models.PaymentIntentRecord) error
	IntentByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntentRecord, error)
	MarkIntentStatus(ctx context.Context, providerIntentID, st string) error

	// Orders and tickets.
	OrderByProviderID(ctx context.Context, providerIntentID string) (*models.Order, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	CreateTicket(ctx context.Context, t *models.Ticket) error
	TicketByQR(ctx context.Context, qrCode string) (*models.Ticket, error)
	TicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error)
	ConsumeTicket(ctx context.Context, qrCode string) (bool, error)

	// Atomic runs fn inside a single database transaction.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

// DBStore implements Store against a pocketbase app (or a transactional
// app handle inside Atomic).
type DBStore struct {
	app core.App
}

func New(app core.App) *DBStore {
	return &DBStore{app: app}
}

func (s *DBStore) Atomic(_ context.Context, fn func(tx Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(New(txApp))
	})
}

// notFound maps lookup misses onto the shared sentinel.
func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
