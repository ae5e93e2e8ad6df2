package store

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

func (s *DBStore) CreateIntent(ctx context.Context, m *models.PaymentIntentRecord) error {
	col, err := s.app.FindCollectionByNameOrId("payment_intents")
	if err != nil {
		return fmt.Errorf("store: payment_intents collection: %w", err)
	}

	rec := core.NewRecord(col)
	rec.Set("provider_intent_id", m.ProviderIntentID)
	rec.Set("event_id", m.EventID)
	rec.Set("user_id", m.UserID)
	rec.Set("ticket_type_id", m.TicketTypeID)
	rec.Set("quantity", m.Quantity)
	rec.Set("promo_code", m.PromoCode)
	rec.Set("amount", m.Amount)
	rec.Set("currency", m.Currency)
	rec.Set("status", m.Status)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("store: create intent %s: %w", m.ProviderIntentID, err)
	}
	return nil
}

func (s *DBStore) IntentByProviderID(_ context.Context, providerIntentID string) (*models.PaymentIntentRecord, error) {
	rec, err := s.app.FindFirstRecordByFilter(
		"payment_intents",
		"provider_intent_id = {:pid}",
		dbx.Params{"pid": providerIntentID},
	)
	if err != nil {
		if notFound(err) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("store: find intent %s: %w", providerIntentID, err)
	}

	return &models.PaymentIntentRecord{
		ProviderIntentID: rec.GetString("provider_intent_id"),
		EventID:          rec.GetString("event_id"),
		UserID:           rec.GetString("user_id"),
		TicketTypeID:     rec.GetString("ticket_type_id"),
		Quantity:         rec.GetInt("quantity"),
		PromoCode:        rec.GetString("promo_code"),
		Amount:           int64(rec.GetInt("amount")),
		Currency:         rec.GetString("currency"),
		Status:           rec.GetString("status"),
		CreatedAt:        rec.GetDateTime("created").Time(),
	}, nil
}

// MarkIntentStatus moves an intent out of "created" exactly once. The
// guard keeps a late failed callback from reversing a settled intent.
func (s *DBStore) MarkIntentStatus(_ context.Context, providerIntentID, st string) error {
	_, err := s.app.DB().NewQuery(
		`UPDATE payment_intents
		    SET status = {:st}
		  WHERE provider_intent_id = {:pid} AND status = 'created'`,
	).Bind(dbx.Params{"st": st, "pid": providerIntentID}).Execute()
	if err != nil {
		return fmt.Errorf("store: mark intent %s %s: %w", providerIntentID, st, err)
	}
	return nil
}

func (s *DBStore) OrderByProviderID(_ context.Context, providerIntentID string) (*models.Order, error) {
	rec, err := s.app.FindFirstRecordByFilter(
		"orders",
		"payment_provider_id = {:pid}",
		dbx.Params{"pid": providerIntentID},
	)
	if err != nil {
		if notFound(err) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("store: find order for intent %s: %w", providerIntentID, err)
	}
	return orderFromRecord(rec), nil
}

func orderFromRecord(rec *core.Record) *models.Order {
	return &models.Order{
		ID:                rec.Id,
		EventID:           rec.GetString("event_id"),
		UserID:            rec.GetString("user_id"),
		Amount:            decimal.NewFromFloat(rec.GetFloat("amount")),
		Currency:          rec.GetString("currency"),
		PaymentStatus:     rec.GetString("payment_status"),
		PaymentProviderID: rec.GetString("payment_provider_id"),
		PurchasedAt:       rec.GetDateTime("purchased_at").Time(),
	}
}

// CreateOrder inserts the order and backfills the generated id. The unique
// index on payment_provider_id makes a duplicate insert fail instead of
// issuing twice.
func (s *DBStore) CreateOrder(ctx context.Context, o *models.Order) error {
	col, err := s.app.FindCollectionByNameOrId("orders")
	if err != nil {
		return fmt.Errorf("store: orders collection: %w", err)
	}

	amount, _ := o.Amount.Float64()

	rec := core.NewRecord(col)
	rec.Set("event_id", o.EventID)
	rec.Set("user_id", o.UserID)
	rec.Set("amount", amount)
	rec.Set("currency", o.Currency)
	rec.Set("payment_status", o.PaymentStatus)
	rec.Set("payment_provider_id", o.PaymentProviderID)
	rec.Set("purchased_at", types.NowDateTime())

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("store: create order for intent %s: %w", o.PaymentProviderID, err)
	}

	o.ID = rec.Id
	o.PurchasedAt = rec.GetDateTime("purchased_at").Time()
	return nil
}

func (s *DBStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	col, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return fmt.Errorf("store: tickets collection: %w", err)
	}

	rec := core.NewRecord(col)
	rec.Set("order_id", t.OrderID)
	rec.Set("event_id", t.EventID)
	rec.Set("ticket_type_id", t.TicketTypeID)
	rec.Set("owner_user_id", t.OwnerUserID)
	rec.Set("qr_code", t.QRCode)
	rec.Set("is_scanned", false)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("store: create ticket for order %s: %w", t.OrderID, err)
	}

	t.ID = rec.Id
	return nil
}

func ticketFromRecord(rec *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:           rec.Id,
		OrderID:      rec.GetString("order_id"),
		EventID:      rec.GetString("event_id"),
		TicketTypeID: rec.GetString("ticket_type_id"),
		OwnerUserID:  rec.GetString("owner_user_id"),
		QRCode:       rec.GetString("qr_code"),
		IsScanned:    rec.GetBool("is_scanned"),
	}
	if dt := rec.GetDateTime("scanned_at"); !dt.IsZero() {
		ts := dt.Time()
		t.ScannedAt = &ts
	}
	return t
}

func (s *DBStore) TicketByQR(_ context.Context, qrCode string) (*models.Ticket, error) {
	rec, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"qr_code = {:qr}",
		dbx.Params{"qr": qrCode},
	)
	if err != nil {
		if notFound(err) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("store: find ticket by qr: %w", err)
	}
	return ticketFromRecord(rec), nil
}

func (s *DBStore) TicketsByOrder(_ context.Context, orderID string) ([]*models.Ticket, error) {
	recs, err := s.app.FindRecordsByFilter(
		"tickets",
		"order_id = {:order}",
		"-created",
		0,
		0,
		dbx.Params{"order": orderID},
	)
	if err != nil {
		return nil, fmt.Errorf("store: find tickets for order %s: %w", orderID, err)
	}

	tickets := make([]*models.Ticket, 0, len(recs))
	for _, rec := range recs {
		tickets = append(tickets, ticketFromRecord(rec))
	}
	return tickets, nil
}

// ConsumeTicket flips is_scanned false to true in one conditional UPDATE.
// Of two concurrent scans exactly one sees a row affected.
func (s *DBStore) ConsumeTicket(_ context.Context, qrCode string) (bool, error) {
	res, err := s.app.DB().NewQuery(
		`UPDATE tickets
		    SET is_scanned = TRUE, scanned_at = {:now}
		  WHERE qr_code = {:qr} AND is_scanned = FALSE`,
	).Bind(dbx.Params{"now": types.NowDateTime().String(), "qr": qrCode}).Execute()
	if err != nil {
		return false, fmt.Errorf("store: consume ticket: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: consume ticket: rows affected: %w", err)
	}
	return n > 0, nil
}
