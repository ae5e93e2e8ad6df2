package store

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

func (s *DBStore) TicketType(_ context.Context, id string) (*models.TicketType, error) {
	rec, err := s.app.FindRecordById("ticket_types", id)
	if err != nil {
		if notFound(err) {
			return nil, status.ErrUnknownTicketType
		}
		return nil, fmt.Errorf("store: find ticket type %s: %w", id, err)
	}

	tt := &models.TicketType{
		ID:            rec.Id,
		EventID:       rec.GetString("event_id"),
		Name:          rec.GetString("name"),
		Price:         decimal.NewFromFloat(rec.GetFloat("price")),
		Currency:      rec.GetString("currency"),
		QuantityTotal: rec.GetInt("quantity_total"),
		QuantitySold:  rec.GetInt("quantity_sold"),
		MaxPerUser:    rec.GetInt("max_per_user"),
	}
	if dt := rec.GetDateTime("sales_start"); !dt.IsZero() {
		t := dt.Time()
		tt.SalesStart = &t
	}
	if dt := rec.GetDateTime("sales_end"); !dt.IsZero() {
		t := dt.Time()
		tt.SalesEnd = &t
	}
	return tt, nil
}

// CommitInventory increments quantity_sold by quantity only while the
// result stays within quantity_total. The capacity check and the increment
// are one statement; two settlements racing over the last tickets cannot
// both pass.
func (s *DBStore) CommitInventory(_ context.Context, ticketTypeID string, quantity int) error {
	res, err := s.app.DB().NewQuery(
		`UPDATE ticket_types
		    SET quantity_sold = quantity_sold + {:q}
		  WHERE id = {:id} AND quantity_sold + {:q} <= quantity_total`,
	).Bind(dbx.Params{"q": quantity, "id": ticketTypeID}).Execute()
	if err != nil {
		return fmt.Errorf("store: commit inventory %s: %w", ticketTypeID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: commit inventory %s: rows affected: %w", ticketTypeID, err)
	}
	if n == 0 {
		return status.ErrInsufficientInventory
	}
	return nil
}
