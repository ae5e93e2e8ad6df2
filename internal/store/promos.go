package store

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

func (s *DBStore) FindPromo(_ context.Context, code, eventID string) (*models.PromoCode, error) {
	rec, err := s.app.FindFirstRecordByFilter(
		"promo_codes",
		"code = {:code} && event_id = {:event}",
		dbx.Params{"code": code, "event": eventID},
	)
	if err != nil {
		if notFound(err) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("store: find promo %s: %w", code, err)
	}

	p := &models.PromoCode{
		Code:          rec.GetString("code"),
		EventID:       rec.GetString("event_id"),
		DiscountType:  rec.GetString("discount_type"),
		DiscountValue: decimal.NewFromFloat(rec.GetFloat("discount_value")),
		MaxUses:       rec.GetInt("max_uses"),
		UsesSoFar:     rec.GetInt("uses_so_far"),
	}
	if dt := rec.GetDateTime("expires_at"); !dt.IsZero() {
		t := dt.Time()
		p.ExpiresAt = &t
	}
	return p, nil
}

// ConsumePromoUse counts one use, capped at max_uses in the same
// statement. A false result means the code was exhausted by a concurrent
// settlement; usage counting never exceeds the cap.
func (s *DBStore) ConsumePromoUse(_ context.Context, code, eventID string) (bool, error) {
	res, err := s.app.DB().NewQuery(
		`UPDATE promo_codes
		    SET uses_so_far = uses_so_far + 1
		  WHERE code = {:code} AND event_id = {:event}
		    AND (max_uses = 0 OR uses_so_far < max_uses)`,
	).Bind(dbx.Params{"code": code, "event": eventID}).Execute()
	if err != nil {
		return false, fmt.Errorf("store: consume promo %s: %w", code, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: consume promo %s: rows affected: %w", code, err)
	}
	return n > 0, nil
}
