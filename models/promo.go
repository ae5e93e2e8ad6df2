package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DiscountPercent = "percent"
	DiscountAmount  = "amount"
)

// PromoCode is a discount token scoped to one event. UsesSoFar is counted
// only when the associated payment settles, never at quote time, and is
// capped atomically at MaxUses.
type PromoCode struct {
	Code          string          `db:"code" json:"code"`
	EventID       string          `db:"event_id" json:"event_id"`
	DiscountType  string          `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discount_value"`
	MaxUses       int             `db:"max_uses" json:"max_uses,omitempty"`
	UsesSoFar     int             `db:"uses_so_far" json:"uses_so_far"`
	ExpiresAt     *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
}

// Usable reports whether the code can still be applied at the given time.
// A MaxUses of zero means unlimited.
func (p *PromoCode) Usable(now time.Time) bool {
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	if p.MaxUses > 0 && p.UsesSoFar >= p.MaxUses {
		return false
	}
	return true
}

// Apply returns the discounted charge, floored at zero.
func (p *PromoCode) Apply(amount decimal.Decimal) decimal.Decimal {
	var discounted decimal.Decimal
	switch p.DiscountType {
	case DiscountPercent:
		factor := decimal.NewFromInt(1).Sub(p.DiscountValue.Div(decimal.NewFromInt(100)))
		discounted = amount.Mul(factor)
	case DiscountAmount:
		discounted = amount.Sub(p.DiscountValue)
	default:
		return amount
	}
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted
}
