package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketType is a priced admission category with finite inventory.
// QuantitySold is owned exclusively by the inventory ledger and must only
// be changed through its conditional updates.
type TicketType struct {
	ID            string          `db:"id" json:"id"`
	EventID       string          `db:"event_id" json:"event_id"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Currency      string          `db:"currency" json:"currency"`
	QuantityTotal int             `db:"quantity_total" json:"quantity_total"`
	QuantitySold  int             `db:"quantity_sold" json:"quantity_sold"`
	MaxPerUser    int             `db:"max_per_user" json:"max_per_user,omitempty"`
	SalesStart    *time.Time      `db:"sales_start" json:"sales_start,omitempty"`
	SalesEnd      *time.Time      `db:"sales_end" json:"sales_end,omitempty"`
}

// Remaining reports how many tickets are still unsold.
func (t *TicketType) Remaining() int {
	return t.QuantityTotal - t.QuantitySold
}

// OnSale reports whether the sales window is open at the given time.
// Missing bounds leave that side of the window open.
func (t *TicketType) OnSale(now time.Time) bool {
	if t.SalesStart != nil && now.Before(*t.SalesStart) {
		return false
	}
	if t.SalesEnd != nil && now.After(*t.SalesEnd) {
		return false
	}
	return true
}

// Ticket is a single admission issued at settlement time. IsScanned
// transitions false to true exactly once and never reverses; the
// redemption gate owns that transition.
type Ticket struct {
	ID           string     `db:"id" json:"id"`
	OrderID      string     `db:"order_id" json:"order_id"`
	EventID      string     `db:"event_id" json:"event_id"`
	TicketTypeID string     `db:"ticket_type_id" json:"ticket_type_id"`
	OwnerUserID  string     `db:"owner_user_id" json:"owner_user_id"`
	QRCode       string     `db:"qr_code" json:"qr_code"`
	IsScanned    bool       `db:"is_scanned" json:"is_scanned"`
	ScannedAt    *time.Time `db:"scanned_at" json:"scanned_at,omitempty"`
}
