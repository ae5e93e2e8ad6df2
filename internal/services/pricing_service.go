package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ticket-settlement/internal/status"
	"ticket-settlement/internal/store"
	"ticket-settlement/models"
)

// PricingService computes the charge for a requested purchase. It is a
// pure quoting component: it never counts promo usage and never reserves
// inventory. Those happen only on confirmed settlement so abandoned quotes
// cannot starve real buyers.
type PricingService struct {
	store            store.Store
	defaultCurrency  string
	currencyExponent int32
}

func NewPricingService(st store.Store, defaultCurrency string, currencyExponent int) *PricingService {
	return &PricingService{
		store:            st,
		defaultCurrency:  defaultCurrency,
		currencyExponent: int32(currencyExponent),
	}
}

// ComputeCharge returns the amount in the currency's minor units, rounded
// half-even, since the provider requires integer minor-unit amounts. The
// boolean reports whether the promo code actually discounted the charge;
// an ignored code must not be carried forward to settlement, where it
// would count a use no discount was given for.
//
// The inventory check here is optimistic: it rejects obviously doomed
// purchases early but is re-verified atomically at settlement. A stale,
// mistyped, expired or exhausted promo code is silently ignored rather
// than rejected so it never blocks checkout.
func (s *PricingService) ComputeCharge(ctx context.Context, tt *models.TicketType, quantity int, promoCode string) (int64, string, bool, error) {
	if quantity < 1 {
		return 0, "", false, status.ErrInvalidQuantity
	}
	if tt.MaxPerUser > 0 && quantity > tt.MaxPerUser {
		return 0, "", false, fmt.Errorf("%w: at most %d per user", status.ErrInvalidQuantity, tt.MaxPerUser)
	}
	if !tt.OnSale(time.Now()) {
		return 0, "", false, status.ErrSalesClosed
	}
	if tt.QuantitySold+quantity > tt.QuantityTotal {
		return 0, "", false, status.ErrInsufficientInventory
	}

	base := tt.Price.Mul(decimal.NewFromInt(int64(quantity)))
	amount := base
	promoApplied := false

	if promoCode != "" {
		promo, err := s.store.FindPromo(ctx, promoCode, tt.EventID)
		switch {
		case err == nil:
			if promo.Usable(time.Now()) {
				amount = promo.Apply(base)
				promoApplied = true
			}
		case errors.Is(err, status.ErrNotFound):
			// unknown code, ignored
		default:
			return 0, "", false, err
		}
	}

	currency := tt.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	minor := amount.Shift(s.currencyExponent).RoundBank(0).IntPart()
	return minor, currency, promoApplied, nil
}
