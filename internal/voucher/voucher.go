// internal/voucher/voucher.go
//
// Voucher discount calculation.
//
// Context
// -------
// `Apply` is deliberately a pure function: the checkout flow may call it
// any number of times while the user edits their cart, and nothing is
// committed until the payment provider confirms the session.  Incrementing
// `uses` happens in the webhook path, outside this package.
//
// Amounts use shopspring/decimal because the price columns are
// DECIMAL(10,2) and float math drifts on repeated percentage discounts.
// Results are rounded to two decimal places, half away from zero.
package voucher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Voucher types.
const (
	TypePercentage = "percentage"
	TypeFixed      = "fixed"
)

// Validation failure conditions, surfaced by name so the UI can explain
// exactly why a code was refused.
const (
	ReasonInactive  = "inactive"
	ReasonExhausted = "exhausted"
	ReasonExpired   = "expired"
	ReasonBadType   = "bad_type"
)

// ValidationError names the condition that made a voucher unusable.
type ValidationError struct {
	Code   string // voucher code as entered
	Reason string // one of the Reason constants
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("voucher %q rejected: %s", e.Code, e.Reason)
}

// Voucher mirrors one row in the persistent `voucher` table.  `uses` is
// written only by the redemption commit, which lives outside this panel.
type Voucher struct {
	ID        uint64          `db:"id"`
	Code      string          `db:"code"`
	Type      string          `db:"type"`
	Discount  decimal.Decimal `db:"discount"`
	Active    bool            `db:"active"`
	MaxUses   *int            `db:"max_uses"` // NULL means unlimited
	Uses      int             `db:"uses"`
	ExpiresAt *time.Time      `db:"expires_at"`
	CreatedAt time.Time       `db:"created_at"`
}

// Result carries the discounted price and the amount saved.
type Result struct {
	DiscountedAmount decimal.Decimal
	Savings          decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Apply validates v against now and computes the discounted amount:
//
//	percentage:  amount * (1 - discount/100)
//	fixed:       max(0, amount - discount)
//
// both rounded to two decimal places.  It never mutates v.
func Apply(v *Voucher, amount decimal.Decimal, now time.Time) (Result, error) {
	if !v.Active {
		return Result{}, &ValidationError{Code: v.Code, Reason: ReasonInactive}
	}
	if v.MaxUses != nil && v.Uses >= *v.MaxUses {
		return Result{}, &ValidationError{Code: v.Code, Reason: ReasonExhausted}
	}
	if v.ExpiresAt != nil && !v.ExpiresAt.After(now) {
		return Result{}, &ValidationError{Code: v.Code, Reason: ReasonExpired}
	}

	var discounted decimal.Decimal
	switch v.Type {
	case TypePercentage:
		factor := decimal.NewFromInt(1).Sub(v.Discount.Div(hundred))
		discounted = amount.Mul(factor)
	case TypeFixed:
		discounted = amount.Sub(v.Discount)
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}
	default:
		return Result{}, &ValidationError{Code: v.Code, Reason: ReasonBadType}
	}

	discounted = discounted.Round(2)
	return Result{
		DiscountedAmount: discounted,
		Savings:          amount.Sub(discounted).Round(2),
	}, nil
}
