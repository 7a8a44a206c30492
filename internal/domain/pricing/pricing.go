// Package pricing implements the cascading four-tier discount engine shared by
// the cart, the warehouse screens and the reconciliation flow.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const (
	// TierCount is the number of cascading discount tiers stored on every line.
	// Tiers 1-2 are catalog/line discounts, tiers 3-4 are client-level
	// (prompt payment and commercial) discounts.
	TierCount = 4

	// LinePlaces is the rounding scale of per-line monetary values.
	LinePlaces int32 = 4
	// TotalPlaces is the rounding scale of order-level aggregates.
	TotalPlaces int32 = 2
)

var (
	// ErrInvalidDiscount is returned when a discount tier is outside [0,100].
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrInvalidPrice is returned when a base price is negative.
	ErrInvalidPrice = errors.New("invalid price")
)

var hundred = decimal.NewFromInt(100)

// InvalidDiscountError reports the offending tier (1-based) and its value.
type InvalidDiscountError struct {
	Tier  int
	Value decimal.Decimal
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount d%d=%s must be within [0,100]", e.Tier, e.Value)
}

func (e *InvalidDiscountError) Is(target error) bool { return target == ErrInvalidDiscount }

// InvalidPriceError reports a negative base price.
type InvalidPriceError struct {
	Price decimal.Decimal
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("price %s must not be negative", e.Price)
}

func (e *InvalidPriceError) Is(target error) bool { return target == ErrInvalidPrice }

// PrecisionError reports a price or tier carrying more than LinePlaces
// decimals. Tier is 0 for the base price.
type PrecisionError struct {
	Tier  int
	Value decimal.Decimal
}

func (e *PrecisionError) Error() string {
	if e.Tier == 0 {
		return fmt.Sprintf("price %s has more than %d decimals", e.Value, LinePlaces)
	}
	return fmt.Sprintf("discount d%d=%s has more than %d decimals", e.Tier, e.Value, LinePlaces)
}

func (e *PrecisionError) Is(target error) bool {
	if e.Tier == 0 {
		return target == ErrInvalidPrice
	}
	return target == ErrInvalidDiscount
}

// CheckPrecision rejects a base price or tier that would lose digits when
// stored at LinePlaces. Trailing zeros are fine.
func CheckPrecision(base decimal.Decimal, tiers Tiers) error {
	if !base.Equal(base.Round(LinePlaces)) {
		return &PrecisionError{Value: base}
	}
	for i, d := range tiers {
		if !d.Equal(d.Round(LinePlaces)) {
			return &PrecisionError{Tier: i + 1, Value: d}
		}
	}
	return nil
}

// Tiers holds the four discount percentages d1..d4, applied in index order.
type Tiers [TierCount]decimal.Decimal

// NewTiers builds Tiers from whole or fractional percentages.
func NewTiers(d1, d2, d3, d4 decimal.Decimal) Tiers {
	return Tiers{d1, d2, d3, d4}
}

// Validate checks that every tier lies within [0,100].
func (t Tiers) Validate() error {
	for i, d := range t {
		if d.IsNegative() || d.GreaterThan(hundred) {
			return &InvalidDiscountError{Tier: i + 1, Value: d}
		}
	}
	return nil
}

// NetPrice applies the tiers to base in order d1 -> d4 and rounds the result
// to LinePlaces:
//
//	net = base * (1 - d1/100) * (1 - d2/100) * (1 - d3/100) * (1 - d4/100)
func NetPrice(base decimal.Decimal, tiers Tiers) (decimal.Decimal, error) {
	if base.IsNegative() {
		return decimal.Zero, &InvalidPriceError{Price: base}
	}
	if err := tiers.Validate(); err != nil {
		return decimal.Zero, err
	}

	// Shift(-2) divides by 100 exactly; Div would truncate at DivisionPrecision.
	net := base
	for _, d := range tiers {
		net = net.Mul(hundred.Sub(d)).Shift(-2)
	}
	return net.Round(LinePlaces), nil
}

// Amounts holds the derived monetary values of a single line.
type Amounts struct {
	NetUnitPrice  decimal.Decimal
	SubtotalGross decimal.Decimal
	SubtotalNet   decimal.Decimal
}

// LineAmounts computes the net unit price and both line subtotals for the
// given quantity. Every value is rounded to LinePlaces.
func LineAmounts(base decimal.Decimal, tiers Tiers, quantity int) (Amounts, error) {
	net, err := NetPrice(base, tiers)
	if err != nil {
		return Amounts{}, err
	}

	qty := decimal.NewFromInt(int64(quantity))
	return Amounts{
		NetUnitPrice:  net,
		SubtotalGross: base.Mul(qty).Round(LinePlaces),
		SubtotalNet:   net.Mul(qty).Round(LinePlaces),
	}, nil
}

// Aggregate sums already line-rounded values and rounds the sum to
// TotalPlaces. Rounding happens once, after summation, so per-line rounding
// drift does not accumulate across many lines.
func Aggregate(values ...decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, values...).Round(TotalPlaces)
}
