package order

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

// SetFound records the found quantity of a line. Quantities above the ordered
// amount are accepted: overstock is surfaced later, not rejected here.
func (o *Order) SetFound(productID string, quantity int) error {
	if quantity < 0 {
		return &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	l, ok := o.Line(productID)
	if !ok {
		return &LineNotFoundError{ProductID: productID}
	}
	l.Found = FoundQuantity(quantity)
	return nil
}

// ResetAll returns every line to the untouched state.
func (o *Order) ResetAll() {
	for i := range o.Lines {
		o.Lines[i].Found = Found{}
	}
}

// AllTouched reports whether every line had its found quantity explicitly set.
func (o *Order) AllTouched() bool {
	return len(o.Untouched()) == 0
}

// Untouched returns the product ids whose found quantity was never set.
func (o *Order) Untouched() []string {
	var ids []string
	for _, l := range o.Lines {
		if !l.Found.Set {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// Overstocked returns the lines where more was found than ordered.
func (o *Order) Overstocked() []Line {
	var out []Line
	for _, l := range o.Lines {
		if l.Pending() < 0 {
			out = append(out, l)
		}
	}
	return out
}

// Reprice recomputes the derived amounts of l from its price, tiers and
// ordered quantity.
func (l *Line) Reprice() error {
	a, err := pricing.LineAmounts(l.UnitPrice, l.Tiers, l.Ordered)
	if err != nil {
		return errors.Wrapf(err, "price product %s", l.ProductID)
	}
	l.NetUnitPrice = a.NetUnitPrice
	l.SubtotalGross = a.SubtotalGross
	l.SubtotalNet = a.SubtotalNet
	return nil
}

// Recompute reprices every line and refreshes the cached order totals.
func (o *Order) Recompute() error {
	for i := range o.Lines {
		if err := o.Lines[i].Reprice(); err != nil {
			return err
		}
	}
	o.Subtotal, o.Total = Totals(o.Lines)
	return nil
}

// Totals aggregates line subtotals into the order subtotal and total.
func Totals(lines []Line) (subtotal, total decimal.Decimal) {
	gross := make([]decimal.Decimal, len(lines))
	net := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		gross[i] = l.SubtotalGross
		net[i] = l.SubtotalNet
	}
	return pricing.Aggregate(gross...), pricing.Aggregate(net...)
}

// ValidateLines checks the structural invariants of a line set: at least one
// line, unique product ids, positive ordered quantities, non-negative prices
// and discount tiers within range, none finer than pricing.LinePlaces.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return ErrEmptyLines
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, dup := seen[l.ProductID]; dup {
			return &DuplicateProductError{ProductID: l.ProductID}
		}
		seen[l.ProductID] = struct{}{}

		if l.Ordered < 1 {
			return &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Ordered}
		}
		if l.Found.Value < 0 {
			return &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Found.Value}
		}
		if _, err := pricing.NetPrice(l.UnitPrice, l.Tiers); err != nil {
			return errors.Wrapf(err, "product %s", l.ProductID)
		}
		if err := pricing.CheckPrecision(l.UnitPrice, l.Tiers); err != nil {
			return errors.Wrapf(err, "product %s", l.ProductID)
		}
	}
	return nil
}
