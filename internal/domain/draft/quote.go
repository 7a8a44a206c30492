package draft

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

// QuoteLine is the priced view of one draft line.
type QuoteLine struct {
	ProductID string
	Quantity  int
	pricing.Amounts
}

// Quote is the cart view of a draft: per-line amounts and order totals,
// computed exactly as they will be once the draft becomes an order.
type Quote struct {
	Lines    []QuoteLine
	Subtotal decimal.Decimal
	Total    decimal.Decimal
}

// Price validates d and prices every line.
func Price(d *Draft) (*Quote, error) {
	lines, err := priced(d)
	if err != nil {
		return nil, err
	}

	q := &Quote{Lines: make([]QuoteLine, len(lines))}
	for i, l := range lines {
		q.Lines[i] = QuoteLine{
			ProductID: l.ProductID,
			Quantity:  l.Ordered,
			Amounts: pricing.Amounts{
				NetUnitPrice:  l.NetUnitPrice,
				SubtotalGross: l.SubtotalGross,
				SubtotalNet:   l.SubtotalNet,
			},
		}
	}
	q.Subtotal, q.Total = order.Totals(lines)
	return q, nil
}

func priced(d *Draft) ([]order.Line, error) {
	lines := d.orderLines()
	if err := order.ValidateLines(lines); err != nil {
		return nil, err
	}
	for i := range lines {
		if err := lines[i].Reprice(); err != nil {
			return nil, err
		}
	}
	return lines, nil
}
