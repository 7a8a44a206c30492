package pipeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

var (
	t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(15 * time.Minute)
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newLine(productID, price string, ordered int, tiers ...string) order.Line {
	var tr pricing.Tiers
	for i := range tr {
		tr[i] = decimal.Zero
		if i < len(tiers) {
			tr[i] = d(tiers[i])
		}
	}
	return order.Line{
		ProductID:   productID,
		Description: "product " + productID,
		UnitPrice:   d(price),
		Tiers:       tr,
		Ordered:     ordered,
	}
}

func found(l order.Line, qty int) order.Line {
	l.Found = order.FoundQuantity(qty)
	return l
}

func newOrder(state order.State, lines ...order.Line) *order.Order {
	o := &order.Order{
		ID:        "ord-1",
		Version:   3,
		Client:    order.ClientRef{Name: "Farmacia del Centro", TaxID: "30-71234567-1"},
		Lines:     lines,
		State:     state,
		Stages:    map[order.Stage]order.StageRecord{},
		CreatedAt: t0.Add(-time.Hour),
	}
	if err := o.Recompute(); err != nil {
		panic(err)
	}
	return o
}

func inProgress(actor string, at time.Time) order.StageRecord {
	return order.StageRecord{Actor: actor, StartedAt: at, Status: order.StageInProgress}
}

func finished(actor string, start, end time.Time) order.StageRecord {
	return order.StageRecord{Actor: actor, StartedAt: start, FinishedAt: &end, Status: order.StageFinished}
}
