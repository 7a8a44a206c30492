package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

// Amounts are written as strings: line values with four decimals, order
// totals with two.

func encLine(e *jx.Encoder, v decimal.Decimal) { e.Str(v.StringFixed(pricing.LinePlaces)) }

func encTotal(e *jx.Encoder, v decimal.Decimal) { e.Str(v.StringFixed(pricing.TotalPlaces)) }

func encTime(e *jx.Encoder, t time.Time) { e.Str(t.UTC().Format(time.RFC3339)) }

func encTiers(e *jx.Encoder, t pricing.Tiers) {
	e.ArrStart()
	for _, d := range t {
		e.Str(d.String())
	}
	e.ArrEnd()
}

func encClient(e *jx.Encoder, c order.ClientRef) {
	e.ObjStart()
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("tax_id")
	e.Str(c.TaxID)
	e.ObjEnd()
}

func encRecord(e *jx.Encoder, r order.StageRecord) {
	e.ObjStart()
	e.FieldStart("actor")
	e.Str(r.Actor)
	e.FieldStart("status")
	e.Str(string(r.Status))
	e.FieldStart("started_at")
	encTime(e, r.StartedAt)
	if r.FinishedAt != nil {
		e.FieldStart("finished_at")
		encTime(e, *r.FinishedAt)
	}
	e.ObjEnd()
}

func encAudit(e *jx.Encoder, a *order.LineAudit) {
	e.ObjStart()
	e.FieldStart("cold_chain")
	e.Bool(a.ColdChain)
	e.FieldStart("hazardous")
	e.Bool(a.Hazardous)
	e.FieldStart("batches")
	e.ArrStart()
	for _, b := range a.Batches {
		e.ObjStart()
		e.FieldStart("lot")
		e.Str(b.Lot)
		e.FieldStart("expiry")
		e.Str(b.Expiry.Format(time.DateOnly))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encOrderLine(e *jx.Encoder, l *order.Line) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Str(l.ProductID)
	e.FieldStart("description")
	e.Str(l.Description)
	e.FieldStart("unit_price")
	encLine(e, l.UnitPrice)
	e.FieldStart("discounts")
	encTiers(e, l.Tiers)
	e.FieldStart("ordered")
	e.Int(l.Ordered)
	e.FieldStart("found")
	if l.Found.Set {
		e.Int(l.Found.Value)
	} else {
		e.Null()
	}
	e.FieldStart("pending")
	e.Int(l.Pending())
	e.FieldStart("net_unit_price")
	encLine(e, l.NetUnitPrice)
	e.FieldStart("subtotal_gross")
	encLine(e, l.SubtotalGross)
	e.FieldStart("subtotal_net")
	encLine(e, l.SubtotalNet)
	if l.Audit != nil {
		e.FieldStart("audit")
		encAudit(e, l.Audit)
	}
	e.ObjEnd()
}

func encOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("version")
	e.Int(o.Version)
	e.FieldStart("client")
	encClient(e, o.Client)
	e.FieldStart("state")
	e.Str(string(o.State))
	e.FieldStart("observation")
	e.Str(o.Observation)
	e.FieldStart("subtotal")
	encTotal(e, o.Subtotal)
	e.FieldStart("total")
	encTotal(e, o.Total)
	if o.DerivedFrom != "" {
		e.FieldStart("derived_from")
		e.Str(o.DerivedFrom)
	}
	e.FieldStart("created_at")
	encTime(e, o.CreatedAt)
	e.FieldStart("lines")
	e.ArrStart()
	for i := range o.Lines {
		encOrderLine(e, &o.Lines[i])
	}
	e.ArrEnd()
	e.FieldStart("stages")
	e.ObjStart()
	for _, s := range []order.Stage{order.StagePicking, order.StagePacking, order.StageShipping, order.StageInvoicing} {
		if r, ok := o.Record(s); ok {
			e.FieldStart(string(s))
			encRecord(e, r)
		}
	}
	e.ObjEnd()
	e.ObjEnd()
}

func encEvent(e *jx.Encoder, ev *pipeline.Event) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(ev.ID)
	e.FieldStart("action")
	e.Str(string(ev.Action))
	e.FieldStart("state")
	e.Str(string(ev.State))
	e.FieldStart("version")
	e.Int(ev.Version)
	if ev.Stage != "" {
		e.FieldStart("stage")
		e.Str(string(ev.Stage))
	}
	if ev.Record != nil {
		e.FieldStart("record")
		encRecord(e, *ev.Record)
	}
	if ev.Subtotal.Valid {
		e.FieldStart("subtotal")
		encTotal(e, ev.Subtotal.Decimal)
	}
	if ev.Total.Valid {
		e.FieldStart("total")
		encTotal(e, ev.Total.Decimal)
	}
	if ev.ChildOrderID != "" {
		e.FieldStart("child_order_id")
		e.Str(ev.ChildOrderID)
	}
	e.FieldStart("at")
	encTime(e, ev.At)
	e.ObjEnd()
}

func encOverages(e *jx.Encoder, overages []pipeline.Overage) {
	e.ArrStart()
	for _, o := range overages {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(o.ProductID)
		e.FieldStart("ordered")
		e.Int(o.Ordered)
		e.FieldStart("found")
		e.Int(o.Found)
		e.FieldStart("excess")
		e.Int(o.Excess)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encResult(e *jx.Encoder, r *pipeline.Result) {
	e.ObjStart()
	e.FieldStart("order")
	encOrder(e, r.Order)
	e.FieldStart("event")
	encEvent(e, r.Event)
	if r.Child != nil {
		e.FieldStart("child")
		encOrder(e, r.Child)
	}
	if len(r.Overages) > 0 {
		e.FieldStart("overages")
		encOverages(e, r.Overages)
	}
	e.ObjEnd()
}

func encReconciliation(e *jx.Encoder, rec *pipeline.Reconciliation) {
	e.ObjStart()
	e.FieldStart("candidates")
	e.ArrStart()
	for _, id := range rec.Candidates {
		e.Str(id)
	}
	e.ArrEnd()
	e.FieldStart("overages")
	encOverages(e, rec.Overages)
	if c := rec.Child; c != nil {
		e.FieldStart("child")
		e.ObjStart()
		e.FieldStart("subtotal")
		encTotal(e, c.Subtotal)
		e.FieldStart("total")
		encTotal(e, c.Total)
		e.FieldStart("lines")
		e.ArrStart()
		for i := range c.Lines {
			encOrderLine(e, &c.Lines[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encDraft(e *jx.Encoder, d *draft.Draft) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(d.ID)
	e.FieldStart("owner")
	e.Str(d.Owner)
	e.FieldStart("client")
	encClient(e, d.Client)
	e.FieldStart("observation")
	e.Str(d.Observation)
	e.FieldStart("updated_at")
	encTime(e, d.UpdatedAt)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range d.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("description")
		e.Str(l.Description)
		e.FieldStart("unit_price")
		encLine(e, l.UnitPrice)
		e.FieldStart("discounts")
		encTiers(e, l.Tiers)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encAmounts(e *jx.Encoder, a pricing.Amounts) {
	e.FieldStart("net_unit_price")
	encLine(e, a.NetUnitPrice)
	e.FieldStart("subtotal_gross")
	encLine(e, a.SubtotalGross)
	e.FieldStart("subtotal_net")
	encLine(e, a.SubtotalNet)
}

func encQuote(e *jx.Encoder, q *draft.Quote) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range q.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		encAmounts(e, l.Amounts)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encTotal(e, q.Subtotal)
	e.FieldStart("total")
	encTotal(e, q.Total)
	e.ObjEnd()
}
