package postgres

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

// JSONB payloads are written with jx. Decimals travel as strings so no
// precision is lost.

func encodeAudit(a *order.LineAudit) []byte {
	if a == nil {
		return nil
	}
	var e jx.Encoder
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
	return e.Bytes()
}

func decodeAudit(data []byte) (*order.LineAudit, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var a order.LineAudit
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cold_chain":
			a.ColdChain, err = d.Bool()
		case "hazardous":
			a.Hazardous, err = d.Bool()
		case "batches":
			err = d.Arr(func(d *jx.Decoder) error {
				b, err := decodeBatch(d)
				if err != nil {
					return err
				}
				a.Batches = append(a.Batches, b)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode audit")
	}
	return &a, nil
}

func decodeBatch(d *jx.Decoder) (order.Batch, error) {
	var b order.Batch
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "lot":
			v, err := d.Str()
			b.Lot = v
			return err
		case "expiry":
			v, err := d.Str()
			if err != nil {
				return err
			}
			b.Expiry, err = time.Parse(time.DateOnly, v)
			return err
		default:
			return d.Skip()
		}
	})
	return b, err
}

func encodeDraftLines(lines []draft.Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("description")
		e.Str(l.Description)
		e.FieldStart("unit_price")
		e.Str(l.UnitPrice.String())
		e.FieldStart("discounts")
		e.ArrStart()
		for _, t := range l.Tiers {
			e.Str(t.String())
		}
		e.ArrEnd()
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeDraftLines(data []byte) ([]draft.Line, error) {
	var lines []draft.Line
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var l draft.Line
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_id":
				l.ProductID, err = d.Str()
			case "description":
				l.Description, err = d.Str()
			case "unit_price":
				l.UnitPrice, err = decodeDecimal(d)
			case "discounts":
				i := 0
				err = d.Arr(func(d *jx.Decoder) error {
					if i >= pricing.TierCount {
						return errors.Errorf("more than %d discount tiers", pricing.TierCount)
					}
					v, err := decodeDecimal(d)
					l.Tiers[i] = v
					i++
					return err
				})
			case "quantity":
				l.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode draft lines")
	}
	return lines, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}

func encodeEvent(ev *pipeline.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(ev.ID)
	e.FieldStart("order_id")
	e.Str(ev.OrderID)
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
	if r := ev.Record; r != nil {
		e.FieldStart("record")
		e.ObjStart()
		e.FieldStart("actor")
		e.Str(r.Actor)
		e.FieldStart("status")
		e.Str(string(r.Status))
		e.FieldStart("started_at")
		e.Str(r.StartedAt.UTC().Format(time.RFC3339Nano))
		if r.FinishedAt != nil {
			e.FieldStart("finished_at")
			e.Str(r.FinishedAt.UTC().Format(time.RFC3339Nano))
		}
		e.ObjEnd()
	}
	if ev.Subtotal.Valid {
		e.FieldStart("subtotal")
		e.Str(ev.Subtotal.Decimal.StringFixed(pricing.TotalPlaces))
	}
	if ev.Total.Valid {
		e.FieldStart("total")
		e.Str(ev.Total.Decimal.StringFixed(pricing.TotalPlaces))
	}
	if ev.ChildOrderID != "" {
		e.FieldStart("child_order_id")
		e.Str(ev.ChildOrderID)
	}
	e.FieldStart("at")
	e.Str(ev.At.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}

func decodeEvent(data []byte) (*pipeline.Event, error) {
	var ev pipeline.Event
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			ev.ID, err = d.Str()
		case "order_id":
			ev.OrderID, err = d.Str()
		case "action":
			var s string
			s, err = d.Str()
			ev.Action = pipeline.Action(s)
		case "state":
			var s string
			s, err = d.Str()
			ev.State = order.State(s)
		case "version":
			ev.Version, err = d.Int()
		case "stage":
			var s string
			s, err = d.Str()
			ev.Stage = order.Stage(s)
		case "record":
			ev.Record, err = decodeRecord(d)
		case "subtotal":
			ev.Subtotal.Decimal, err = decodeDecimal(d)
			ev.Subtotal.Valid = err == nil
		case "total":
			ev.Total.Decimal, err = decodeDecimal(d)
			ev.Total.Valid = err == nil
		case "child_order_id":
			ev.ChildOrderID, err = d.Str()
		case "at":
			ev.At, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	return &ev, nil
}

func decodeRecord(d *jx.Decoder) (*order.StageRecord, error) {
	var r order.StageRecord
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "actor":
			r.Actor, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			r.Status = order.StageStatus(s)
		case "started_at":
			r.StartedAt, err = decodeTime(d)
		case "finished_at":
			var t time.Time
			t, err = decodeTime(d)
			r.FinishedAt = &t
		default:
			err = d.Skip()
		}
		return err
	})
	return &r, err
}
