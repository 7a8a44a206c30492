package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

const maxBodySize = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, badRequest(errors.Wrap(err, "read body"))
	}
	if len(data) == 0 {
		return nil, badRequest(errors.New("empty body"))
	}
	return jx.DecodeBytes(data), nil
}

// decDecimal accepts both JSON strings and numbers.
func decDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("expected decimal, got %s", d.Next())
	}
}

func decTiers(d *jx.Decoder) (pricing.Tiers, error) {
	var t pricing.Tiers
	i := 0
	err := d.Arr(func(d *jx.Decoder) error {
		if i >= pricing.TierCount {
			return errors.Errorf("at most %d discounts", pricing.TierCount)
		}
		v, err := decDecimal(d)
		t[i] = v
		i++
		return err
	})
	return t, err
}

func decClient(d *jx.Decoder) (order.ClientRef, error) {
	var c order.ClientRef
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			c.Name, err = d.Str()
		case "tax_id":
			c.TaxID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}

type actionRequest struct {
	Version    int
	HasVersion bool
	Quantities []pipeline.Quantity
	Reconcile  pipeline.ReconcileRequest
}

func decActionRequest(d *jx.Decoder) (actionRequest, error) {
	var req actionRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "version":
			req.Version, err = d.Int()
			req.HasVersion = true
		case "quantities":
			err = d.Arr(func(d *jx.Decoder) error {
				q, err := decQuantity(d)
				req.Quantities = append(req.Quantities, q)
				return err
			})
		case "reconcile":
			req.Reconcile, err = decReconcile(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, err
	}
	if !req.HasVersion {
		return req, errors.New("version is required")
	}
	return req, nil
}

func decQuantity(d *jx.Decoder) (pipeline.Quantity, error) {
	var q pipeline.Quantity
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			q.ProductID, err = d.Str()
		case "found":
			q.Found, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return q, err
}

func decReconcile(d *jx.Decoder) (pipeline.ReconcileRequest, error) {
	var req pipeline.ReconcileRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "selected":
			req.Selected = []string{}
			err = d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				req.Selected = append(req.Selected, id)
				return err
			})
		case "require_split":
			req.RequireSplit, err = d.Bool()
		case "observation":
			req.Observation, err = d.Str()
		case "audit":
			req.Audit = make(map[string]order.LineAudit)
			err = d.Obj(func(d *jx.Decoder, productID string) error {
				a, err := decAudit(d)
				req.Audit[productID] = a
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decAudit(d *jx.Decoder) (order.LineAudit, error) {
	var a order.LineAudit
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cold_chain":
			a.ColdChain, err = d.Bool()
		case "hazardous":
			a.Hazardous, err = d.Bool()
		case "batches":
			err = d.Arr(func(d *jx.Decoder) error {
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
				a.Batches = append(a.Batches, b)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return a, err
}

func decDraft(d *jx.Decoder) (*draft.Draft, error) {
	var out draft.Draft
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "owner":
			out.Owner, err = d.Str()
		case "client":
			out.Client, err = decClient(d)
		case "observation":
			out.Observation, err = d.Str()
		case "lines":
			err = d.Arr(func(d *jx.Decoder) error {
				l, err := decDraftLine(d)
				out.Lines = append(out.Lines, l)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func decDraftLine(d *jx.Decoder) (draft.Line, error) {
	var l draft.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			l.ProductID, err = d.Str()
		case "description":
			l.Description, err = d.Str()
		case "unit_price":
			l.UnitPrice, err = decDecimal(d)
		case "discounts":
			l.Tiers, err = decTiers(d)
		case "quantity":
			l.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

type priceRequest struct {
	Price    decimal.Decimal
	Tiers    pricing.Tiers
	Quantity int
}

func decPriceRequest(d *jx.Decoder) (priceRequest, error) {
	req := priceRequest{Quantity: 1}
	hasPrice := false
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "price":
			req.Price, err = decDecimal(d)
			hasPrice = true
		case "discounts":
			req.Tiers, err = decTiers(d)
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, err
	}
	if !hasPrice {
		return req, errors.New("price is required")
	}
	return req, nil
}
