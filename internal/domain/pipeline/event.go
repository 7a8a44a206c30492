package pipeline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

// Event is the "order updated" notification emitted once per transition.
type Event struct {
	ID      string
	OrderID string
	Action  Action
	State   order.State
	// Stage and Record describe the stage record the transition touched, if any.
	Stage  order.Stage
	Record *order.StageRecord
	// Subtotal and Total are set when the transition recomputed line data.
	Subtotal decimal.NullDecimal
	Total    decimal.NullDecimal
	Version  int
	// ChildOrderID is set when finalize_checkpicking split off a remainder.
	ChildOrderID string
	At           time.Time
}

// Publisher delivers events to downstream collaborators.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}
