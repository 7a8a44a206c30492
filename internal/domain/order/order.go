package order

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

// State is the position of an order in the warehouse pipeline.
type State string

const (
	StateNew            State = "new"
	StatePicking        State = "picking"
	StateCheckPicking   State = "checkpicking"
	StatePacking        State = "packing"
	StateShipped        State = "shipped"
	StateDelivered      State = "delivered"
	StateCancelled      State = "cancelled"
	StatePendingInvoice State = "pending_invoice"
	StateInvoicing      State = "invoicing"
)

var states = []State{
	StateNew, StatePicking, StateCheckPicking, StatePacking, StateShipped,
	StateDelivered, StateCancelled, StatePendingInvoice, StateInvoicing,
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return slices.Contains(states, s)
}

// Stage names a pipeline stage that owns a StageRecord.
type Stage string

const (
	StagePicking   Stage = "picking"
	StagePacking   Stage = "packing"
	StageShipping  Stage = "shipping"
	StageInvoicing Stage = "invoicing"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePicking, StagePacking, StageShipping, StageInvoicing:
		return true
	}
	return false
}

// StageStatus is the lifecycle of a single StageRecord.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageFinished   StageStatus = "finished"
	StageCancelled  StageStatus = "cancelled"
)

// StageRecord tracks who owns a stage and when it started and finished.
type StageRecord struct {
	Actor      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     StageStatus
}

// ClientRef identifies the ordering client. It never changes after creation.
type ClientRef struct {
	Name  string
	TaxID string
}

// Found is the tri-state found quantity of a line: either untouched, or set
// to an explicit value (which may be zero).
type Found struct {
	Value int
	Set   bool
}

// FoundQuantity returns an explicitly set found quantity.
func FoundQuantity(v int) Found {
	return Found{Value: v, Set: true}
}

// Batch is a lot number with its expiry date.
type Batch struct {
	Lot    string
	Expiry time.Time
}

// LineAudit is pass-through audit metadata recorded on a line while the order
// is checked. The core never interprets it.
type LineAudit struct {
	ColdChain bool
	Hazardous bool
	Batches   []Batch
}

// Line is a single product line of an order.
type Line struct {
	ProductID   string
	Description string
	UnitPrice   decimal.Decimal
	Tiers       pricing.Tiers
	Ordered     int
	Found       Found
	Audit       *LineAudit

	NetUnitPrice  decimal.Decimal
	SubtotalGross decimal.Decimal
	SubtotalNet   decimal.Decimal
}

// Pending returns the unmet quantity. It is negative when more stock was
// found than ordered.
func (l *Line) Pending() int {
	return l.Ordered - l.Found.Value
}

// Order is the fulfillment aggregate.
type Order struct {
	ID          string
	Version     int
	Client      ClientRef
	Lines       []Line
	State       State
	Stages      map[Stage]StageRecord
	Observation string
	Subtotal    decimal.Decimal
	Total       decimal.Decimal

	// DerivedFrom is the parent order id for orders produced by reconciliation.
	DerivedFrom string
	// ReconcileKey deduplicates child creation when a reconciliation is retried.
	ReconcileKey string
	CreatedAt    time.Time
}

// Draft is the payload used to create a new order.
type Draft struct {
	Client       ClientRef
	Lines        []Line
	State        State
	Observation  string
	Subtotal     decimal.Decimal
	Total        decimal.Decimal
	DerivedFrom  string
	ReconcileKey string
}

// FromDraft materializes a Draft into an Order with the given identity.
// Store implementations call it after assigning an id.
func FromDraft(id string, d *Draft, createdAt time.Time) *Order {
	o := &Order{
		ID:           id,
		Version:      1,
		Client:       d.Client,
		Lines:        cloneLines(d.Lines),
		State:        d.State,
		Stages:       make(map[Stage]StageRecord),
		Observation:  d.Observation,
		Subtotal:     d.Subtotal,
		Total:        d.Total,
		DerivedFrom:  d.DerivedFrom,
		ReconcileKey: d.ReconcileKey,
		CreatedAt:    createdAt,
	}
	if o.State == "" {
		o.State = StateNew
	}
	return o
}

// Record returns the stage record for s, if any.
func (o *Order) Record(s Stage) (StageRecord, bool) {
	r, ok := o.Stages[s]
	return r, ok
}

// Line returns a pointer to the line with the given product id.
func (o *Order) Line(productID string) (*Line, bool) {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = cloneLines(o.Lines)
	c.Stages = make(map[Stage]StageRecord, len(o.Stages))
	for k, r := range o.Stages {
		if r.FinishedAt != nil {
			at := *r.FinishedAt
			r.FinishedAt = &at
		}
		c.Stages[k] = r
	}
	return &c
}

func cloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		if l.Audit != nil {
			a := *l.Audit
			a.Batches = slices.Clone(l.Audit.Batches)
			l.Audit = &a
		}
		out[i] = l
	}
	return out
}

// Store is the persistence collaborator for orders.
type Store interface {
	// Load returns the full aggregate, or ErrNotFound.
	Load(ctx context.Context, id string) (*Order, error)
	// Save persists o if the stored version equals expectedVersion and returns
	// the stored order with its new version. A mismatch fails with
	// ErrConcurrentModification.
	Save(ctx context.Context, o *Order, expectedVersion int) (*Order, error)
	// Create persists a new order. When d.ReconcileKey is set and an order with
	// that key already exists, the existing order is returned instead.
	Create(ctx context.Context, d *Draft) (*Order, error)
}

// Transactor runs fn atomically. Stores called from fn pick the transaction
// up from ctx.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoTx is a Transactor that runs fn directly.
type NoTx struct{}

func (NoTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
