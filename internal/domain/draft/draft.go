package draft

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when a requested draft does not exist.
	ErrNotFound = errors.New("draft not found")
	// ErrOwnerRequired is returned when a draft is saved without an owner.
	ErrOwnerRequired = errors.New("draft owner required")
)

// Line is a product in a draft with the quantity the client wants.
type Line struct {
	ProductID   string
	Description string
	UnitPrice   decimal.Decimal
	Tiers       pricing.Tiers
	Quantity    int
}

// Draft is an order being assembled by a sales agent before submission.
type Draft struct {
	ID          string
	Owner       string
	Client      order.ClientRef
	Lines       []Line
	Observation string
	UpdatedAt   time.Time
}

// Repository stores drafts independently of submitted orders.
type Repository interface {
	// Save inserts or replaces the draft with d.ID.
	Save(ctx context.Context, d *Draft) error
	Get(ctx context.Context, id string) (*Draft, error)
	// ListByOwner returns the owner's drafts, most recently updated first.
	ListByOwner(ctx context.Context, owner string) ([]Draft, error)
	Delete(ctx context.Context, id string) error
}

func (d *Draft) orderLines() []order.Line {
	lines := make([]order.Line, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = order.Line{
			ProductID:   l.ProductID,
			Description: l.Description,
			UnitPrice:   l.UnitPrice,
			Tiers:       l.Tiers,
			Ordered:     l.Quantity,
		}
	}
	return lines
}
