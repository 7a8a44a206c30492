package draft

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

// Options configures a Service. Zero values select defaults.
type Options struct {
	Transactor order.Transactor
	Now        func() time.Time
	NewID      func() string
}

// Service manages drafts and turns them into orders.
type Service struct {
	drafts Repository
	orders order.Store
	tx     order.Transactor
	now    func() time.Time
	newID  func() string
}

// NewService creates a draft Service.
func NewService(drafts Repository, orders order.Store, opts Options) *Service {
	if opts.Transactor == nil {
		opts.Transactor = order.NoTx{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	return &Service{
		drafts: drafts,
		orders: orders,
		tx:     opts.Transactor,
		now:    opts.Now,
		newID:  opts.NewID,
	}
}

// Save validates and stores d, assigning an id to new drafts.
func (s *Service) Save(ctx context.Context, d *Draft) (*Draft, error) {
	if d.Owner == "" {
		return nil, ErrOwnerRequired
	}
	if _, err := priced(d); err != nil {
		return nil, err
	}

	saved := *d
	if saved.ID == "" {
		saved.ID = s.newID()
	}
	saved.UpdatedAt = s.now()
	if err := s.drafts.Save(ctx, &saved); err != nil {
		return nil, errors.Wrap(err, "save draft")
	}
	return &saved, nil
}

// Get returns a stored draft.
func (s *Service) Get(ctx context.Context, id string) (*Draft, error) {
	return s.drafts.Get(ctx, id)
}

// List returns the drafts of owner.
func (s *Service) List(ctx context.Context, owner string) ([]Draft, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	return s.drafts.ListByOwner(ctx, owner)
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.drafts.Delete(ctx, id)
}

// Quote prices a stored draft.
func (s *Service) Quote(ctx context.Context, id string) (*Quote, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Price(d)
}

// Submit creates a new order from the draft and removes the draft.
func (s *Service) Submit(ctx context.Context, id string) (*order.Order, error) {
	var created *order.Order
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.drafts.Get(ctx, id)
		if err != nil {
			return err
		}
		lines, err := priced(d)
		if err != nil {
			return err
		}
		subtotal, total := order.Totals(lines)

		created, err = s.orders.Create(ctx, &order.Draft{
			Client:      d.Client,
			Lines:       lines,
			State:       order.StateNew,
			Observation: d.Observation,
			Subtotal:    subtotal,
			Total:       total,
		})
		if err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.drafts.Delete(ctx, id); err != nil {
			return errors.Wrap(err, "delete draft")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
