package pipeline

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

const instrumentationName = "github.com/xenking/pharma-fulfillment/internal/domain/pipeline"

// Options configures a Service. Zero values select no-op collaborators.
type Options struct {
	Transactor     order.Transactor
	Publisher      Publisher
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Now returns the current time; stage records and events are stamped
	// with it.
	Now func() time.Time
	// NewID generates event ids.
	NewID func() string
}

// Result is the outcome of Execute.
type Result struct {
	Order *order.Order
	Event *Event
	// Child is the remainder order created by finalize_checkpicking, if any.
	Child    *order.Order
	Overages []Overage
}

// Service executes staff commands against stored orders.
type Service struct {
	orders    order.Store
	tx        order.Transactor
	publisher Publisher
	tracer    trace.Tracer
	executed  metric.Int64Counter
	now       func() time.Time
	newID     func() string
}

// NewService creates a pipeline Service over orders.
func NewService(orders order.Store, opts Options) (*Service, error) {
	if opts.Transactor == nil {
		opts.Transactor = order.NoTx{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = noop.NewTracerProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return "" }
	}

	s := &Service{
		orders:    orders,
		tx:        opts.Transactor,
		publisher: opts.Publisher,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if opts.MeterProvider != nil {
		var err error
		s.executed, err = opts.MeterProvider.Meter(instrumentationName).Int64Counter("pipeline.transitions",
			metric.WithDescription("Order actions executed, by action and outcome"),
		)
		if err != nil {
			return nil, errors.Wrap(err, "create transitions counter")
		}
	}
	return s, nil
}

// Get returns the stored order.
func (s *Service) Get(ctx context.Context, id string) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.Get", trace.WithAttributes(
		attribute.String("order.id", id),
	))
	defer span.End()

	o, err := s.orders.Load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return o, nil
}

// Preview reports the reconciliation finalize_checkpicking would perform.
func (s *Service) Preview(ctx context.Context, id string, req ReconcileRequest) (*Reconciliation, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Preview(o, req)
}

// Execute applies cmd to order id, which the caller last saw at
// expectedVersion. The transition, the optional child order and the event
// commit together when a Transactor is configured.
func (s *Service) Execute(ctx context.Context, id string, expectedVersion int, cmd Command) (res *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.Execute", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.action", string(cmd.Action)),
		attribute.Int("order.version", expectedVersion),
	))
	defer func() {
		if s.executed != nil {
			s.executed.Add(ctx, 1, metric.WithAttributes(
				attribute.String("action", string(cmd.Action)),
				attribute.String("outcome", outcome(rerr)),
			))
		}
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.orders.Load(ctx, id)
		if err != nil {
			return errors.Wrap(err, "load order")
		}
		if current.Version != expectedVersion {
			return errors.Wrapf(order.ErrConcurrentModification,
				"order %s is at version %d, expected %d", id, current.Version, expectedVersion)
		}

		out, err := Apply(current, cmd, s.now())
		if err != nil {
			return err
		}
		r := &Result{Event: &out.Event}

		// Child creation is keyed on the parent id and must precede the
		// parent save.
		if rec := out.Reconciliation; rec != nil {
			r.Overages = rec.Overages
			if rec.Child != nil {
				r.Child, err = s.orders.Create(ctx, rec.Child)
				if err != nil {
					return errors.Wrap(err, "create child order")
				}
				r.Event.ChildOrderID = r.Child.ID
			}
		}

		r.Order, err = s.orders.Save(ctx, out.Order, expectedVersion)
		if err != nil {
			return errors.Wrap(err, "save order")
		}
		r.Event.ID = s.newID()
		r.Event.Version = r.Order.Version

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, r.Event); err != nil {
				return errors.Wrap(err, "publish event")
			}
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrIncompleteQuantities):
		return "incomplete_quantities"
	case errors.Is(err, ErrNoPendingLines):
		return "no_pending_lines"
	case errors.Is(err, order.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, order.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
