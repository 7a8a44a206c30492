package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
)

// logPublisher writes transition events to the log. It is the publisher when
// the outbox is disabled and the relay sink when it is enabled.
type logPublisher struct {
	lg *zap.Logger
}

var _ pipeline.Publisher = logPublisher{}

func (p logPublisher) Publish(_ context.Context, e *pipeline.Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("order_id", e.OrderID),
		zap.String("action", string(e.Action)),
		zap.String("state", string(e.State)),
		zap.Int("version", e.Version),
		zap.Time("at", e.At),
	}
	if e.Stage != "" {
		fields = append(fields, zap.String("stage", string(e.Stage)))
	}
	if e.Record != nil {
		fields = append(fields,
			zap.String("actor", e.Record.Actor),
			zap.String("stage_status", string(e.Record.Status)),
		)
	}
	if e.Total.Valid {
		fields = append(fields, zap.Stringer("total", e.Total.Decimal))
	}
	if e.ChildOrderID != "" {
		fields = append(fields, zap.String("child_order_id", e.ChildOrderID))
	}
	p.lg.Info("Order transition", fields...)
	return nil
}
