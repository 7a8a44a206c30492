package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
)

var _ pipeline.Publisher = (*Outbox)(nil)

// Outbox records pipeline events in the order_events table inside the
// transaction that produced them. Relay hands them to a downstream publisher
// and marks them delivered.
type Outbox struct {
	tx *TxManager
}

// NewOutbox returns an Outbox writing through tx.
func NewOutbox(tx *TxManager) *Outbox {
	return &Outbox{tx: tx}
}

// Publish inserts e. Events without an id get one.
func (o *Outbox) Publish(ctx context.Context, e *pipeline.Event) error {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	sql, args, err := psql.Insert("order_events").
		Columns("id", "order_id", "action", "state", "version", "payload", "created_at").
		Values(e.ID, e.OrderID, string(e.Action), string(e.State), e.Version, encodeEvent(e), e.At).
		ToSql()
	if err != nil {
		return fmt.Errorf("building event insert: %w", err)
	}
	if _, err := o.tx.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting event for order %q: %w", e.OrderID, err)
	}
	return nil
}

// Pending counts events still waiting for the relay. Dead-lettered events
// are not counted.
func (o *Outbox) Pending(ctx context.Context) (int, error) {
	var n int
	err := o.tx.Querier(ctx).QueryRow(ctx,
		`SELECT count(*) FROM order_events WHERE published_at IS NULL AND failed_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending events: %w", err)
	}
	return n, nil
}

// Relay delivers up to limit pending events to sink in creation order and
// marks them published. Rows are locked with SKIP LOCKED so several relays
// can run against one database. Delivery is at least once: a sink error
// aborts the batch and the events are retried on the next call. A payload
// that cannot be decoded is dead-lettered with failed_at and relay_error so
// it never blocks the events behind it.
func (o *Outbox) Relay(ctx context.Context, limit int, sink pipeline.Publisher) (int, error) {
	var sent int
	err := o.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		q := o.tx.Querier(ctx)
		sql, args, err := psql.Select("id", "payload").
			From("order_events").
			Where("published_at IS NULL AND failed_at IS NULL").
			OrderBy("created_at", "id").
			Limit(uint64(limit)).
			Suffix("FOR UPDATE SKIP LOCKED").
			ToSql()
		if err != nil {
			return fmt.Errorf("building pending select: %w", err)
		}
		rows, err := q.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("selecting pending events: %w", err)
		}
		type pending struct {
			id      string
			payload []byte
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pending, error) {
			var p pending
			err := row.Scan(&p.id, &p.payload)
			return p, err
		})
		if err != nil {
			return fmt.Errorf("scanning pending events: %w", err)
		}

		ids := make([]string, 0, len(batch))
		for _, p := range batch {
			ev, err := decodeEvent(p.payload)
			if err != nil {
				zctx.From(ctx).Error("Dead-lettering undecodable event",
					zap.String("event_id", p.id),
					zap.Error(err),
				)
				if err := o.deadLetter(ctx, p.id, err); err != nil {
					return err
				}
				continue
			}
			if err := sink.Publish(ctx, ev); err != nil {
				return fmt.Errorf("delivering event %q: %w", p.id, err)
			}
			ids = append(ids, p.id)
		}
		if len(ids) == 0 {
			return nil
		}

		sql, args, err = psql.Update("order_events").
			Set("published_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"id": ids}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building publish update: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("marking events published: %w", err)
		}
		sent = len(ids)
		return nil
	})
	return sent, err
}

func (o *Outbox) deadLetter(ctx context.Context, id string, cause error) error {
	sql, args, err := psql.Update("order_events").
		Set("failed_at", squirrel.Expr("NOW()")).
		Set("relay_error", cause.Error()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building dead-letter update: %w", err)
	}
	if _, err := o.tx.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("dead-lettering event %q: %w", id, err)
	}
	return nil
}
