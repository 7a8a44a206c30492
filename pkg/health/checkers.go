package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the database unreachable.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// BacklogCheck fails when count reports more than limit queued items, e.g.
// transition events the relay has not published yet.
func BacklogCheck(count func(ctx context.Context) (int, error), limit int) CheckFunc {
	return func(ctx context.Context) error {
		n, err := count(ctx)
		if err != nil {
			return errors.Wrap(err, "count backlog")
		}
		if n > limit {
			return errors.Errorf("backlog %d exceeds %d", n, limit)
		}
		return nil
	}
}

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines, which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
