package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
	"github.com/xenking/pharma-fulfillment/internal/handler"
	"github.com/xenking/pharma-fulfillment/internal/storage/postgres"
	"github.com/xenking/pharma-fulfillment/pkg/health"
	"github.com/xenking/pharma-fulfillment/pkg/httpmiddleware"
)

func newID() string { return uuid.Must(uuid.NewV7()).String() }

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Bool("outbox", cfg.Outbox.Enabled),
	)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        cfg.Pool.MaxConns,
		MinConns:        cfg.Pool.MinConns,
		MaxConnLifetime: cfg.Pool.MaxConnLifetime,
		MaxConnIdleTime: cfg.Pool.MaxConnIdleTime,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	txm := postgres.NewTxManager(pool)
	orders := postgres.NewOrderStore(txm)
	sink := logPublisher{lg: lg.Named("events")}

	var (
		publisher pipeline.Publisher = sink
		outbox    *postgres.Outbox
	)
	if cfg.Outbox.Enabled {
		outbox = postgres.NewOutbox(txm)
		publisher = outbox
	}

	pipelineSvc, err := pipeline.NewService(orders, pipeline.Options{
		Transactor:     txm,
		Publisher:      publisher,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
		NewID:          newID,
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline service")
	}
	draftSvc := draft.NewService(postgres.NewDraftRepository(txm), orders, draft.Options{
		Transactor: txm,
		NewID:      newID,
	})

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	if outbox != nil {
		healthSvc.Add(health.Readiness, "outbox", 5*time.Second, health.BacklogCheck(outbox.Pending, cfg.Outbox.MaxBacklog))
	}
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(pipelineSvc, draftSvc).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("fulfillment-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	if outbox != nil {
		g.Go(func() error {
			return relay(gctx, lg.Named("relay"), outbox, sink, cfg.Outbox)
		})
	}
	return g.Wait()
}

// relay drains the outbox into sink until ctx is done. Failed rounds are
// logged and retried on the next tick.
func relay(ctx context.Context, lg *zap.Logger, outbox *postgres.Outbox, sink pipeline.Publisher, cfg OutboxConfig) error {
	ticker := time.NewTicker(cfg.RelayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			n, err := outbox.Relay(ctx, cfg.RelayBatch, sink)
			if err != nil {
				if ctx.Err() == nil {
					lg.Warn("Relay round failed", zap.Error(err))
				}
				break
			}
			if n < cfg.RelayBatch {
				break
			}
		}
	}
}
