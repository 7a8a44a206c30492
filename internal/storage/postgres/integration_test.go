//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	err = dc.
		WaitForService("postgres", wait.ForLog("database system is ready to accept connections").WithOccurrence(2)).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Printf("compose up: %v", err)
		return 1
	}

	pg, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Printf("postgres container: %v", err)
		return 1
	}
	host, err := pg.Host(ctx)
	if err != nil {
		log.Printf("host: %v", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Printf("mapped port: %v", err)
		return 1
	}

	url := fmt.Sprintf("postgres://pharma:pharma@%s:%s/pharma?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, url, PoolConfig{MaxConns: 8})
	if err != nil {
		log.Printf("pool: %v", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Printf("migrations: %v", err)
		return 1
	}
	return m.Run()
}

func testDraft(key string) *order.Draft {
	lines := []order.Line{
		{
			ProductID: "amox500",
			UnitPrice: decimal.RequireFromString("12.50"),
			Tiers:     pricing.NewTiers(decimal.NewFromInt(10), decimal.Zero, decimal.NewFromInt(5), decimal.Zero),
			Ordered:   10,
		},
		{ProductID: "ibu400", UnitPrice: decimal.RequireFromString("2.10"), Ordered: 5},
	}
	for i := range lines {
		if err := lines[i].Reprice(); err != nil {
			panic(err)
		}
	}
	subtotal, total := order.Totals(lines)
	return &order.Draft{
		Client:       order.ClientRef{Name: "Farmacia del Centro", TaxID: "30-71234567-1"},
		Lines:        lines,
		Subtotal:     subtotal,
		Total:        total,
		ReconcileKey: key,
	}
}

func TestOrderStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore(NewTxManager(testPool))

	created, err := store.Create(ctx, testDraft(""))
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, order.StateNew, created.State)
	assert.Equal(t, "10.6875", created.Lines[0].NetUnitPrice.String())

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := created.Clone()
	o.State = order.StatePicking
	o.Stages[order.StagePicking] = order.StageRecord{Actor: "ana", StartedAt: now, Status: order.StageInProgress}
	require.NoError(t, o.SetFound("amox500", 0))
	o.Lines[0].Audit = &order.LineAudit{ColdChain: true}

	saved, err := store.Save(ctx, o, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	loaded, err := store.Load(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatePicking, loaded.State)
	assert.Equal(t, order.FoundQuantity(0), loaded.Lines[0].Found)
	assert.Equal(t, order.Found{}, loaded.Lines[1].Found)
	require.NotNil(t, loaded.Lines[0].Audit)
	assert.True(t, loaded.Lines[0].Audit.ColdChain)
	assert.Equal(t, "ana", loaded.Stages[order.StagePicking].Actor)
	assert.True(t, loaded.Stages[order.StagePicking].StartedAt.Equal(now))
	assert.True(t, created.Total.Equal(loaded.Total))

	_, err = store.Save(ctx, o, 1)
	require.ErrorIs(t, err, order.ErrConcurrentModification)

	_, err = store.Load(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderStore_CreateIsIdempotentOnReconcileKey(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore(NewTxManager(testPool))

	key := fmt.Sprintf("parent-%d/remainder", time.Now().UnixNano())
	first, err := store.Create(ctx, testDraft(key))
	require.NoError(t, err)
	second, err := store.Create(ctx, testDraft(key))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestService_ReconcileWithOutbox(t *testing.T) {
	ctx := context.Background()
	txm := NewTxManager(testPool)
	store := NewOrderStore(txm)

	created, err := store.Create(ctx, testDraft(""))
	require.NoError(t, err)

	svc, err := pipeline.NewService(store, pipeline.Options{
		Transactor: txm,
		Publisher:  NewOutbox(txm),
	})
	require.NoError(t, err)

	steps := []pipeline.Command{
		{Action: pipeline.ActionStartPicking, Actor: "ana"},
		{Action: pipeline.ActionSaveQuantities, Quantities: []pipeline.Quantity{
			{ProductID: "amox500", Found: 6},
			{ProductID: "ibu400", Found: 5},
		}},
		{Action: pipeline.ActionRouteToCheckPicking},
		{Action: pipeline.ActionFinalizeCheckPicking, Reconcile: pipeline.ReconcileRequest{Observation: "backorder"}},
	}
	version := created.Version
	var res *pipeline.Result
	for _, cmd := range steps {
		res, err = svc.Execute(ctx, created.ID, version, cmd)
		require.NoError(t, err, cmd.Action)
		version = res.Order.Version
	}

	assert.Equal(t, order.StatePacking, res.Order.State)
	require.NotNil(t, res.Child)
	assert.Equal(t, created.ID, res.Child.DerivedFrom)
	require.Len(t, res.Child.Lines, 1)
	assert.Equal(t, 4, res.Child.Lines[0].Ordered)

	var events int
	err = testPool.QueryRow(ctx, "SELECT COUNT(*) FROM order_events WHERE order_id = $1", created.ID).Scan(&events)
	require.NoError(t, err)
	assert.Equal(t, len(steps), events)
}

type collector struct {
	events []*pipeline.Event
	err    error
}

func (c *collector) Publish(_ context.Context, e *pipeline.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, e)
	return nil
}

func TestOutbox_Relay(t *testing.T) {
	ctx := context.Background()
	txm := NewTxManager(testPool)
	outbox := NewOutbox(txm)

	created, err := NewOrderStore(txm).Create(ctx, testDraft(""))
	require.NoError(t, err)
	require.NoError(t, outbox.Publish(ctx, &pipeline.Event{
		OrderID: created.ID,
		Action:  pipeline.ActionStartPicking,
		State:   order.StatePicking,
		Version: 1,
		At:      time.Now().UTC(),
	}))

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	require.Positive(t, pending)

	failing := &collector{err: fmt.Errorf("broker down")}
	_, err = outbox.Relay(ctx, 1000, failing)
	require.Error(t, err)
	after, err := outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, after, "failed delivery keeps events pending")

	sink := &collector{}
	sent, err := outbox.Relay(ctx, 1000, sink)
	require.NoError(t, err)
	assert.Equal(t, pending, sent)
	assert.Len(t, sink.events, pending)

	after, err = outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, after)
}

func TestOutbox_RelayDeadLettersUndecodable(t *testing.T) {
	ctx := context.Background()
	txm := NewTxManager(testPool)
	outbox := NewOutbox(txm)

	created, err := NewOrderStore(txm).Create(ctx, testDraft(""))
	require.NoError(t, err)

	badID := fmt.Sprintf("evt-bad-%d", time.Now().UnixNano())
	_, err = testPool.Exec(ctx, `INSERT INTO order_events (id, order_id, action, state, version, payload, created_at)
		VALUES ($1, $2, 'start_picking', 'Picking', 1, '{"at":"yesterday"}', NOW() - INTERVAL '1 hour')`,
		badID, created.ID)
	require.NoError(t, err)

	good := &pipeline.Event{
		OrderID: created.ID,
		Action:  pipeline.ActionStartPicking,
		State:   order.StatePicking,
		Version: 1,
		At:      time.Now().UTC(),
	}
	require.NoError(t, outbox.Publish(ctx, good))

	sink := &collector{}
	_, err = outbox.Relay(ctx, 1000, sink)
	require.NoError(t, err)

	var delivered []string
	for _, e := range sink.events {
		delivered = append(delivered, e.ID)
	}
	assert.Contains(t, delivered, good.ID)
	assert.NotContains(t, delivered, badID)

	var (
		failed    bool
		published bool
		reason    string
	)
	err = testPool.QueryRow(ctx,
		`SELECT failed_at IS NOT NULL, published_at IS NOT NULL, relay_error FROM order_events WHERE id = $1`,
		badID).Scan(&failed, &published, &reason)
	require.NoError(t, err)
	assert.True(t, failed)
	assert.False(t, published)
	assert.NotEmpty(t, reason)

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	// Later relays skip the parked row.
	again := &collector{}
	sent, err := outbox.Relay(ctx, 1000, again)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, again.events)
}

func TestDraftRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDraftRepository(NewTxManager(testPool))
	owner := fmt.Sprintf("agent-%d", time.Now().UnixNano())

	d := &draft.Draft{
		ID:     "dr-" + owner,
		Owner:  owner,
		Client: order.ClientRef{Name: "Farmacia Norte"},
		Lines: []draft.Line{{
			ProductID: "amox500",
			UnitPrice: decimal.RequireFromString("12.50"),
			Tiers:     pricing.NewTiers(decimal.NewFromInt(10), decimal.Zero, decimal.Zero, decimal.Zero),
			Quantity:  2,
		}},
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Save(ctx, d))

	d.Observation = "call before delivery"
	require.NoError(t, repo.Save(ctx, d))

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "call before delivery", got.Observation)
	assert.Equal(t, 2, got.Lines[0].Quantity)

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, d.ID))
	require.ErrorIs(t, repo.Delete(ctx, d.ID), draft.ErrNotFound)
	_, err = repo.Get(ctx, d.ID)
	require.ErrorIs(t, err, draft.ErrNotFound)
}
