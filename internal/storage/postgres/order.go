package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

var _ order.Store = (*OrderStore)(nil)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// OrderStore implements order.Store backed by PostgreSQL. Every write runs in
// a transaction, joining the caller's one when present.
type OrderStore struct {
	tx  *TxManager
	now func() time.Time
}

// NewOrderStore returns an OrderStore using tx for all queries.
func NewOrderStore(tx *TxManager) *OrderStore {
	return &OrderStore{tx: tx, now: time.Now}
}

type orderRow struct {
	ID           string          `db:"id"`
	Version      int             `db:"version"`
	ClientName   string          `db:"client_name"`
	ClientTaxID  string          `db:"client_tax_id"`
	State        string          `db:"state"`
	Observation  string          `db:"observation"`
	Subtotal     decimal.Decimal `db:"subtotal"`
	Total        decimal.Decimal `db:"total"`
	DerivedFrom  *string         `db:"derived_from"`
	ReconcileKey *string         `db:"reconcile_key"`
	CreatedAt    time.Time       `db:"created_at"`
}

type lineRow struct {
	ProductID     string          `db:"product_id"`
	Description   string          `db:"description"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	Discount1     decimal.Decimal `db:"discount1"`
	Discount2     decimal.Decimal `db:"discount2"`
	Discount3     decimal.Decimal `db:"discount3"`
	Discount4     decimal.Decimal `db:"discount4"`
	Ordered       int             `db:"ordered"`
	Found         *int            `db:"found"`
	Audit         []byte          `db:"audit"`
	NetUnitPrice  decimal.Decimal `db:"net_unit_price"`
	SubtotalGross decimal.Decimal `db:"subtotal_gross"`
	SubtotalNet   decimal.Decimal `db:"subtotal_net"`
}

type stageRow struct {
	Stage      string     `db:"stage"`
	Actor      string     `db:"actor"`
	Status     string     `db:"status"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

const orderColumns = "id, version, client_name, client_tax_id, state, observation, subtotal, total, derived_from, reconcile_key, created_at"

// Load returns the full aggregate with its lines and stage records.
func (s *OrderStore) Load(ctx context.Context, id string) (*order.Order, error) {
	q := s.tx.Querier(ctx)

	var row orderRow
	err := pgxscan.Get(ctx, q, &row, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("loading order %q: %w", id, err)
	}

	var lines []lineRow
	err = pgxscan.Select(ctx, q, &lines, `
		SELECT product_id, description, unit_price, discount1, discount2, discount3, discount4,
		       ordered, found, audit, net_unit_price, subtotal_gross, subtotal_net
		FROM order_lines WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("loading lines of order %q: %w", id, err)
	}

	var stages []stageRow
	err = pgxscan.Select(ctx, q, &stages, `
		SELECT stage, actor, status, started_at, finished_at
		FROM order_stages WHERE order_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("loading stages of order %q: %w", id, err)
	}

	return mapOrder(row, lines, stages)
}

// Save writes o if the stored version still equals expectedVersion. Lines
// and stage records are replaced as a whole.
func (s *OrderStore) Save(ctx context.Context, o *order.Order, expectedVersion int) (*order.Order, error) {
	var saved *order.Order
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)

		sql, args, err := psql.Update("orders").
			Set("state", string(o.State)).
			Set("observation", o.Observation).
			Set("subtotal", o.Subtotal).
			Set("total", o.Total).
			Set("version", squirrel.Expr("version + 1")).
			Set("updated_at", s.now()).
			Where(squirrel.Eq{"id": o.ID, "version": expectedVersion}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building order update: %w", err)
		}
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("updating order %q: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return s.missOrConflict(ctx, q, o.ID)
		}

		if _, err := q.Exec(ctx, "DELETE FROM order_lines WHERE order_id = $1", o.ID); err != nil {
			return fmt.Errorf("clearing lines of order %q: %w", o.ID, err)
		}
		if err := insertLines(ctx, q, o.ID, o.Lines); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, "DELETE FROM order_stages WHERE order_id = $1", o.ID); err != nil {
			return fmt.Errorf("clearing stages of order %q: %w", o.ID, err)
		}
		if err := insertStages(ctx, q, o.ID, o.Stages); err != nil {
			return err
		}

		saved, err = s.Load(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *OrderStore) missOrConflict(ctx context.Context, q Querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConcurrentModification
}

// Create inserts a new order. A draft whose ReconcileKey is already taken
// yields the order stored under that key.
func (s *OrderStore) Create(ctx context.Context, d *order.Draft) (*order.Order, error) {
	if err := order.ValidateLines(d.Lines); err != nil {
		return nil, err
	}

	var created *order.Order
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		o := order.FromDraft(uuid.Must(uuid.NewV7()).String(), d, s.now().UTC())

		sql, args, err := psql.Insert("orders").
			Columns("id", "version", "client_name", "client_tax_id", "state", "observation",
				"subtotal", "total", "derived_from", "reconcile_key", "created_at", "updated_at").
			Values(o.ID, o.Version, o.Client.Name, o.Client.TaxID, string(o.State), o.Observation,
				o.Subtotal, o.Total, nullable(o.DerivedFrom), nullable(o.ReconcileKey), o.CreatedAt, o.CreatedAt).
			Suffix("ON CONFLICT (reconcile_key) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("building order insert: %w", err)
		}
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var id string
			err := q.QueryRow(ctx, "SELECT id FROM orders WHERE reconcile_key = $1", o.ReconcileKey).Scan(&id)
			if err != nil {
				return fmt.Errorf("finding order for reconcile key %q: %w", o.ReconcileKey, err)
			}
			created, err = s.Load(ctx, id)
			return err
		}

		if err := insertLines(ctx, q, o.ID, o.Lines); err != nil {
			return err
		}
		if err := insertStages(ctx, q, o.ID, o.Stages); err != nil {
			return err
		}
		created, err = s.Load(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func insertLines(ctx context.Context, q Querier, orderID string, lines []order.Line) error {
	if len(lines) == 0 {
		return nil
	}
	b := psql.Insert("order_lines").Columns(
		"order_id", "position", "product_id", "description", "unit_price",
		"discount1", "discount2", "discount3", "discount4",
		"ordered", "found", "audit", "net_unit_price", "subtotal_gross", "subtotal_net",
	)
	for i, l := range lines {
		var found *int
		if l.Found.Set {
			v := l.Found.Value
			found = &v
		}
		b = b.Values(orderID, i, l.ProductID, l.Description, l.UnitPrice,
			l.Tiers[0], l.Tiers[1], l.Tiers[2], l.Tiers[3],
			l.Ordered, found, encodeAudit(l.Audit), l.NetUnitPrice, l.SubtotalGross, l.SubtotalNet)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building line insert: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting lines of order %q: %w", orderID, err)
	}
	return nil
}

func insertStages(ctx context.Context, q Querier, orderID string, stages map[order.Stage]order.StageRecord) error {
	if len(stages) == 0 {
		return nil
	}
	b := psql.Insert("order_stages").Columns("order_id", "stage", "actor", "status", "started_at", "finished_at")
	for stage, r := range stages {
		b = b.Values(orderID, string(stage), r.Actor, string(r.Status), r.StartedAt, r.FinishedAt)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building stage insert: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting stages of order %q: %w", orderID, err)
	}
	return nil
}

func mapOrder(row orderRow, lines []lineRow, stages []stageRow) (*order.Order, error) {
	o := &order.Order{
		ID:          row.ID,
		Version:     row.Version,
		Client:      order.ClientRef{Name: row.ClientName, TaxID: row.ClientTaxID},
		Lines:       make([]order.Line, len(lines)),
		State:       order.State(row.State),
		Stages:      make(map[order.Stage]order.StageRecord, len(stages)),
		Observation: row.Observation,
		Subtotal:    row.Subtotal,
		Total:       row.Total,
		CreatedAt:   row.CreatedAt,
	}
	if row.DerivedFrom != nil {
		o.DerivedFrom = *row.DerivedFrom
	}
	if row.ReconcileKey != nil {
		o.ReconcileKey = *row.ReconcileKey
	}

	for i, l := range lines {
		audit, err := decodeAudit(l.Audit)
		if err != nil {
			return nil, fmt.Errorf("order %q product %q: %w", row.ID, l.ProductID, err)
		}
		line := order.Line{
			ProductID:     l.ProductID,
			Description:   l.Description,
			UnitPrice:     l.UnitPrice,
			Tiers:         pricing.NewTiers(l.Discount1, l.Discount2, l.Discount3, l.Discount4),
			Ordered:       l.Ordered,
			Audit:         audit,
			NetUnitPrice:  l.NetUnitPrice,
			SubtotalGross: l.SubtotalGross,
			SubtotalNet:   l.SubtotalNet,
		}
		if l.Found != nil {
			line.Found = order.FoundQuantity(*l.Found)
		}
		o.Lines[i] = line
	}

	for _, r := range stages {
		o.Stages[order.Stage(r.Stage)] = order.StageRecord{
			Actor:      r.Actor,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Status:     order.StageStatus(r.Status),
		}
	}
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
