package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

var _ draft.Repository = (*DraftRepository)(nil)

// DraftRepository implements draft.Repository backed by PostgreSQL. Lines
// are kept as a JSONB document.
type DraftRepository struct {
	tx *TxManager
}

// NewDraftRepository returns a DraftRepository using tx for all queries.
func NewDraftRepository(tx *TxManager) *DraftRepository {
	return &DraftRepository{tx: tx}
}

type draftRow struct {
	ID          string    `db:"id"`
	Owner       string    `db:"owner"`
	ClientName  string    `db:"client_name"`
	ClientTaxID string    `db:"client_tax_id"`
	Observation string    `db:"observation"`
	Lines       []byte    `db:"lines"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const draftColumns = "id, owner, client_name, client_tax_id, observation, lines, updated_at"

// Save upserts d.
func (r *DraftRepository) Save(ctx context.Context, d *draft.Draft) error {
	sql, args, err := psql.Insert("draft_orders").
		Columns("id", "owner", "client_name", "client_tax_id", "observation", "lines", "updated_at").
		Values(d.ID, d.Owner, d.Client.Name, d.Client.TaxID, d.Observation, encodeDraftLines(d.Lines), d.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			client_name = EXCLUDED.client_name,
			client_tax_id = EXCLUDED.client_tax_id,
			observation = EXCLUDED.observation,
			lines = EXCLUDED.lines,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building draft upsert: %w", err)
	}
	if _, err := r.tx.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("saving draft %q: %w", d.ID, err)
	}
	return nil
}

// Get returns a single draft, or draft.ErrNotFound.
func (r *DraftRepository) Get(ctx context.Context, id string) (*draft.Draft, error) {
	var row draftRow
	err := pgxscan.Get(ctx, r.tx.Querier(ctx), &row, "SELECT "+draftColumns+" FROM draft_orders WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, draft.ErrNotFound
		}
		return nil, fmt.Errorf("getting draft %q: %w", id, err)
	}
	return mapDraft(row)
}

// ListByOwner returns the owner's drafts, most recently updated first.
func (r *DraftRepository) ListByOwner(ctx context.Context, owner string) ([]draft.Draft, error) {
	var rows []draftRow
	err := pgxscan.Select(ctx, r.tx.Querier(ctx), &rows,
		"SELECT "+draftColumns+" FROM draft_orders WHERE owner = $1 ORDER BY updated_at DESC, id", owner)
	if err != nil {
		return nil, fmt.Errorf("listing drafts of %q: %w", owner, err)
	}

	drafts := make([]draft.Draft, len(rows))
	for i, row := range rows {
		d, err := mapDraft(row)
		if err != nil {
			return nil, err
		}
		drafts[i] = *d
	}
	return drafts, nil
}

// Delete removes a draft, returning draft.ErrNotFound when none matched.
func (r *DraftRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.tx.Querier(ctx).Exec(ctx, "DELETE FROM draft_orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting draft %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return draft.ErrNotFound
	}
	return nil
}

func mapDraft(row draftRow) (*draft.Draft, error) {
	lines, err := decodeDraftLines(row.Lines)
	if err != nil {
		return nil, fmt.Errorf("draft %q: %w", row.ID, err)
	}
	return &draft.Draft{
		ID:          row.ID,
		Owner:       row.Owner,
		Client:      order.ClientRef{Name: row.ClientName, TaxID: row.ClientTaxID},
		Lines:       lines,
		Observation: row.Observation,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}
