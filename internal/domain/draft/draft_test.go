package draft

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func line(productID, price string, qty int, tiers ...string) Line {
	var tr pricing.Tiers
	for i := range tr {
		tr[i] = decimal.Zero
		if i < len(tiers) {
			tr[i] = decimal.RequireFromString(tiers[i])
		}
	}
	return Line{
		ProductID: productID,
		UnitPrice: decimal.RequireFromString(price),
		Tiers:     tr,
		Quantity:  qty,
	}
}

type mockRepo struct {
	drafts    map[string]Draft
	deleteErr error
}

func newMockRepo(drafts ...Draft) *mockRepo {
	m := &mockRepo{drafts: make(map[string]Draft)}
	for _, d := range drafts {
		m.drafts[d.ID] = d
	}
	return m
}

func (m *mockRepo) Save(_ context.Context, d *Draft) error {
	m.drafts[d.ID] = *d
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Draft, error) {
	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *mockRepo) ListByOwner(_ context.Context, owner string) ([]Draft, error) {
	var out []Draft
	for _, d := range m.drafts {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Draft) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.drafts[id]; !ok {
		return ErrNotFound
	}
	delete(m.drafts, id)
	return nil
}

type mockStore struct {
	created []*order.Draft
	err     error
}

func (m *mockStore) Load(context.Context, string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockStore) Save(context.Context, *order.Order, int) (*order.Order, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStore) Create(_ context.Context, d *order.Draft) (*order.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, d)
	return order.FromDraft("ord-42", d, now), nil
}

func newService(repo Repository, store order.Store) *Service {
	return NewService(repo, store, Options{
		Now:   func() time.Time { return now },
		NewID: func() string { return "dr-1" },
	})
}

func TestPrice(t *testing.T) {
	q, err := Price(&Draft{Lines: []Line{
		line("amox500", "12.50", 3, "10", "0", "5", "0"),
		line("ibu400", "2.10", 7),
	}})
	require.NoError(t, err)

	require.Len(t, q.Lines, 2)
	assert.Equal(t, "10.6875", q.Lines[0].NetUnitPrice.String())
	assert.Equal(t, "32.0625", q.Lines[0].SubtotalNet.String())
	assert.Equal(t, "14.7", q.Lines[1].SubtotalNet.String())
	assert.Equal(t, "52.2", q.Subtotal.String())
	assert.Equal(t, "46.76", q.Total.String())
}

func TestPrice_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		lines   []Line
		wantErr error
	}{
		{name: "empty", wantErr: order.ErrEmptyLines},
		{name: "zero quantity", lines: []Line{line("p1", "1", 0)}, wantErr: order.ErrInvalidQuantity},
		{name: "duplicate", lines: []Line{line("p1", "1", 1), line("p1", "1", 2)}, wantErr: order.ErrDuplicateProduct},
		{name: "discount above 100", lines: []Line{line("p1", "1", 1, "101")}, wantErr: pricing.ErrInvalidDiscount},
		{name: "negative price", lines: []Line{line("p1", "-1", 1)}, wantErr: pricing.ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Price(&Draft{Lines: tt.lines})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_Save(t *testing.T) {
	repo := newMockRepo()
	s := newService(repo, &mockStore{})

	saved, err := s.Save(context.Background(), &Draft{Owner: "agent-7", Lines: []Line{line("p1", "3", 2)}})
	require.NoError(t, err)
	assert.Equal(t, "dr-1", saved.ID)
	assert.Equal(t, now, saved.UpdatedAt)
	assert.Contains(t, repo.drafts, "dr-1")

	saved.Observation = "deliver before noon"
	again, err := s.Save(context.Background(), saved)
	require.NoError(t, err)
	assert.Equal(t, "dr-1", again.ID)
	assert.Equal(t, "deliver before noon", repo.drafts["dr-1"].Observation)

	_, err = s.Save(context.Background(), &Draft{Lines: []Line{line("p1", "3", 2)}})
	require.ErrorIs(t, err, ErrOwnerRequired)

	_, err = s.Save(context.Background(), &Draft{Owner: "agent-7"})
	require.ErrorIs(t, err, order.ErrEmptyLines)
}

func TestService_List(t *testing.T) {
	repo := newMockRepo(
		Draft{ID: "a", Owner: "agent-7", UpdatedAt: now.Add(-time.Hour)},
		Draft{ID: "b", Owner: "agent-7", UpdatedAt: now},
		Draft{ID: "c", Owner: "agent-9", UpdatedAt: now},
	)
	s := newService(repo, &mockStore{})

	got, err := s.List(context.Background(), "agent-7")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	_, err = s.List(context.Background(), "")
	require.ErrorIs(t, err, ErrOwnerRequired)
}

func TestService_Submit(t *testing.T) {
	client := order.ClientRef{Name: "Farmacia Norte", TaxID: "30-70000001-2"}
	repo := newMockRepo(Draft{
		ID:          "dr-1",
		Owner:       "agent-7",
		Client:      client,
		Lines:       []Line{line("amox500", "12.50", 3, "10", "0", "5", "0")},
		Observation: "urgent",
	})
	store := &mockStore{}
	s := newService(repo, store)

	o, err := s.Submit(context.Background(), "dr-1")
	require.NoError(t, err)

	assert.Equal(t, "ord-42", o.ID)
	assert.Equal(t, order.StateNew, o.State)
	assert.Equal(t, client, o.Client)
	assert.Equal(t, "urgent", o.Observation)
	assert.Equal(t, "32.06", o.Total.String())
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 3, o.Lines[0].Ordered)
	assert.False(t, o.Lines[0].Found.Set)
	assert.NotContains(t, repo.drafts, "dr-1")

	_, err = s.Submit(context.Background(), "dr-1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, store.created, 1)
}

func TestService_SubmitCreateFails(t *testing.T) {
	repo := newMockRepo(Draft{ID: "dr-1", Owner: "agent-7", Lines: []Line{line("p1", "1", 1)}})
	s := newService(repo, &mockStore{err: errors.New("db down")})

	_, err := s.Submit(context.Background(), "dr-1")
	require.Error(t, err)
	assert.Contains(t, repo.drafts, "dr-1")
}

func TestService_Quote(t *testing.T) {
	repo := newMockRepo(Draft{ID: "dr-1", Owner: "agent-7", Lines: []Line{line("p1", "9.99", 1, "5", "1.75")}})
	s := newService(repo, &mockStore{})

	q, err := s.Quote(context.Background(), "dr-1")
	require.NoError(t, err)
	assert.Equal(t, "9.3244", q.Lines[0].NetUnitPrice.String())

	_, err = s.Quote(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
