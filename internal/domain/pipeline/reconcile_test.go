package pipeline

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

func checking(lines ...order.Line) *order.Order {
	o := newOrder(order.StateCheckPicking, lines...)
	o.Stages[order.StagePicking] = inProgress("ana", t0)
	return o
}

func TestFinalizeCheckPicking_Conservation(t *testing.T) {
	o := checking(
		found(newLine("p1", "12.50", 10, "10", "0", "5", "0"), 6),
		found(newLine("p2", "4", 5), 5),
	)

	out, err := Apply(o, Command{
		Action:    ActionFinalizeCheckPicking,
		Reconcile: ReconcileRequest{Observation: "remainder of ord-1"},
	}, t1)
	require.NoError(t, err)

	assert.Equal(t, order.StatePacking, out.Order.State)
	assert.Equal(t, finished("ana", t0, t1), out.Order.Stages[order.StagePicking])

	rec := out.Reconciliation
	require.NotNil(t, rec)
	assert.Equal(t, []string{"p1"}, rec.Candidates)
	assert.Empty(t, rec.Overages)

	child := rec.Child
	require.NotNil(t, child)
	require.Len(t, child.Lines, 1)
	l := child.Lines[0]
	assert.Equal(t, "p1", l.ProductID)
	assert.Equal(t, 4, l.Ordered)
	assert.Equal(t, order.Found{}, l.Found)
	assert.Equal(t, o.Lines[0].Tiers, l.Tiers)
	assert.True(t, o.Lines[0].UnitPrice.Equal(l.UnitPrice))

	assert.Equal(t, "10.6875", l.NetUnitPrice.String())
	assert.Equal(t, "50", l.SubtotalGross.String())
	assert.Equal(t, "42.75", l.SubtotalNet.String())
	assert.Equal(t, "50", child.Subtotal.String())
	assert.Equal(t, "42.75", child.Total.String())

	assert.Equal(t, order.StateNew, child.State)
	assert.Equal(t, "ord-1", child.DerivedFrom)
	assert.Equal(t, "ord-1/remainder", child.ReconcileKey)
	assert.Equal(t, o.Client, child.Client)
	assert.Equal(t, "remainder of ord-1", child.Observation)

	// Parent lines keep their ordered and found quantities.
	assert.Equal(t, 10, out.Order.Lines[0].Ordered)
	assert.Equal(t, order.FoundQuantity(6), out.Order.Lines[0].Found)
}

func TestFinalizeCheckPicking_SecondRunIsIllegal(t *testing.T) {
	o := checking(found(newLine("p1", "1", 10), 6))

	out, err := Apply(o, Command{Action: ActionFinalizeCheckPicking}, t1)
	require.NoError(t, err)
	require.NotNil(t, out.Reconciliation.Child)

	again, err := Apply(out.Order, Command{Action: ActionFinalizeCheckPicking}, t1)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Nil(t, again)
}

func TestFinalizeCheckPicking_Selection(t *testing.T) {
	lines := func() []order.Line {
		return []order.Line{
			found(newLine("p1", "10", 10), 6),
			found(newLine("p2", "10", 4), 0),
			found(newLine("p3", "10", 2), 2),
			found(newLine("p4", "10", 1), 3),
		}
	}

	tests := []struct {
		name      string
		req       ReconcileRequest
		wantChild []string
		wantErr   error
	}{
		{name: "default selects every candidate", wantChild: []string{"p1", "p2"}},
		{name: "subset", req: ReconcileRequest{Selected: []string{"p2"}}, wantChild: []string{"p2"}},
		{name: "duplicates collapse", req: ReconcileRequest{Selected: []string{"p2", "p1", "p2"}}, wantChild: []string{"p1", "p2"}},
		{name: "operator declines split", req: ReconcileRequest{Selected: []string{}}},
		{
			name:    "split required but nothing selected",
			req:     ReconcileRequest{Selected: []string{}, RequireSplit: true},
			wantErr: ErrNoPendingLines,
		},
		{name: "fulfilled line selected", req: ReconcileRequest{Selected: []string{"p3"}}, wantErr: ErrNoPendingLines},
		{name: "overstocked line selected", req: ReconcileRequest{Selected: []string{"p4"}}, wantErr: ErrNoPendingLines},
		{name: "unknown line selected", req: ReconcileRequest{Selected: []string{"zz"}}, wantErr: order.ErrLineNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := checking(lines()...)
			out, err := Apply(o, Command{Action: ActionFinalizeCheckPicking, Reconcile: tt.req}, t1)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, order.StateCheckPicking, o.State)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, order.StatePacking, out.Order.State)

			rec := out.Reconciliation
			assert.Equal(t, []string{"p1", "p2"}, rec.Candidates)
			assert.Equal(t, []Overage{{ProductID: "p4", Ordered: 1, Found: 3, Excess: 2}}, rec.Overages)
			if tt.wantChild == nil {
				assert.Nil(t, rec.Child)
				return
			}
			require.NotNil(t, rec.Child)
			var got []string
			for _, l := range rec.Child.Lines {
				got = append(got, l.ProductID)
			}
			assert.Equal(t, tt.wantChild, got)
		})
	}
}

func TestFinalizeCheckPicking_NothingPending(t *testing.T) {
	o := checking(found(newLine("p1", "10", 2), 2))

	out, err := Apply(o, Command{Action: ActionFinalizeCheckPicking}, t1)
	require.NoError(t, err)
	assert.Equal(t, order.StatePacking, out.Order.State)
	assert.Nil(t, out.Reconciliation.Child)
	assert.Empty(t, out.Reconciliation.Candidates)

	_, err = Apply(checking(found(newLine("p1", "10", 2), 2)), Command{
		Action:    ActionFinalizeCheckPicking,
		Reconcile: ReconcileRequest{RequireSplit: true},
	}, t1)
	require.ErrorIs(t, err, ErrNoPendingLines)
}

func TestFinalizeCheckPicking_Audit(t *testing.T) {
	expiry := time.Date(2027, 5, 31, 0, 0, 0, 0, time.UTC)
	audit := order.LineAudit{
		ColdChain: true,
		Batches:   []order.Batch{{Lot: "L-2231", Expiry: expiry}},
	}

	o := checking(found(newLine("insulin", "80", 2), 2), found(newLine("p2", "1", 1), 1))
	out, err := Apply(o, Command{
		Action:    ActionFinalizeCheckPicking,
		Reconcile: ReconcileRequest{Audit: map[string]order.LineAudit{"insulin": audit}},
	}, t1)
	require.NoError(t, err)

	l, ok := out.Order.Line("insulin")
	require.True(t, ok)
	require.NotNil(t, l.Audit)
	assert.Equal(t, audit, *l.Audit)
	assert.Nil(t, o.Lines[0].Audit)

	_, err = Apply(o, Command{
		Action:    ActionFinalizeCheckPicking,
		Reconcile: ReconcileRequest{Audit: map[string]order.LineAudit{"nope": audit}},
	}, t1)
	var lnf *order.LineNotFoundError
	require.True(t, errors.As(err, &lnf))
	assert.Equal(t, "nope", lnf.ProductID)
}

func TestPreview(t *testing.T) {
	o := checking(found(newLine("p1", "10", 5), 1))
	snapshot := o.Clone()

	rec, err := Preview(o, ReconcileRequest{})
	require.NoError(t, err)
	require.NotNil(t, rec.Child)
	assert.Equal(t, 4, rec.Child.Lines[0].Ordered)
	assert.Equal(t, snapshot, o)

	_, err = Preview(newOrder(order.StatePacking, newLine("p1", "10", 5)), ReconcileRequest{})
	require.ErrorIs(t, err, ErrIllegalTransition)
}
