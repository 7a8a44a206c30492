package pipeline

import (
	"maps"
	"slices"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

// ReconcileRequest carries the reviewer's choices for finalize_checkpicking.
type ReconcileRequest struct {
	// Selected lists the pending lines to move into a child order. Nil selects
	// every pending line; an empty non-nil slice selects none.
	Selected []string
	// RequireSplit fails the reconciliation when nothing ends up selected.
	RequireSplit bool
	// Observation is copied onto the child order.
	Observation string
	// Audit is attached to the matching parent lines as they are checked.
	Audit map[string]order.LineAudit
}

// Overage reports a line where more was found than ordered. Overages are
// never split; they are surfaced for the reviewer.
type Overage struct {
	ProductID string
	Ordered   int
	Found     int
	Excess    int
}

// Reconciliation is the outcome of checking a partially fulfilled order.
type Reconciliation struct {
	// Candidates are the product ids with a positive pending quantity.
	Candidates []string
	Overages   []Overage
	// Child is nil when no line was selected.
	Child *order.Draft
}

// ReconcileKey identifies the remainder order of parent. A parent spawns at
// most one remainder: retries and later check-picking rounds reached through
// a rollback resolve to the child created first.
func ReconcileKey(parent *order.Order) string {
	return parent.ID + "/remainder"
}

// Preview reports what finalize_checkpicking would do with req without
// touching o.
func Preview(o *order.Order, req ReconcileRequest) (*Reconciliation, error) {
	if o.State != order.StateCheckPicking {
		return nil, &IllegalTransitionError{
			State:  o.State,
			Action: ActionFinalizeCheckPicking,
			Reason: "order is not being checked",
		}
	}
	return reconcile(o.Clone(), req)
}

// reconcile computes the split of parent. The parent keeps its lines as they
// are; only audit metadata is written to it.
func reconcile(parent *order.Order, req ReconcileRequest) (*Reconciliation, error) {
	res := &Reconciliation{}
	pending := make(map[string]int)
	for _, l := range parent.Lines {
		switch p := l.Pending(); {
		case p > 0:
			res.Candidates = append(res.Candidates, l.ProductID)
			pending[l.ProductID] = p
		case p < 0:
			res.Overages = append(res.Overages, Overage{
				ProductID: l.ProductID,
				Ordered:   l.Ordered,
				Found:     l.Found.Value,
				Excess:    -p,
			})
		}
	}

	selected := make(map[string]struct{}, len(res.Candidates))
	if req.Selected == nil {
		for _, id := range res.Candidates {
			selected[id] = struct{}{}
		}
	}
	for _, id := range req.Selected {
		if _, ok := parent.Line(id); !ok {
			return nil, &order.LineNotFoundError{ProductID: id}
		}
		if _, ok := pending[id]; !ok {
			return nil, &NotPendingError{ProductID: id}
		}
		selected[id] = struct{}{}
	}
	if len(selected) == 0 && req.RequireSplit {
		return nil, ErrNoPendingLines
	}

	for _, id := range slices.Sorted(maps.Keys(req.Audit)) {
		l, ok := parent.Line(id)
		if !ok {
			return nil, &order.LineNotFoundError{ProductID: id}
		}
		a := req.Audit[id]
		a.Batches = slices.Clone(a.Batches)
		l.Audit = &a
	}

	if len(selected) == 0 {
		return res, nil
	}

	lines := make([]order.Line, 0, len(selected))
	for _, l := range parent.Lines {
		if _, ok := selected[l.ProductID]; !ok {
			continue
		}
		child := order.Line{
			ProductID:   l.ProductID,
			Description: l.Description,
			UnitPrice:   l.UnitPrice,
			Tiers:       l.Tiers,
			Ordered:     pending[l.ProductID],
		}
		if err := child.Reprice(); err != nil {
			return nil, err
		}
		lines = append(lines, child)
	}
	subtotal, total := order.Totals(lines)

	res.Child = &order.Draft{
		Client:       parent.Client,
		Lines:        lines,
		State:        order.StateNew,
		Observation:  req.Observation,
		Subtotal:     subtotal,
		Total:        total,
		DerivedFrom:  parent.ID,
		ReconcileKey: ReconcileKey(parent),
	}
	return res, nil
}
