package pipeline

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

// Outcome is the result of a successful transition.
type Outcome struct {
	Order *order.Order
	Event Event
	// Reconciliation is set by finalize_checkpicking.
	Reconciliation *Reconciliation
}

type step struct {
	to    order.State
	apply func(t *transition) error
	// reprice marks transitions that change line data; their event carries
	// the recomputed totals.
	reprice bool
}

// graph is the canonical transition table. Any (state, action) pair missing
// from it is illegal.
var graph = map[order.State]map[Action]step{
	order.StateNew: {
		ActionStartPicking: {to: order.StatePicking, apply: openStage(order.StagePicking)},
	},
	order.StatePicking: {
		ActionCancel:              {to: order.StateNew, apply: cancelPicking, reprice: true},
		ActionSaveQuantities:      {to: order.StatePicking, apply: saveQuantities, reprice: true},
		ActionFinalizePicking:     {to: order.StatePacking, apply: finalizePicking, reprice: true},
		ActionRouteToCheckPicking: {to: order.StateCheckPicking},
	},
	order.StateCheckPicking: {
		ActionSaveQuantities:       {to: order.StateCheckPicking, apply: saveQuantities, reprice: true},
		ActionFinalizeCheckPicking: {to: order.StatePacking, apply: finalizeCheckPicking, reprice: true},
	},
	order.StatePacking: {
		ActionCancel:          {to: order.StatePicking, apply: discardStage(order.StagePacking)},
		ActionStartPacking:    {to: order.StatePacking, apply: openStage(order.StagePacking)},
		ActionFinalizePacking: {to: order.StateShipped, apply: finalizePacking, reprice: true},
	},
	order.StateShipped: {
		ActionCancel:  {to: order.StatePacking, apply: discardStage(order.StageShipping)},
		ActionDeliver: {to: order.StateDelivered, apply: closeStage(order.StageShipping)},
	},
	order.StateDelivered: {
		ActionRequestInvoicing: {to: order.StatePendingInvoice},
	},
	order.StatePendingInvoice: {
		ActionStartInvoicing: {to: order.StateInvoicing, apply: openStage(order.StageInvoicing)},
	},
	order.StateInvoicing: {
		ActionFinalizeInvoicing: {to: order.StatePendingInvoice, apply: closeStage(order.StageInvoicing)},
	},
}

// cancellable lists the states an administrative cancel_order may leave.
var cancellable = []order.State{
	order.StateNew,
	order.StatePicking,
	order.StateCheckPicking,
	order.StatePacking,
	order.StateShipped,
	order.StateInvoicing,
}

// stageOrder fixes the iteration order over stage records.
var stageOrder = []order.Stage{
	order.StagePicking,
	order.StagePacking,
	order.StageShipping,
	order.StageInvoicing,
}

func init() {
	for _, s := range cancellable {
		graph[s][ActionCancelOrder] = step{to: order.StateCancelled, apply: cancelOrder}
	}
}

// Allowed reports whether action is part of the transition table for state.
// Guards may still reject it.
func Allowed(state order.State, action Action) bool {
	_, ok := graph[state][action]
	return ok
}

// Apply computes the order that results from cmd. It never mutates current:
// on error the caller's order is exactly as it was.
func Apply(current *order.Order, cmd Command, now time.Time) (*Outcome, error) {
	st, ok := graph[current.State][cmd.Action]
	if !ok {
		return nil, &IllegalTransitionError{State: current.State, Action: cmd.Action}
	}

	t := &transition{
		order: current.Clone(),
		from:  current.State,
		cmd:   cmd,
		now:   now,
	}
	if st.apply != nil {
		if err := st.apply(t); err != nil {
			return nil, err
		}
	}
	t.order.State = st.to

	ev := Event{
		OrderID: t.order.ID,
		Action:  cmd.Action,
		State:   st.to,
		Stage:   t.stage,
		Record:  t.record,
		At:      now,
	}
	if st.reprice {
		if err := t.order.Recompute(); err != nil {
			return nil, err
		}
		ev.Subtotal = decimal.NewNullDecimal(t.order.Subtotal)
		ev.Total = decimal.NewNullDecimal(t.order.Total)
	}

	return &Outcome{
		Order:          t.order,
		Event:          ev,
		Reconciliation: t.reconciliation,
	}, nil
}

// transition is the scratch state of one Apply call. order is a private clone.
type transition struct {
	order *order.Order
	from  order.State
	cmd   Command
	now   time.Time

	stage          order.Stage
	record         *order.StageRecord
	reconciliation *Reconciliation
}

func (t *transition) illegal(format string, args ...any) error {
	return &IllegalTransitionError{
		State:  t.from,
		Action: t.cmd.Action,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (t *transition) touch(stage order.Stage, r order.StageRecord) {
	t.stage = stage
	t.record = &r
}

func openStage(stage order.Stage) func(t *transition) error {
	return func(t *transition) error {
		if r, ok := t.order.Record(stage); ok && r.Status != order.StageCancelled {
			return t.illegal("stage %s already %s", stage, r.Status)
		}
		r := order.StageRecord{
			Actor:     t.cmd.Actor,
			StartedAt: t.now,
			Status:    order.StageInProgress,
		}
		t.order.Stages[stage] = r
		t.touch(stage, r)
		return nil
	}
}

func closeStage(stage order.Stage) func(t *transition) error {
	return func(t *transition) error {
		r, ok := t.order.Record(stage)
		if !ok || r.Status == order.StageCancelled {
			return t.illegal("stage %s was not started", stage)
		}
		finished := t.now
		r.FinishedAt = &finished
		r.Status = order.StageFinished
		t.order.Stages[stage] = r
		t.touch(stage, r)
		return nil
	}
}

// discardStage cancels the record of the stage being rolled back and drops
// it, so re-entering the stage starts from scratch. Earlier records stay.
func discardStage(stage order.Stage) func(t *transition) error {
	return func(t *transition) error {
		t.stage = stage
		r, ok := t.order.Record(stage)
		if !ok {
			return nil
		}
		delete(t.order.Stages, stage)
		cancelled := t.now
		r.FinishedAt = &cancelled
		r.Status = order.StageCancelled
		t.touch(stage, r)
		return nil
	}
}

func cancelPicking(t *transition) error {
	if err := discardStage(order.StagePicking)(t); err != nil {
		return err
	}
	t.order.ResetAll()
	return nil
}

func saveQuantities(t *transition) error {
	for _, q := range t.cmd.Quantities {
		if err := t.order.SetFound(q.ProductID, q.Found); err != nil {
			return err
		}
	}
	return nil
}

func finalizePicking(t *transition) error {
	if missing := t.order.Untouched(); len(missing) > 0 {
		return &IncompleteQuantitiesError{ProductIDs: missing}
	}
	return closeStage(order.StagePicking)(t)
}

func finalizeCheckPicking(t *transition) error {
	rec, err := reconcile(t.order, t.cmd.Reconcile)
	if err != nil {
		return err
	}
	t.reconciliation = rec
	return closeStage(order.StagePicking)(t)
}

// finalizePacking closes packing and hands the order to shipping under the
// same actor.
func finalizePacking(t *transition) error {
	if err := closeStage(order.StagePacking)(t); err != nil {
		return err
	}
	return openStage(order.StageShipping)(t)
}

// cancelOrder keeps the in-progress record, marked cancelled, for audit.
func cancelOrder(t *transition) error {
	for _, stage := range stageOrder {
		r, ok := t.order.Record(stage)
		if !ok || r.Status != order.StageInProgress {
			continue
		}
		cancelled := t.now
		r.FinishedAt = &cancelled
		r.Status = order.StageCancelled
		t.order.Stages[stage] = r
		t.touch(stage, r)
	}
	return nil
}
