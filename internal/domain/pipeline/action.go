package pipeline

import (
	"fmt"
	"slices"
)

// Action is a staff request that drives the order state machine.
type Action string

const (
	ActionStartPicking         Action = "start_picking"
	ActionSaveQuantities       Action = "save_quantities"
	ActionFinalizePicking      Action = "finalize_picking"
	ActionRouteToCheckPicking  Action = "route_to_checkpicking"
	ActionFinalizeCheckPicking Action = "finalize_checkpicking"
	ActionStartPacking         Action = "start_packing"
	ActionFinalizePacking      Action = "finalize_packing"
	ActionDeliver              Action = "deliver"
	ActionRequestInvoicing     Action = "request_invoicing"
	ActionStartInvoicing       Action = "start_invoicing"
	ActionFinalizeInvoicing    Action = "finalize_invoicing"
	// ActionCancel rolls the current stage back one step.
	ActionCancel Action = "cancel"
	// ActionCancelOrder is the administrative cancel into Cancelled.
	ActionCancelOrder Action = "cancel_order"
)

// Actions lists every known action.
var Actions = []Action{
	ActionStartPicking, ActionSaveQuantities, ActionFinalizePicking,
	ActionRouteToCheckPicking, ActionFinalizeCheckPicking, ActionStartPacking,
	ActionFinalizePacking, ActionDeliver, ActionRequestInvoicing,
	ActionStartInvoicing, ActionFinalizeInvoicing, ActionCancel, ActionCancelOrder,
}

// ParseAction converts s into a known Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !slices.Contains(Actions, a) {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Quantity is a found quantity reported for one product.
type Quantity struct {
	ProductID string
	Found     int
}

// Command is one staff action against an order.
type Command struct {
	Action Action
	// Actor is the opaque identity of the staff member, recorded on the
	// stage records the action opens.
	Actor string
	// Quantities is used by save_quantities.
	Quantities []Quantity
	// Reconcile is used by finalize_checkpicking.
	Reconcile ReconcileRequest
}
