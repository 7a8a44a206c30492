package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/pharma-fulfillment/internal/domain/order"
)

var (
	// ErrIllegalTransition is returned when an action is not permitted from the
	// order's current state. The order is left untouched.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrIncompleteQuantities is returned by finalize_picking while some line
	// never had its found quantity recorded.
	ErrIncompleteQuantities = errors.New("found quantities incomplete")
	// ErrNoPendingLines is returned when a split is requested but nothing is
	// eligible for it.
	ErrNoPendingLines = errors.New("no pending lines")
)

// IllegalTransitionError describes a rejected action.
type IllegalTransitionError struct {
	State  order.State
	Action Action
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s from %s: %s", e.Action, e.State, e.Reason)
	}
	return fmt.Sprintf("cannot %s from %s", e.Action, e.State)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// IncompleteQuantitiesError lists the lines still untouched.
type IncompleteQuantitiesError struct {
	ProductIDs []string
}

func (e *IncompleteQuantitiesError) Error() string {
	return fmt.Sprintf("found quantity not recorded for %s", strings.Join(e.ProductIDs, ", "))
}

func (e *IncompleteQuantitiesError) Is(target error) bool { return target == ErrIncompleteQuantities }

// NotPendingError indicates a selected line with nothing left to split.
type NotPendingError struct {
	ProductID string
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("product %s has no pending quantity", e.ProductID)
}

func (e *NotPendingError) Is(target error) bool { return target == ErrNoPendingLines }
