package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

// requestError marks malformed request input.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return "invalid request: " + e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, draft.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrIllegalTransition), errors.Is(err, order.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrIncompleteQuantities), errors.Is(err, pipeline.ErrNoPendingLines):
		return http.StatusUnprocessableEntity
	case errors.As(err, new(*requestError)),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrLineNotFound),
		errors.Is(err, order.ErrDuplicateProduct),
		errors.Is(err, order.ErrEmptyLines),
		errors.Is(err, pricing.ErrInvalidDiscount),
		errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, draft.ErrOwnerRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = http.StatusText(code)
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(msg)
	if ite := (*pipeline.IllegalTransitionError)(nil); errors.As(err, &ite) {
		e.FieldStart("state")
		e.Str(string(ite.State))
	}
	if iqe := (*pipeline.IncompleteQuantitiesError)(nil); errors.As(err, &iqe) {
		e.FieldStart("product_ids")
		e.ArrStart()
		for _, id := range iqe.ProductIDs {
			e.Str(id)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
	writeJSON(w, code, e.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
