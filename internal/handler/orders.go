package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
)

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encOrder(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// executeAction applies one staff action. The body carries the order version
// the caller last saw; a stale version yields 409.
func (h *Handler) executeAction(w http.ResponseWriter, r *http.Request) {
	action, err := pipeline.ParseAction(r.PathValue("action"))
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decActionRequest(d)
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}

	res, err := h.orders.Execute(r.Context(), r.PathValue("id"), req.Version, pipeline.Command{
		Action:     action,
		Actor:      r.Header.Get(ActorHeader),
		Quantities: req.Quantities,
		Reconcile:  req.Reconcile,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encResult(&e, res)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) previewReconciliation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.orders.Preview(r.Context(), r.PathValue("id"), pipeline.ReconcileRequest{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encReconciliation(&e, rec)
	writeJSON(w, http.StatusOK, e.Bytes())
}
