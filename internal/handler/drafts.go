package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

func (h *Handler) listDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.drafts.List(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	e.ArrStart()
	for i := range drafts {
		encDraft(&e, &drafts[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	h.saveDraft(w, r, "", http.StatusCreated)
}

func (h *Handler) putDraft(w http.ResponseWriter, r *http.Request) {
	h.saveDraft(w, r, r.PathValue("id"), http.StatusOK)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request, id string, code int) {
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decDraft(d)
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}
	in.ID = id

	saved, err := h.drafts.Save(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encDraft(&e, saved)
	writeJSON(w, code, e.Bytes())
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encDraft(&e, d)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) quoteDraft(w http.ResponseWriter, r *http.Request) {
	q, err := h.drafts.Quote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encQuote(&e, q)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) submitDraft(w http.ResponseWriter, r *http.Request) {
	o, err := h.drafts.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "submit draft"))
		return
	}
	var e jx.Encoder
	encOrder(&e, o)
	writeJSON(w, http.StatusCreated, e.Bytes())
}
