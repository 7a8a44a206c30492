package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/pharma-fulfillment/internal/domain/pricing"
)

func (h *Handler) netPrice(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decPriceRequest(d)
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}
	a, err := pricing.LineAmounts(req.Price, req.Tiers, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("quantity")
	e.Int(req.Quantity)
	encAmounts(&e, a)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}
