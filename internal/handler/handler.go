// Package handler exposes the fulfillment pipeline over HTTP with JSON
// bodies.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/pharma-fulfillment/internal/domain/draft"
	"github.com/xenking/pharma-fulfillment/internal/domain/order"
	"github.com/xenking/pharma-fulfillment/internal/domain/pipeline"
)

// ActorHeader carries the opaque identity of the staff member acting.
const ActorHeader = "X-Actor-ID"

// Orders is the order side of the API, implemented by *pipeline.Service.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	Execute(ctx context.Context, id string, expectedVersion int, cmd pipeline.Command) (*pipeline.Result, error)
	Preview(ctx context.Context, id string, req pipeline.ReconcileRequest) (*pipeline.Reconciliation, error)
}

// Drafts is the draft side of the API, implemented by *draft.Service.
type Drafts interface {
	Save(ctx context.Context, d *draft.Draft) (*draft.Draft, error)
	Get(ctx context.Context, id string) (*draft.Draft, error)
	List(ctx context.Context, owner string) ([]draft.Draft, error)
	Delete(ctx context.Context, id string) error
	Quote(ctx context.Context, id string) (*draft.Quote, error)
	Submit(ctx context.Context, id string) (*order.Order, error)
}

var (
	_ Orders = (*pipeline.Service)(nil)
	_ Drafts = (*draft.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	orders Orders
	drafts Drafts
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders Orders, drafts Drafts) *Handler {
	return &Handler{orders: orders, drafts: drafts}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/actions/{action}", h.executeAction)
	mux.HandleFunc("GET /api/orders/{id}/reconciliation", h.previewReconciliation)

	mux.HandleFunc("POST /api/pricing/net", h.netPrice)

	mux.HandleFunc("GET /api/drafts", h.listDrafts)
	mux.HandleFunc("POST /api/drafts", h.createDraft)
	mux.HandleFunc("GET /api/drafts/{id}", h.getDraft)
	mux.HandleFunc("PUT /api/drafts/{id}", h.putDraft)
	mux.HandleFunc("DELETE /api/drafts/{id}", h.deleteDraft)
	mux.HandleFunc("GET /api/drafts/{id}/quote", h.quoteDraft)
	mux.HandleFunc("POST /api/drafts/{id}/submit", h.submitDraft)
}
