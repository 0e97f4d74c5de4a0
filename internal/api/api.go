// Package api exposes the checkout engine over HTTP: cart preview, order
// placement, and customer-facing order tracking. Request and response
// bodies are hand-coded with jx; money travels as integer cents.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storelink/checkout/internal/domain/catalog"
	"github.com/storelink/checkout/internal/domain/checkout"
)

// tenantHeader names the tenant every request is scoped to. Upstream
// infrastructure authenticates the caller; this service only trusts the
// resolved id.
const tenantHeader = "X-Tenant-ID"

// Service is the slice of the checkout engine the HTTP layer needs.
type Service interface {
	Preview(ctx context.Context, tenantID string, req *checkout.Request) (*checkout.Quote, error)
	Checkout(ctx context.Context, tenantID string, req *checkout.Request) (*checkout.Receipt, error)
	Track(ctx context.Context, tenantID, orderID, token string) (*checkout.Order, error)
}

// Handler serves the public checkout API.
type Handler struct {
	svc    Service
	stores catalog.StoreRepository
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(svc Service, stores catalog.StoreRepository) *Handler {
	return &Handler{svc: svc, stores: stores}
}

// Routes returns the handler's route table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/checkout/preview", h.preview)
	mux.HandleFunc("POST /api/v1/checkout", h.checkout)
	mux.HandleFunc("GET /api/v1/orders/{id}/tracking", h.track)
	return mux
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if !h.fillDefaultStore(r.Context(), w, tenant, req) {
		return
	}

	quote, err := h.svc.Preview(r.Context(), tenant, req)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeQuote(quote))
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if !h.fillDefaultStore(r.Context(), w, tenant, req) {
		return
	}

	receipt, err := h.svc.Checkout(r.Context(), tenant, req)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeReceipt(receipt))
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	o, err := h.svc.Track(r.Context(), tenant, r.PathValue("id"), r.URL.Query().Get("token"))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrder(o))
}

// tenant extracts and validates the tenant header, answering the request
// itself when the header is unusable.
func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(tenantHeader))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing "+tenantHeader+" header")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "malformed "+tenantHeader+" header")
		return "", false
	}
	return id, true
}

// fillDefaultStore routes requests that name no store to the tenant's
// default store.
func (h *Handler) fillDefaultStore(ctx context.Context, w http.ResponseWriter, tenant string, req *checkout.Request) bool {
	if req.StoreID != "" {
		return true
	}

	store, err := catalog.DefaultStore(ctx, h.stores, tenant)
	switch {
	case err == nil:
		req.StoreID = store.ID
		return true
	case errors.Is(err, catalog.ErrStoreNotFound):
		writeError(w, http.StatusNotFound, "tenant has no active store")
		return false
	default:
		h.internalError(ctx, w, err)
		return false
	}
}

func (h *Handler) internalError(ctx context.Context, w http.ResponseWriter, err error) {
	zctx.From(ctx).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
