package storefront

import (
	"context"
	"net/http"
)

// CatalogHandler handles catalog cards and the product preview.
type CatalogHandler struct {
	session *Session
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(s *Session) *CatalogHandler {
	return &CatalogHandler{session: s}
}

// List handles GET /api/catalog
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	read(h.session, w, r, func() []CardView {
		return catalogView(h.session.Store)
	})
}

// Select handles POST /api/preview/{id}
func (h *CatalogHandler) Select(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.session.do(w, r, http.StatusOK, func(ctx context.Context) error {
		return h.session.Flow.SelectCard(ctx, id)
	})
}

// Close handles DELETE /api/preview
func (h *CatalogHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.session.do(w, r, http.StatusOK, h.session.Flow.CloseModal)
}
