package storefront

import (
	"context"
	"net/http"
)

// BasketHandler handles the basket modal.
type BasketHandler struct {
	session *Session
}

// NewBasketHandler creates a basket handler.
func NewBasketHandler(s *Session) *BasketHandler {
	return &BasketHandler{session: s}
}

// View handles GET /api/basket
func (h *BasketHandler) View(w http.ResponseWriter, r *http.Request) {
	read(h.session, w, r, func() BasketView {
		return basketView(h.session.Store)
	})
}

// Open handles POST /api/basket/open
func (h *BasketHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.session.do(w, r, http.StatusOK, h.session.Flow.OpenBasket)
}

// Toggle handles POST /api/basket/{id}
func (h *BasketHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.session.do(w, r, http.StatusOK, func(ctx context.Context) error {
		_, err := h.session.Flow.ToggleBasket(ctx, id)
		return err
	})
}

// Checkout handles POST /api/checkout
func (h *BasketHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.session.do(w, r, http.StatusOK, h.session.Flow.BeginCheckout)
}
