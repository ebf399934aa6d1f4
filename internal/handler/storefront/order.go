package storefront

import (
	"context"
	"net/http"

	"github.com/dukerupert/larek/internal/domain"
	"github.com/dukerupert/larek/internal/handler"
)

// OrderHandler handles the delivery and contacts forms and submission.
type OrderHandler struct {
	session *Session
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(s *Session) *OrderHandler {
	return &OrderHandler{session: s}
}

type deliveryRequest struct {
	Payment domain.PaymentMethod `json:"payment"`
	Address string               `json:"address"`
}

type contactsRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Delivery handles PUT /api/order/delivery
//
// Field errors are not a request failure: the response carries the updated
// form with its errors so the client can render them.
func (h *OrderHandler) Delivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.session.do(w, r, http.StatusOK, func(ctx context.Context) error {
		return h.session.Flow.SetDelivery(ctx, req.Payment, req.Address)
	})
}

// ConfirmDelivery handles POST /api/order/delivery/confirm
func (h *OrderHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	h.session.do(w, r, http.StatusOK, h.session.Flow.ConfirmDelivery)
}

// Contacts handles PUT /api/order/contacts
func (h *OrderHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	var req contactsRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.session.do(w, r, http.StatusOK, func(ctx context.Context) error {
		return h.session.Flow.SetContacts(ctx, req.Email, req.Phone)
	})
}

// Submit handles POST /api/order
//
// The order is sent in the background; the outcome arrives as
// order:submitted or error:reported on the event stream.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.session.do(w, r, http.StatusAccepted, h.session.Flow.Submit)
}

// Finish handles POST /api/order/finish
func (h *OrderHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.session.do(w, r, http.StatusOK, h.session.Flow.Finish)
}
