package domain

import (
	"context"
	"maps"
	"slices"
)

// =============================================================================
// ORDER DOMAIN TYPES
// =============================================================================

// PaymentMethod is how the customer pays for the order.
type PaymentMethod string

const (
	PaymentUnset  PaymentMethod = ""
	PaymentOnline PaymentMethod = "online"
	PaymentCash   PaymentMethod = "cash"
)

// Valid reports whether the method is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	return m == PaymentOnline || m == PaymentCash
}

// OrderField names a settable field of the draft order.
type OrderField string

const (
	FieldPayment OrderField = "payment"
	FieldAddress OrderField = "address"
	FieldEmail   OrderField = "email"
	FieldPhone   OrderField = "phone"
	FieldItems   OrderField = "items"
	FieldTotal   OrderField = "total"
)

// Valid reports whether f is a known order field.
func (f OrderField) Valid() bool {
	switch f {
	case FieldPayment, FieldAddress, FieldEmail, FieldPhone, FieldItems, FieldTotal:
		return true
	}
	return false
}

// Order is the draft order assembled during checkout and sent to the order sink.
type Order struct {
	Payment PaymentMethod `json:"payment"`
	Email   string        `json:"email" validate:"required"`
	Phone   string        `json:"phone" validate:"required"`
	Address string        `json:"address" validate:"required"`
	Total   int64         `json:"total"`
	Items   []string      `json:"items"`
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	o.Items = slices.Clone(o.Items)
	return o
}

// OrderResult is the confirmation returned after a successful submission.
type OrderResult struct {
	ID    string `json:"id"`
	Total int64  `json:"total"`
}

// FormErrors maps order fields to human-readable validation messages.
type FormErrors map[OrderField]string

// Clone returns a copy of the map. A nil map clones to an empty one.
func (e FormErrors) Clone() FormErrors {
	out := make(FormErrors, len(e))
	maps.Copy(out, e)
	return out
}

// Has reports whether any of the given fields has an error.
func (e FormErrors) Has(fields ...OrderField) bool {
	for _, f := range fields {
		if _, ok := e[f]; ok {
			return true
		}
	}
	return false
}

// Only returns the subset of errors for the given fields.
func (e FormErrors) Only(fields ...OrderField) FormErrors {
	out := make(FormErrors)
	for _, f := range fields {
		if msg, ok := e[f]; ok {
			out[f] = msg
		}
	}
	return out
}

// OrderSink accepts finished orders.
type OrderSink interface {
	// SubmitOrder sends the order. A ValidationError means the backend
	// rejected field content; a transport error means it was not reached.
	SubmitOrder(ctx context.Context, order Order) (OrderResult, error)
}
