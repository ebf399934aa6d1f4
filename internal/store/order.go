package store

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
)

// SetOrderField writes one field of the draft order, re-runs validation and
// publishes order:ready with the full draft when it passes.
//
// items appends the value (a product id) instead of overwriting; total parses
// the value as a non-negative integer; payment accepts only known methods.
// Invalid input leaves the order untouched and returns an EINVALID error.
func (s *Store) SetOrderField(ctx context.Context, field domain.OrderField, value string) error {
	const op = "order.set_field"

	s.mu.Lock()
	switch field {
	case domain.FieldItems:
		s.order.Items = append(s.order.Items, value)
	case domain.FieldTotal:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			s.mu.Unlock()
			return domain.Errorf(domain.EINVALID, op, "invalid total: %q", value)
		}
		s.order.Total = n
	case domain.FieldPayment:
		method := domain.PaymentMethod(value)
		if !method.Valid() {
			s.mu.Unlock()
			return domain.Errorf(domain.EINVALID, op, "unknown payment method: %q", value)
		}
		s.order.Payment = method
	case domain.FieldEmail:
		s.order.Email = value
	case domain.FieldPhone:
		s.order.Phone = value
	case domain.FieldAddress:
		s.order.Address = value
	default:
		s.mu.Unlock()
		return domain.Errorf(domain.EINVALID, op, "unknown order field: %q", field)
	}
	s.mu.Unlock()

	if s.ValidateOrder(ctx) {
		s.bus.Publish(ctx, bus.TopicOrderReady, s.Order())
	}
	return nil
}

// ValidateOrder rebuilds the error map from the current draft order, always
// publishes validation:changed with it and reports whether it is empty.
// Only email, phone and address are checked.
func (s *Store) ValidateOrder(ctx context.Context) bool {
	s.mu.Lock()
	errs := s.checkOrder(s.order)
	s.formErrors = errs
	payload := errs.Clone()
	s.mu.Unlock()

	s.bus.Publish(ctx, bus.TopicValidationChanged, payload)
	return len(payload) == 0
}

// PrepareOrder fills the draft order's items and total from the basket as it
// is now and returns a copy ready for submission. It publishes nothing.
func (s *Store) PrepareOrder() domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]string, len(s.basket))
	for i, p := range s.basket {
		items[i] = p.ID
	}
	s.order.Items = items
	s.order.Total = s.total()
	return s.order.Clone()
}

// Order returns a copy of the draft order.
func (s *Store) Order() domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Clone()
}

// FormErrors returns a copy of the errors from the last validation.
func (s *Store) FormErrors() domain.FormErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formErrors.Clone()
}

// checkOrder must be called with s.mu held.
func (s *Store) checkOrder(order domain.Order) domain.FormErrors {
	errs := domain.FormErrors{}

	err := s.validate.Struct(order)
	if err == nil {
		return errs
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		s.logger.Error("order validation failed to run", "error", err)
		return errs
	}
	for _, fe := range fieldErrs {
		field := domain.OrderField(fe.Field())
		errs[field] = fieldMessage(field, fe.Tag())
	}
	return errs
}

func fieldMessage(field domain.OrderField, tag string) string {
	if tag == "required" {
		return string(field) + " required"
	}
	return string(field) + " is invalid"
}

// newOrderValidator reports field names by their json tag so errors key
// directly into domain.FormErrors.
func newOrderValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
