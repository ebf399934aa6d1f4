package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
)

func TestValidateOrder_BlankOrder(t *testing.T) {
	s, rec := newStore(t)

	ok := s.ValidateOrder(context.Background())

	assert.False(t, ok)
	assert.Equal(t, domain.FormErrors{
		domain.FieldEmail:   "email required",
		domain.FieldPhone:   "phone required",
		domain.FieldAddress: "address required",
	}, s.FormErrors())

	ev, found := rec.last(bus.TopicValidationChanged)
	require.True(t, found)
	assert.Equal(t, s.FormErrors(), ev.Payload)
}

func TestValidateOrder_Deterministic(t *testing.T) {
	s, rec := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetOrderField(ctx, domain.FieldPhone, "+7 000"))

	first := s.ValidateOrder(ctx)
	firstErrs := s.FormErrors()
	second := s.ValidateOrder(ctx)

	assert.Equal(t, first, second)
	assert.Equal(t, firstErrs, s.FormErrors())

	evs := rec.of(bus.TopicValidationChanged)
	require.GreaterOrEqual(t, len(evs), 2)
	assert.Equal(t, evs[len(evs)-2].Payload, evs[len(evs)-1].Payload)
}

func TestValidateOrder_ReplacesWholesale(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetOrderField(ctx, domain.FieldAddress, "Moscow"))
	assert.False(t, s.FormErrors().Has(domain.FieldAddress))

	require.NoError(t, s.SetOrderField(ctx, domain.FieldAddress, ""))
	assert.True(t, s.FormErrors().Has(domain.FieldAddress))
}

func TestValidateOrder_PaymentAndItemsNotValidated(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetOrderField(ctx, domain.FieldEmail, "a@b.c"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldPhone, "1"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldAddress, "x"))

	assert.Empty(t, s.FormErrors(), "unset payment and empty items produce no errors")
	assert.Equal(t, domain.PaymentUnset, s.Order().Payment)
}

func TestSetOrderField_OrderReadyScenario(t *testing.T) {
	s, rec := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetOrderField(ctx, domain.FieldPayment, string(domain.PaymentOnline)))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldEmail, ""))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldPhone, "1"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldAddress, "x"))

	assert.False(t, s.ValidateOrder(ctx))
	assert.Equal(t, domain.FormErrors{domain.FieldEmail: "email required"}, s.FormErrors())
	assert.Empty(t, rec.of(bus.TopicOrderReady))

	require.NoError(t, s.SetOrderField(ctx, domain.FieldEmail, "a@b.c"))

	assert.Empty(t, s.FormErrors())
	ready := rec.of(bus.TopicOrderReady)
	require.Len(t, ready, 1)

	order, ok := ready[0].Payload.(domain.Order)
	require.True(t, ok)
	assert.Equal(t, domain.PaymentOnline, order.Payment)
	assert.Equal(t, "x", order.Address)
	assert.Equal(t, "a@b.c", order.Email)
	assert.Equal(t, "1", order.Phone)
}

func TestSetOrderField_ReadyExactlyOnce(t *testing.T) {
	s, rec := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetOrderField(ctx, domain.FieldEmail, "old@b.c"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldEmail, "a@b.c"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldPhone, "+7"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldAddress, "Street 1"))

	ready := rec.of(bus.TopicOrderReady)
	require.Len(t, ready, 1)
	order := ready[0].Payload.(domain.Order)
	assert.Equal(t, "a@b.c", order.Email)
	assert.Equal(t, "+7", order.Phone)
	assert.Equal(t, "Street 1", order.Address)

	assert.Len(t, rec.of(bus.TopicValidationChanged), 4, "every set re-runs validation")
}

func TestSetOrderField_ItemsAppendAndTotalOverwrites(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetOrderField(ctx, domain.FieldItems, "p1"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldItems, "p2"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldTotal, "100"))
	require.NoError(t, s.SetOrderField(ctx, domain.FieldTotal, " 350 "))

	order := s.Order()
	assert.Equal(t, []string{"p1", "p2"}, order.Items)
	assert.Equal(t, int64(350), order.Total)
}

func TestSetOrderField_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		field domain.OrderField
		value string
	}{
		{"unknown field", domain.OrderField("colour"), "red"},
		{"non-numeric total", domain.FieldTotal, "many"},
		{"negative total", domain.FieldTotal, "-5"},
		{"unknown payment", domain.FieldPayment, "barter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec := newStore(t)

			err := s.SetOrderField(context.Background(), tt.field, tt.value)

			require.Error(t, err)
			assert.True(t, domain.IsCode(err, domain.EINVALID))
			assert.Equal(t, domain.Order{}.Clone(), s.Order())
			assert.Empty(t, rec.events)
		})
	}
}

func TestPrepareOrder(t *testing.T) {
	s, rec := newStore(t)
	ctx := context.Background()

	s.AddToBasket(ctx, domain.Product{ID: "p1", Price: domain.Price(100)})
	s.AddToBasket(ctx, domain.Product{ID: "p2", Price: domain.Price(50)})
	require.NoError(t, s.SetOrderField(ctx, domain.FieldItems, "stale"))
	rec.reset()

	order := s.PrepareOrder()

	assert.Equal(t, int64(150), order.Total)
	assert.Equal(t, []string{"p1", "p2"}, order.Items, "items mirror the basket, not earlier appends")
	assert.Equal(t, order, s.Order())
	assert.Empty(t, rec.events)

	order.Items[0] = "mutated"
	assert.Equal(t, "p1", s.Order().Items[0])
}
