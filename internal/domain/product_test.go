package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory_Tag(t *testing.T) {
	tests := []struct {
		category Category
		expected Tag
	}{
		{CategorySoftSkill, TagSoft},
		{CategoryHardSkill, TagHard},
		{CategoryButton, TagButton},
		{CategoryAdditional, TagAdditional},
		{CategoryOther, TagOther},
		{Category("unknown"), TagOther},
		{Category(""), TagOther},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.category.Tag())
		})
	}
}

func TestProduct_Price(t *testing.T) {
	priced := Product{ID: "p1", Price: Price(750)}
	priceless := Product{ID: "p2"}

	assert.False(t, priced.Priceless())
	assert.Equal(t, int64(750), priced.PriceValue())
	assert.Equal(t, "750 синапсов", priced.PriceLabel())

	assert.True(t, priceless.Priceless())
	assert.Equal(t, int64(0), priceless.PriceValue())
	assert.Equal(t, "Бесценно", priceless.PriceLabel())
}

func TestNewCatalogItem_DoesNotSharePrice(t *testing.T) {
	p := Product{ID: "p1", Category: CategoryButton, Price: Price(100)}
	item := NewCatalogItem(p)

	*p.Price = 999

	assert.Equal(t, TagButton, item.Tag)
	assert.Equal(t, int64(100), item.PriceValue())
}

func TestFormErrors(t *testing.T) {
	errs := FormErrors{FieldEmail: "email required", FieldAddress: "address required"}

	assert.True(t, errs.Has(FieldEmail))
	assert.True(t, errs.Has(FieldPhone, FieldAddress))
	assert.False(t, errs.Has(FieldPhone))
	assert.Equal(t, FormErrors{FieldAddress: "address required"}, errs.Only(FieldAddress, FieldPayment))

	clone := errs.Clone()
	clone[FieldPhone] = "phone required"
	assert.Len(t, errs, 2)

	var empty FormErrors
	assert.NotNil(t, empty.Clone())
}

func TestOrder_Clone(t *testing.T) {
	o := Order{Items: []string{"p1"}}
	c := o.Clone()
	c.Items[0] = "p2"

	assert.Equal(t, "p1", o.Items[0])
}

func TestOrderField_Valid(t *testing.T) {
	assert.True(t, FieldItems.Valid())
	assert.False(t, OrderField("colour").Valid())
	assert.True(t, PaymentCash.Valid())
	assert.False(t, PaymentUnset.Valid())
}
