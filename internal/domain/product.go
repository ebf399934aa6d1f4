package domain

import (
	"context"
	"strconv"
)

// =============================================================================
// PRODUCT DOMAIN TYPES
// =============================================================================

// Category is the product category as delivered by the catalog backend.
// The set is closed; it is only used to pick a display tag.
type Category string

const (
	CategorySoftSkill  Category = "софт-скил"
	CategoryHardSkill  Category = "хард-скил"
	CategoryButton     Category = "кнопка"
	CategoryAdditional Category = "дополнительное"
	CategoryOther      Category = "другое"
)

// Tag is the display class derived from a Category.
type Tag string

const (
	TagSoft       Tag = "soft"
	TagHard       Tag = "hard"
	TagButton     Tag = "button"
	TagAdditional Tag = "additional"
	TagOther      Tag = "other"
)

// Tag returns the display tag for the category.
// Unrecognized categories degrade to TagOther.
func (c Category) Tag() Tag {
	switch c {
	case CategorySoftSkill:
		return TagSoft
	case CategoryHardSkill:
		return TagHard
	case CategoryButton:
		return TagButton
	case CategoryAdditional:
		return TagAdditional
	default:
		return TagOther
	}
}

// Product is a catalog record. Price is nil for products that are not for sale.
type Product struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Category    Category `json:"category"`
	Price       *int64   `json:"price"`
}

// Priceless reports whether the product has no price and cannot be bought.
func (p Product) Priceless() bool {
	return p.Price == nil
}

// PriceValue returns the price, treating a missing price as zero.
func (p Product) PriceValue() int64 {
	if p.Price == nil {
		return 0
	}
	return *p.Price
}

// PriceLabel is the text shown next to the product.
func (p Product) PriceLabel() string {
	if p.Price == nil {
		return "Бесценно"
	}
	return strconv.FormatInt(*p.Price, 10) + " синапсов"
}

// Clone returns a copy that does not share the price pointer.
func (p Product) Clone() Product {
	if p.Price != nil {
		v := *p.Price
		p.Price = &v
	}
	return p
}

// Price is a helper for building products with a price.
func Price(v int64) *int64 {
	return &v
}

// CatalogItem is a product as held in the catalog, with its derived display tag.
type CatalogItem struct {
	Product
	Tag Tag `json:"tag"`
}

// NewCatalogItem wraps a product with its display tag.
func NewCatalogItem(p Product) CatalogItem {
	return CatalogItem{Product: p.Clone(), Tag: p.Category.Tag()}
}

// CatalogSource fetches products from wherever the catalog lives.
type CatalogSource interface {
	// ListProducts returns the full catalog.
	ListProducts(ctx context.Context) ([]Product, error)

	// GetProduct returns one product with its full description.
	// Returns a NotFound error when the id is unknown.
	GetProduct(ctx context.Context, id string) (Product, error)
}
