package store

import (
	"context"
	"slices"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
)

// AddToBasket appends the product and publishes basket:changed.
// Adding a product that is already in the basket, or one without a price, is
// a no-op; the return value reports whether the basket changed.
func (s *Store) AddToBasket(ctx context.Context, p domain.Product) bool {
	s.mu.Lock()
	if p.ID == "" || p.Priceless() || s.basketIndex(p.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.basket = append(s.basket, p.Clone())
	payload := cloneProducts(s.basket)
	s.mu.Unlock()

	s.bus.Publish(ctx, bus.TopicBasketChanged, payload)
	return true
}

// RemoveFromBasket drops the product with the given id and publishes
// basket:changed. Removing an absent product is a no-op.
func (s *Store) RemoveFromBasket(ctx context.Context, id string) bool {
	s.mu.Lock()
	if s.basketIndex(id) < 0 {
		s.mu.Unlock()
		return false
	}
	s.basket = slices.DeleteFunc(s.basket, func(p domain.Product) bool {
		return p.ID == id
	})
	payload := cloneProducts(s.basket)
	s.mu.Unlock()

	s.bus.Publish(ctx, bus.TopicBasketChanged, payload)
	return true
}

// ToggleBasket removes the product if present and adds it otherwise, then
// publishes basket:changed. It reports whether the product is in the basket
// afterwards. A priceless product that is not in the basket stays out and
// nothing is published.
func (s *Store) ToggleBasket(ctx context.Context, p domain.Product) bool {
	s.mu.Lock()
	var in bool
	switch i := s.basketIndex(p.ID); {
	case i >= 0:
		s.basket = slices.Delete(s.basket, i, i+1)
	case p.ID == "" || p.Priceless():
		s.mu.Unlock()
		return false
	default:
		s.basket = append(s.basket, p.Clone())
		in = true
	}
	payload := cloneProducts(s.basket)
	s.mu.Unlock()

	s.bus.Publish(ctx, bus.TopicBasketChanged, payload)
	return in
}

// ClearBasket empties the basket and the draft order's items. It publishes
// nothing; callers announce basket:changed when views need a refresh.
func (s *Store) ClearBasket() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.basket = nil
	s.order.Items = nil
}

// Basket returns a copy of the basket in insertion order.
func (s *Store) Basket() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProducts(s.basket)
}

// InBasket reports whether a product with the id is in the basket.
func (s *Store) InBasket(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.basketIndex(id) >= 0
}

// BasketSize returns the number of products in the basket.
func (s *Store) BasketSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.basket)
}

// Total sums the prices of the basket contents. It is computed on every call.
func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total()
}

func (s *Store) total() int64 {
	var sum int64
	for _, p := range s.basket {
		sum += p.PriceValue()
	}
	return sum
}

// basketIndex must be called with s.mu held.
func (s *Store) basketIndex(id string) int {
	return slices.IndexFunc(s.basket, func(p domain.Product) bool {
		return p.ID == id
	})
}

func cloneProducts(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	for i, p := range products {
		out[i] = p.Clone()
	}
	return out
}
