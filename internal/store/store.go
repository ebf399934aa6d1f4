// Package store holds the storefront state: catalog, basket, draft order,
// validation errors and the preview selection. Every mutation goes through a
// command that changes state first and then announces the change on the bus.
package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
)

// PreviewToken identifies one preview selection. A detail response carrying an
// older token than the current one is stale.
type PreviewToken uint64

// Store is the single source of truth for one storefront session.
//
// State is guarded by a mutex and published payloads are copies, so reads are
// safe from any goroutine. Ordering of commands (and of the events they
// publish) is the caller's job; the workflow loop runs all commands on one
// goroutine.
type Store struct {
	bus      *bus.Bus
	logger   *slog.Logger
	validate *validator.Validate

	mu         sync.Mutex
	catalog    []domain.CatalogItem
	basket     []domain.Product
	order      domain.Order
	formErrors domain.FormErrors
	previewID  string
	previewGen PreviewToken
	loading    bool
}

// New creates a store with an empty catalog, an empty basket and a blank
// draft order.
func New(b *bus.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		bus:        b,
		logger:     logger,
		validate:   newOrderValidator(),
		formErrors: domain.FormErrors{},
	}
}

// =============================================================================
// CATALOG
// =============================================================================

// SetCatalog replaces the catalog wholesale and publishes catalog:changed
// with the new items.
func (s *Store) SetCatalog(ctx context.Context, products []domain.Product) {
	items := make([]domain.CatalogItem, len(products))
	for i, p := range products {
		items[i] = domain.NewCatalogItem(p)
	}

	s.mu.Lock()
	s.catalog = items
	payload := cloneItems(items)
	s.mu.Unlock()

	s.logger.Debug("catalog replaced", "items", len(items))
	s.bus.Publish(ctx, bus.TopicCatalogChanged, payload)
}

// Catalog returns a copy of the catalog.
func (s *Store) Catalog() []domain.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.catalog)
}

// Product looks up a catalog item by id.
func (s *Store) Product(id string) (domain.CatalogItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.CatalogItem{}, false
	}
	return cloneItem(s.catalog[i]), true
}

// UpdateProductDescription stores a freshly fetched description on the
// catalog item and publishes product:changed. If token still identifies the
// open preview of that product, preview:changed is published again so the
// preview re-renders; the return value reports whether that happened.
// Unknown ids are ignored.
func (s *Store) UpdateProductDescription(ctx context.Context, token PreviewToken, id, description string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.catalog[i].Description = description
	item := cloneItem(s.catalog[i])
	current := token == s.previewGen && s.previewID == id
	s.mu.Unlock()

	s.bus.Publish(ctx, bus.TopicProductChanged, item)

	if !current {
		s.logger.Debug("stale preview detail discarded", "product_id", id, "token", token)
		return false
	}
	s.bus.Publish(ctx, bus.TopicPreviewChanged, &item)
	return true
}

// =============================================================================
// PREVIEW
// =============================================================================

// SelectPreview opens the preview of a catalog item and publishes
// preview:changed with what is already known about it. The returned token
// must accompany the description fetched for this selection. Selecting an id
// that is not in the catalog does nothing.
func (s *Store) SelectPreview(ctx context.Context, id string) (PreviewToken, bool) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return 0, false
	}
	s.previewGen++
	s.previewID = id
	token := s.previewGen
	item := cloneItem(s.catalog[i])
	s.mu.Unlock()

	s.bus.Publish(ctx, bus.TopicPreviewChanged, &item)
	return token, true
}

// ClosePreview clears the selection and publishes preview:changed with a nil
// item. Any detail still in flight becomes stale.
func (s *Store) ClosePreview(ctx context.Context) {
	s.mu.Lock()
	s.previewGen++
	s.previewID = ""
	s.mu.Unlock()

	s.bus.Publish(ctx, bus.TopicPreviewChanged, (*domain.CatalogItem)(nil))
}

// Preview returns the item being previewed, or nil.
func (s *Store) Preview() *domain.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.previewID == "" {
		return nil
	}
	i := s.indexOf(s.previewID)
	if i < 0 {
		return nil
	}
	item := cloneItem(s.catalog[i])
	return &item
}

// =============================================================================
// LOADING
// =============================================================================

// SetLoading flips the loading indicator and publishes loading:changed when
// the value changes.
func (s *Store) SetLoading(ctx context.Context, loading bool) {
	s.mu.Lock()
	changed := s.loading != loading
	s.loading = loading
	s.mu.Unlock()

	if changed {
		s.bus.Publish(ctx, bus.TopicLoadingChanged, loading)
	}
}

// Loading reports whether a catalog load is in progress.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.catalog, func(item domain.CatalogItem) bool {
		return item.ID == id
	})
}

func cloneItem(item domain.CatalogItem) domain.CatalogItem {
	item.Product = item.Product.Clone()
	return item
}

func cloneItems(items []domain.CatalogItem) []domain.CatalogItem {
	out := make([]domain.CatalogItem, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}
