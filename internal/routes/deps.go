package routes

import (
	"net/http"

	"github.com/dukerupert/larek/internal/handler/storefront"
	"github.com/dukerupert/larek/internal/middleware"
)

// StorefrontDeps contains dependencies for storefront routes
type StorefrontDeps struct {
	State   *storefront.StateHandler
	Catalog *storefront.CatalogHandler
	Basket  *storefront.BasketHandler
	Order   *storefront.OrderHandler
	Events  *storefront.EventsHandler

	// OrderLimiter throttles order submission. Optional.
	OrderLimiter *middleware.RateLimiter
}

// OpsDeps contains dependencies for health and metrics routes
type OpsDeps struct {
	Health  http.HandlerFunc
	Metrics http.Handler
}
