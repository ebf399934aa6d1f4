package routes

import (
	"net/http"

	"github.com/dukerupert/larek/internal/handler"
	"github.com/dukerupert/larek/internal/middleware"
	"github.com/dukerupert/larek/internal/router"
)

// RegisterStorefrontRoutes registers the storefront session API.
//
// The event stream is registered outside the timeout group since it stays
// open for the life of the page.
func RegisterStorefrontRoutes(r *router.Router, deps StorefrontDeps) {
	api := r.Group(middleware.Timeout(middleware.DefaultTimeout))
	body := middleware.MaxBodySize()

	// State
	api.Get("/api/state", deps.State.Get)
	api.Post("/api/catalog/reload", deps.State.Reload)

	// Catalog and preview
	api.Get("/api/catalog", deps.Catalog.List)
	api.Post("/api/preview/{id}", deps.Catalog.Select)
	api.Delete("/api/preview", deps.Catalog.Close)

	// Basket
	api.Get("/api/basket", deps.Basket.View)
	api.Post("/api/basket/open", deps.Basket.Open)
	api.Post("/api/basket/{id}", deps.Basket.Toggle)
	api.Post("/api/checkout", deps.Basket.Checkout)

	// Order forms
	api.Put("/api/order/delivery", deps.Order.Delivery, body)
	api.Post("/api/order/delivery/confirm", deps.Order.ConfirmDelivery)
	api.Put("/api/order/contacts", deps.Order.Contacts, body)
	api.Post("/api/order/finish", deps.Order.Finish)

	var submitLimit []router.Middleware
	if deps.OrderLimiter != nil {
		submitLimit = append(submitLimit, deps.OrderLimiter.Middleware)
	}
	api.Post("/api/order", deps.Order.Submit, submitLimit...)

	// Live updates
	r.Get("/api/events", deps.Events.Stream)

	r.MethodNotAllowed(handler.MethodNotAllowedResponse)
	r.NotFound(handler.NotFoundResponse)
}

// RegisterOpsRoutes registers health and metrics endpoints.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Get("/healthz", deps.Health)
	if deps.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", deps.Metrics)
	}
}
