// Package router is a thin method-aware wrapper over http.ServeMux with
// per-route and per-group middleware.
package router

import (
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Router wraps http.ServeMux with middleware chaining
type Router struct {
	mux    *http.ServeMux
	chain  []Middleware
	routes *routeTable
}

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

type routeTable struct {
	mu               sync.Mutex
	patterns         []string
	methods          []string
	methodNotAllowed http.Handler
}

// New creates a new Router with optional global middleware
func New(middleware ...Middleware) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		chain:  middleware,
		routes: &routeTable{},
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.handle(http.MethodGet, pattern, handler, middleware)
}

// Post registers a POST route
func (r *Router) Post(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.handle(http.MethodPost, pattern, handler, middleware)
}

// Put registers a PUT route
func (r *Router) Put(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.handle(http.MethodPut, pattern, handler, middleware)
}

// Delete registers a DELETE route
func (r *Router) Delete(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.handle(http.MethodDelete, pattern, handler, middleware)
}

// Handle registers a route with explicit method
func (r *Router) Handle(method, pattern string, handler http.Handler, middleware ...Middleware) {
	full := method + " " + pattern
	r.mux.Handle(full, r.wrap(handler, middleware))

	r.routes.mu.Lock()
	r.routes.patterns = append(r.routes.patterns, full)
	if !slices.Contains(r.routes.methods, method) {
		r.routes.methods = append(r.routes.methods, method)
	}
	r.routes.mu.Unlock()
}

// NotFound sets the handler for paths no route matches. A path registered
// under other methods goes to the MethodNotAllowed handler instead, when one
// is set.
func (r *Router) NotFound(handler http.HandlerFunc) {
	r.mux.Handle("/", r.wrap(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.routes.mu.Lock()
		notAllowed := r.routes.methodNotAllowed
		r.routes.mu.Unlock()

		if notAllowed != nil {
			if allow := r.allowed(req); len(allow) > 0 {
				w.Header().Set("Allow", strings.Join(allow, ", "))
				notAllowed.ServeHTTP(w, req)
				return
			}
		}
		handler(w, req)
	}), nil))
}

// MethodNotAllowed sets the handler for known paths requested with a method
// they are not registered for. It takes effect once NotFound is set, since
// the catch-all route otherwise answers those requests.
func (r *Router) MethodNotAllowed(handler http.HandlerFunc) {
	r.routes.mu.Lock()
	r.routes.methodNotAllowed = handler
	r.routes.mu.Unlock()
}

// allowed lists the registered methods whose routes match the request path.
func (r *Router) allowed(req *http.Request) []string {
	r.routes.mu.Lock()
	methods := slices.Clone(r.routes.methods)
	r.routes.mu.Unlock()

	var allow []string
	for _, m := range methods {
		if m == req.Method {
			continue
		}
		alt := req.Clone(req.Context())
		alt.Method = m
		if _, pattern := r.mux.Handler(alt); pattern != "" && pattern != "/" {
			allow = append(allow, m)
		}
	}
	return allow
}

// Routes returns the registered "METHOD /pattern" strings in registration
// order, across all groups.
func (r *Router) Routes() []string {
	r.routes.mu.Lock()
	defer r.routes.mu.Unlock()
	return slices.Clone(r.routes.patterns)
}

func (r *Router) handle(method, pattern string, handler http.HandlerFunc, middleware []Middleware) {
	r.Handle(method, pattern, handler, middleware...)
}

// wrap applies middleware so they execute in the order given, global first.
func (r *Router) wrap(handler http.Handler, middleware []Middleware) http.Handler {
	combined := append(slices.Clone(r.chain), middleware...)
	slices.Reverse(combined)

	result := handler
	for _, m := range combined {
		result = m(result)
	}
	return result
}

// Group creates a sub-router sharing the mux with additional middleware
func (r *Router) Group(middleware ...Middleware) *Router {
	return &Router{
		mux:    r.mux,
		chain:  append(slices.Clone(r.chain), middleware...),
		routes: r.routes,
	}
}
