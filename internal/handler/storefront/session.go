// Package storefront serves the JSON session API that drives the storefront:
// catalog cards, the product preview, the basket and the two checkout forms.
package storefront

import (
	"context"
	"net/http"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
	"github.com/dukerupert/larek/internal/handler"
	"github.com/dukerupert/larek/internal/store"
	"github.com/dukerupert/larek/internal/workflow"
)

// Session is the storefront state shared by every handler. Commands run on
// Loop so they never race with fetch completions.
type Session struct {
	Store *store.Store
	Flow  *workflow.Flow
	Loop  *workflow.Loop
	Bus   *bus.Bus
}

// do runs fn on the loop and writes the resulting state, or the error.
func (s *Session) do(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context) error) {
	var view StateView
	err := s.Loop.Do(r.Context(), func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		view = stateView(s.Store, s.Flow)
		return nil
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	handler.JSON(w, status, view)
}

// read runs fn on the loop and writes whatever it returns.
func read[T any](s *Session, w http.ResponseWriter, r *http.Request, fn func() T) {
	var out T
	err := s.Loop.Do(r.Context(), func(context.Context) error {
		out = fn()
		return nil
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, out)
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsValidationError(err) {
		handler.ValidationErrorResponse(w, r, err)
		return
	}
	if r.Context().Err() != nil {
		// client went away; nothing useful to write
		return
	}
	handler.ErrorResponse(w, r, err)
}

// =============================================================================
// State
// =============================================================================

// StateHandler serves the full page state.
type StateHandler struct {
	session *Session
}

// NewStateHandler creates a state handler.
func NewStateHandler(s *Session) *StateHandler {
	return &StateHandler{session: s}
}

// Get handles GET /api/state
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	read(h.session, w, r, func() StateView {
		return stateView(h.session.Store, h.session.Flow)
	})
}

// Reload handles POST /api/catalog/reload
func (h *StateHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.session.do(w, r, http.StatusAccepted, func(ctx context.Context) error {
		h.session.Flow.Start(ctx)
		return nil
	})
}
