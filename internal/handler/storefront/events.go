package storefront

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/middleware"
	"github.com/dukerupert/larek/internal/relay"
)

const (
	eventBuffer       = 64
	keepaliveInterval = 25 * time.Second
)

// EventsHandler streams bus events to the browser as server-sent events.
type EventsHandler struct {
	session   *Session
	logger    *slog.Logger
	keepalive time.Duration
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(s *Session, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{session: s, logger: logger, keepalive: keepaliveInterval}
}

type frame struct {
	topic bus.Topic
	data  []byte
}

// Stream handles GET /api/events
//
// A client that cannot keep up loses events rather than stalling the
// publisher; it should refetch /api/state after a gap.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	logger := middleware.GetLogger(r.Context(), h.logger)

	frames := make(chan frame, eventBuffer)
	sub := h.session.Bus.Subscribe(bus.All(), func(_ context.Context, ev bus.Event) error {
		data, err := relay.EncodePayload(ev.Payload)
		if err != nil {
			return fmt.Errorf("events: encode %s: %w", ev.Topic, err)
		}
		select {
		case frames <- frame{topic: ev.Topic, data: data}:
		default:
			logger.Warn("event stream full, dropping event", "topic", ev.Topic)
		}
		return nil
	})
	defer h.session.Bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Error("event stream unsupported", "error", err)
		return
	}

	logger.Debug("event stream opened")
	defer logger.Debug("event stream closed")

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-frames:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.topic, f.data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
