// Package relay mirrors bus events onto NATS subjects so other processes can
// follow the storefront state.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
)

// Publisher sends raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON body published for each event.
type Message struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// errorPayload is how error events are encoded.
type errorPayload struct {
	Code    string `json:"code"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// Relay publishes every matching bus event to "<prefix>.<namespace>.<action>".
type Relay struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a relay. An empty prefix defaults to "larek".
func New(pub Publisher, prefix string, logger *slog.Logger) *Relay {
	if prefix == "" {
		prefix = "larek"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
		now:    time.Now,
	}
}

// Attach subscribes the relay to events accepted by m.
func (r *Relay) Attach(b *bus.Bus, m bus.Matcher) bus.Subscription {
	return b.Subscribe(m, r.forward)
}

// Subject returns the NATS subject for a topic.
func (r *Relay) Subject(topic bus.Topic) string {
	return r.prefix + "." + strings.ReplaceAll(topic.String(), ":", ".")
}

func (r *Relay) forward(_ context.Context, ev bus.Event) error {
	payload, err := EncodePayload(ev.Payload)
	if err != nil {
		return fmt.Errorf("relay: encode %s: %w", ev.Topic, err)
	}

	data, err := json.Marshal(Message{
		Topic:   ev.Topic.String(),
		Payload: payload,
		SentAt:  r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("relay: encode %s: %w", ev.Topic, err)
	}

	subject := r.Subject(ev.Topic)
	if err := r.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("relay: publish %s: %w", subject, err)
	}

	r.logger.Debug("event relayed", "subject", subject, "bytes", len(data))
	return nil
}

// EncodePayload renders an event payload as JSON. Errors become
// {"code","op","message"} objects.
func EncodePayload(v any) (json.RawMessage, error) {
	if err, ok := v.(error); ok {
		v = errorPayload{
			Code:    domain.ErrorCode(err),
			Op:      domain.ErrorOp(err),
			Message: err.Error(),
		}
	}
	return json.Marshal(v)
}

// Connect dials NATS with reconnects enabled and connection state logged.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS connected", "url", nc.ConnectedUrl())
	return nc, nil
}
