// Package bus is the publish/subscribe dispatcher that carries state changes
// from the store to the views, and view intents back to the workflow.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event is a published topic with its payload.
type Event struct {
	Topic   Topic
	Payload any
}

// Handler reacts to an event. A returned error is reported by the bus and
// does not stop the remaining handlers.
type Handler func(ctx context.Context, ev Event) error

// ErrorHook receives handler failures after they are logged.
type ErrorHook func(ctx context.Context, ev Event, err error)

// Subscription identifies one registered handler.
type Subscription struct {
	ID      uuid.UUID
	Matcher Matcher
}

type subscriber struct {
	id      uuid.UUID
	matcher Matcher
	handler Handler
}

// Bus dispatches events synchronously to the handlers whose matcher accepts
// the topic. It is safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	logger  *slog.Logger
	onError ErrorHook
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithErrorHook sets a hook called for every handler failure.
func WithErrorHook(hook ErrorHook) Option {
	return func(b *Bus) {
		b.onError = hook
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for every topic m accepts. Handlers run in
// registration order.
func (b *Bus) Subscribe(m Matcher, h Handler) Subscription {
	if h == nil {
		return Subscription{}
	}

	s := &subscriber{id: uuid.New(), matcher: m, handler: h}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return Subscription{ID: s.id, Matcher: m}
}

// On registers a handler that receives the payload as T.
// A nil payload is delivered as the zero T; any other type mismatch is
// reported as a handler failure.
func On[T any](b *Bus, m Matcher, fn func(ctx context.Context, payload T) error) Subscription {
	return b.Subscribe(m, func(ctx context.Context, ev Event) error {
		var v T
		if ev.Payload != nil {
			typed, ok := ev.Payload.(T)
			if !ok {
				return fmt.Errorf("bus: %s payload is %T, want %T", ev.Topic, ev.Payload, v)
			}
			v = typed
		}
		return fn(ctx, v)
	})
}

// Unsubscribe removes one handler. It reports whether the handler was found.
// A dispatch already in progress still calls the handler.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == sub.ID {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// UnsubscribeAll removes every handler registered with matcher m and returns
// how many were removed.
func (b *Bus) UnsubscribeAll(m Matcher) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matcher != m {
			kept = append(kept, s)
		}
	}
	removed := len(b.subs) - len(kept)
	b.subs = kept
	return removed
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish calls every matching handler with the payload, on the calling
// goroutine, before returning. Publishing a topic nobody listens to is a no-op.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) {
	ev := Event{Topic: topic, Payload: payload}

	// The matching set is frozen before dispatch so handlers may subscribe,
	// unsubscribe or publish without affecting this pass.
	b.mu.RLock()
	var matched []*subscriber
	for _, s := range b.subs {
		if s.matcher.Match(topic) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		b.call(ctx, s, ev)
	}
}

// Trigger returns a function that publishes topic when called. If transform
// is non-nil it is applied to the payload first. Widgets use it to announce
// intents without holding the bus or the store.
func (b *Bus) Trigger(topic Topic, transform func(payload any) any) func(ctx context.Context, payload any) {
	return func(ctx context.Context, payload any) {
		if transform != nil {
			payload = transform(payload)
		}
		b.Publish(ctx, topic, payload)
	}
}

func (b *Bus) call(ctx context.Context, s *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.fail(ctx, s, ev, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := s.handler(ctx, ev); err != nil {
		b.fail(ctx, s, ev, err)
	}
}

func (b *Bus) fail(ctx context.Context, s *subscriber, ev Event, err error) {
	b.logger.Error("event handler failed",
		"topic", ev.Topic,
		"matcher", s.matcher.String(),
		"subscription", s.id,
		"error", err,
	)
	if b.onError != nil {
		b.onError(ctx, ev, err)
	}
}
