// Package eventbus is the in-process router that delivers domain events to
// the subscribers registered for their event type.
//
// Delivery is synchronous: Publish returns once every subscriber has run, and
// the first subscriber error aborts the remaining deliveries of that call.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/metrics"
)

// Handler reacts to one delivered event.
type Handler interface {
	Handle(ctx context.Context, event ddd.DomainEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event ddd.DomainEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event ddd.DomainEvent) error {
	return f(ctx, event)
}

// HandlerError wraps the error returned by a subscriber.
type HandlerError struct {
	EventType string
	EventID   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("eventbus: handler for %s (%s) failed: %v", e.EventType, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Bus is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for events whose EventType equals eventType.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish delivers a single event.
func (b *Bus) Publish(ctx context.Context, event ddd.DomainEvent) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventType()]...)
	b.mu.RUnlock()

	metrics.EventsPublishedTotal.WithLabelValues(event.EventType()).Inc()

	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			return &HandlerError{EventType: event.EventType(), EventID: event.EventID(), Err: err}
		}
	}
	return nil
}

// PublishAll delivers events in order and stops at the first failure.
func (b *Bus) PublishAll(ctx context.Context, events []ddd.DomainEvent) error {
	for _, e := range events {
		if err := b.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
