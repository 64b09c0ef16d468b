// Package ddd holds the small set of building blocks shared by the saga
// aggregates: the uncommitted-event buffer, the domain event envelope and the
// tri-state Optional used by partial updates.
package ddd

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is anything an aggregate buffers and the event bus delivers.
type DomainEvent interface {
	EventID() string
	EventType() string
	AggregateID() string
	AggregateType() string
	OccurredAt() time.Time
}

// Event is the metadata envelope embedded by every concrete event.
// Data is the aggregate snapshot taken right after the mutation.
type Event[T any] struct {
	ID        string    `json:"eventId"`
	Type      string    `json:"eventType"`
	AggID     string    `json:"aggregateId"`
	AggType   string    `json:"aggregateType"`
	Timestamp time.Time `json:"occurredAt"`
	Data      T         `json:"data"`
}

// NewEvent stamps a fresh event id and occurrence time.
func NewEvent[T any](eventType, aggregateType, aggregateID string, data T) Event[T] {
	return Event[T]{
		ID:        uuid.NewString(),
		Type:      eventType,
		AggID:     aggregateID,
		AggType:   aggregateType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func (e Event[T]) EventID() string       { return e.ID }
func (e Event[T]) EventType() string     { return e.Type }
func (e Event[T]) AggregateID() string   { return e.AggID }
func (e Event[T]) AggregateType() string { return e.AggType }
func (e Event[T]) OccurredAt() time.Time { return e.Timestamp }

// AggregateRoot buffers events until the owner commits them. The buffer is
// never persisted; it only carries events from a successful save to the bus.
type AggregateRoot struct {
	events []DomainEvent
}

// Apply appends an event to the uncommitted buffer.
func (a *AggregateRoot) Apply(e DomainEvent) {
	a.events = append(a.events, e)
}

// UncommittedEvents returns a copy of the buffered events.
func (a *AggregateRoot) UncommittedEvents() []DomainEvent {
	out := make([]DomainEvent, len(a.events))
	copy(out, a.events)
	return out
}

// Commit drops the buffered events.
func (a *AggregateRoot) Commit() {
	a.events = nil
}

// EventSource is implemented by every aggregate embedding AggregateRoot.
type EventSource interface {
	UncommittedEvents() []DomainEvent
	Commit()
}
