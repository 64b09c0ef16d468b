package instance

import "github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"

const (
	AggregateType = "SagaInstance"

	EventTypeCreated       = "SagaInstanceCreatedEvent"
	EventTypeStatusChanged = "SagaInstanceStatusChangedEvent"
)

// CreatedEvent is buffered by Create when event generation is on.
type CreatedEvent struct {
	ddd.Event[Primitives]
}

// StatusChangedEvent is buffered by every MarkAsX call with generateEvent set.
type StatusChangedEvent struct {
	ddd.Event[Primitives]
}

func newCreatedEvent(p Primitives) CreatedEvent {
	return CreatedEvent{ddd.NewEvent(EventTypeCreated, AggregateType, p.ID, p)}
}

func newStatusChangedEvent(p Primitives) StatusChangedEvent {
	return StatusChangedEvent{ddd.NewEvent(EventTypeStatusChanged, AggregateType, p.ID, p)}
}
