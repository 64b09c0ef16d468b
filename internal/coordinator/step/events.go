package step

import "github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"

const (
	AggregateType = "SagaStep"

	EventTypeCreated       = "SagaStepCreatedEvent"
	EventTypeStatusChanged = "SagaStepStatusChangedEvent"
	EventTypeUpdated       = "SagaStepUpdatedEvent"
)

type CreatedEvent struct {
	ddd.Event[Primitives]
}

// StatusChangedEvent feeds the saga log projection.
type StatusChangedEvent struct {
	ddd.Event[Primitives]
}

type UpdatedEvent struct {
	ddd.Event[Primitives]
}

func newCreatedEvent(p Primitives) CreatedEvent {
	return CreatedEvent{ddd.NewEvent(EventTypeCreated, AggregateType, p.ID, p)}
}

func newStatusChangedEvent(p Primitives) StatusChangedEvent {
	return StatusChangedEvent{ddd.NewEvent(EventTypeStatusChanged, AggregateType, p.ID, p)}
}

func newUpdatedEvent(p Primitives) UpdatedEvent {
	return UpdatedEvent{ddd.NewEvent(EventTypeUpdated, AggregateType, p.ID, p)}
}
