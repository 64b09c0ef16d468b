// Package instance models one execution of a saga: its coarse status,
// lifecycle dates and the events it emits on every transition.
//
// Transitions are permissive. Each MarkAsX sets the status unconditionally;
// which sequences make sense is decided by whoever drives the saga.
package instance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// SagaInstance is the aggregate root of one saga execution. Its steps
// reference it by id; the instance keeps no collection of them.
type SagaInstance struct {
	ddd.AggregateRoot

	id        string
	name      string
	status    Status
	startDate *time.Time
	endDate   *time.Time
	createdAt time.Time
	updatedAt time.Time
}

// Primitives is the flat snapshot used for events, persistence and caching.
type Primitives struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CreateProps are the inputs of Create. Empty ID generates one; empty
// Status defaults to PENDING.
type CreateProps struct {
	ID     string
	Name   string
	Status Status
}

// Create builds a new instance and, when generateEvent is set, buffers a
// CreatedEvent carrying the initial snapshot.
func Create(props CreateProps, generateEvent bool) (*SagaInstance, error) {
	name := strings.TrimSpace(props.Name)
	if name == "" {
		return nil, fmt.Errorf("saga instance: name is required: %w", ddd.ErrInvalidArgument)
	}
	status := props.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("saga instance: status %q: %w", status, ddd.ErrInvalidArgument)
	}
	id := props.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	s := &SagaInstance{
		id:        id,
		name:      name,
		status:    status,
		createdAt: now,
		updatedAt: now,
	}
	if generateEvent {
		s.Apply(newCreatedEvent(s.ToPrimitives()))
	}
	return s, nil
}

// FromPrimitives rebuilds an instance from storage. No events are buffered.
func FromPrimitives(p Primitives) *SagaInstance {
	return &SagaInstance{
		id:        p.ID,
		name:      p.Name,
		status:    p.Status,
		startDate: cloneTime(p.StartDate),
		endDate:   cloneTime(p.EndDate),
		createdAt: p.CreatedAt,
		updatedAt: p.UpdatedAt,
	}
}

func (s *SagaInstance) ID() string            { return s.id }
func (s *SagaInstance) Name() string          { return s.name }
func (s *SagaInstance) Status() Status        { return s.status }
func (s *SagaInstance) StartDate() *time.Time { return cloneTime(s.startDate) }
func (s *SagaInstance) EndDate() *time.Time   { return cloneTime(s.endDate) }
func (s *SagaInstance) CreatedAt() time.Time  { return s.createdAt }
func (s *SagaInstance) UpdatedAt() time.Time  { return s.updatedAt }

// ToPrimitives returns a snapshot that shares no memory with the aggregate.
func (s *SagaInstance) ToPrimitives() Primitives {
	return Primitives{
		ID:        s.id,
		Name:      s.name,
		Status:    s.status,
		StartDate: cloneTime(s.startDate),
		EndDate:   cloneTime(s.endDate),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *SagaInstance) MarkAsPending(generateEvent bool) {
	s.transition(StatusPending, generateEvent)
}

// MarkAsStarted stamps startDate on the first start only.
func (s *SagaInstance) MarkAsStarted(generateEvent bool) {
	s.transition(StatusStarted, generateEvent)
}

func (s *SagaInstance) MarkAsRunning(generateEvent bool) {
	s.transition(StatusRunning, generateEvent)
}

func (s *SagaInstance) MarkAsCompleted(generateEvent bool) {
	s.transition(StatusCompleted, generateEvent)
}

func (s *SagaInstance) MarkAsFailed(generateEvent bool) {
	s.transition(StatusFailed, generateEvent)
}

func (s *SagaInstance) MarkAsCompensating(generateEvent bool) {
	s.transition(StatusCompensating, generateEvent)
}

func (s *SagaInstance) MarkAsCompensated(generateEvent bool) {
	s.transition(StatusCompensated, generateEvent)
}

func (s *SagaInstance) transition(to Status, generateEvent bool) {
	now := time.Now().UTC()
	s.status = to
	s.updatedAt = now
	if to == StatusStarted && s.startDate == nil {
		s.startDate = &now
	}
	if to.Terminal() {
		s.endDate = &now
	} else {
		s.endDate = nil
	}
	if generateEvent {
		s.Apply(newStatusChangedEvent(s.ToPrimitives()))
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
