// Package step models one unit of work inside a saga instance.
//
// A step records what it is told: status, error message, retry bookkeeping
// and its JSON payload/result. Deciding to retry, and incrementing
// RetryCount, belongs to the driver that executes the step.
package step

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// DefaultMaxRetries applies when a step is created without a ceiling.
const DefaultMaxRetries = 3

// SagaStep is the aggregate root of one saga step.
type SagaStep struct {
	ddd.AggregateRoot

	id             string
	sagaInstanceID string
	name           string
	order          int
	status         Status
	startDate      *time.Time
	endDate        *time.Time
	errorMessage   *string
	retryCount     int
	maxRetries     int
	payload        json.RawMessage
	result         json.RawMessage
	createdAt      time.Time
	updatedAt      time.Time
}

// Primitives is the flat snapshot used for events, persistence and the API.
type Primitives struct {
	ID             string          `json:"id"`
	SagaInstanceID string          `json:"sagaInstanceId"`
	Name           string          `json:"name"`
	Order          int             `json:"order"`
	Status         Status          `json:"status"`
	StartDate      *time.Time      `json:"startDate"`
	EndDate        *time.Time      `json:"endDate"`
	ErrorMessage   *string         `json:"errorMessage"`
	RetryCount     int             `json:"retryCount"`
	MaxRetries     int             `json:"maxRetries"`
	Payload        json.RawMessage `json:"payload"`
	Result         json.RawMessage `json:"result"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// CreateProps are the inputs of Create. Nil RetryCount means 0, nil
// MaxRetries means DefaultMaxRetries, empty Status means PENDING.
type CreateProps struct {
	ID             string
	SagaInstanceID string
	Name           string
	Order          int
	Payload        json.RawMessage
	Status         Status
	RetryCount     *int
	MaxRetries     *int
	Result         json.RawMessage
}

// Create builds a new step and, when generateEvent is set, buffers a
// CreatedEvent with the initial snapshot.
func Create(props CreateProps, generateEvent bool) (*SagaStep, error) {
	if strings.TrimSpace(props.SagaInstanceID) == "" {
		return nil, fmt.Errorf("saga step: saga instance id is required: %w", ddd.ErrInvalidArgument)
	}
	name := strings.TrimSpace(props.Name)
	if name == "" {
		return nil, fmt.Errorf("saga step: name is required: %w", ddd.ErrInvalidArgument)
	}
	status := props.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("saga step: status %q: %w", status, ddd.ErrInvalidArgument)
	}
	retryCount := 0
	if props.RetryCount != nil {
		retryCount = *props.RetryCount
	}
	maxRetries := DefaultMaxRetries
	if props.MaxRetries != nil {
		maxRetries = *props.MaxRetries
	}
	if retryCount < 0 || maxRetries < 0 {
		return nil, fmt.Errorf("saga step: retry counters must not be negative: %w", ddd.ErrInvalidArgument)
	}
	id := props.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	s := &SagaStep{
		id:             id,
		sagaInstanceID: props.SagaInstanceID,
		name:           name,
		order:          props.Order,
		status:         status,
		retryCount:     retryCount,
		maxRetries:     maxRetries,
		payload:        cloneRaw(props.Payload),
		result:         cloneRaw(props.Result),
		createdAt:      now,
		updatedAt:      now,
	}
	if generateEvent {
		s.Apply(newCreatedEvent(s.ToPrimitives()))
	}
	return s, nil
}

// FromPrimitives rebuilds a step from storage. No events are buffered.
func FromPrimitives(p Primitives) *SagaStep {
	return &SagaStep{
		id:             p.ID,
		sagaInstanceID: p.SagaInstanceID,
		name:           p.Name,
		order:          p.Order,
		status:         p.Status,
		startDate:      cloneTime(p.StartDate),
		endDate:        cloneTime(p.EndDate),
		errorMessage:   cloneString(p.ErrorMessage),
		retryCount:     p.RetryCount,
		maxRetries:     p.MaxRetries,
		payload:        cloneRaw(p.Payload),
		result:         cloneRaw(p.Result),
		createdAt:      p.CreatedAt,
		updatedAt:      p.UpdatedAt,
	}
}

func (s *SagaStep) ID() string               { return s.id }
func (s *SagaStep) SagaInstanceID() string   { return s.sagaInstanceID }
func (s *SagaStep) Name() string             { return s.name }
func (s *SagaStep) Order() int               { return s.order }
func (s *SagaStep) Status() Status           { return s.status }
func (s *SagaStep) StartDate() *time.Time    { return cloneTime(s.startDate) }
func (s *SagaStep) EndDate() *time.Time      { return cloneTime(s.endDate) }
func (s *SagaStep) ErrorMessage() *string    { return cloneString(s.errorMessage) }
func (s *SagaStep) RetryCount() int          { return s.retryCount }
func (s *SagaStep) MaxRetries() int          { return s.maxRetries }
func (s *SagaStep) Payload() json.RawMessage { return cloneRaw(s.payload) }
func (s *SagaStep) Result() json.RawMessage  { return cloneRaw(s.result) }
func (s *SagaStep) CreatedAt() time.Time     { return s.createdAt }
func (s *SagaStep) UpdatedAt() time.Time     { return s.updatedAt }

// CanRetry reports whether another attempt fits under MaxRetries. The
// aggregate does not enforce it; drivers consult it before retrying.
func (s *SagaStep) CanRetry() bool { return s.retryCount < s.maxRetries }

// ToPrimitives returns a snapshot that shares no memory with the aggregate.
func (s *SagaStep) ToPrimitives() Primitives {
	return Primitives{
		ID:             s.id,
		SagaInstanceID: s.sagaInstanceID,
		Name:           s.name,
		Order:          s.order,
		Status:         s.status,
		StartDate:      cloneTime(s.startDate),
		EndDate:        cloneTime(s.endDate),
		ErrorMessage:   cloneString(s.errorMessage),
		RetryCount:     s.retryCount,
		MaxRetries:     s.maxRetries,
		Payload:        cloneRaw(s.payload),
		Result:         cloneRaw(s.result),
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
}

func (s *SagaStep) MarkAsPending(generateEvent bool) {
	s.transition(StatusPending, generateEvent)
}

// MarkAsStarted stamps startDate on the first start only.
func (s *SagaStep) MarkAsStarted(generateEvent bool) {
	s.transition(StatusStarted, generateEvent)
}

func (s *SagaStep) MarkAsRunning(generateEvent bool) {
	s.transition(StatusRunning, generateEvent)
}

func (s *SagaStep) MarkAsCompleted(generateEvent bool) {
	s.transition(StatusCompleted, generateEvent)
}

func (s *SagaStep) MarkAsFailed(generateEvent bool) {
	s.transition(StatusFailed, generateEvent)
}

// SetErrorMessage replaces the error message without buffering an event;
// nil clears it. Call it before the MarkAsX that should carry it.
func (s *SagaStep) SetErrorMessage(msg *string) {
	s.errorMessage = cloneString(msg)
	s.updatedAt = time.Now().UTC()
}

func (s *SagaStep) transition(to Status, generateEvent bool) {
	now := time.Now().UTC()
	s.status = to
	s.updatedAt = now
	if to == StatusStarted && s.startDate == nil {
		s.startDate = &now
	}
	if to == StatusCompleted || to == StatusFailed {
		s.endDate = &now
	} else {
		s.endDate = nil
	}
	if generateEvent {
		s.Apply(newStatusChangedEvent(s.ToPrimitives()))
	}
}

// UpdateProps is a partial update. Unset fields are left alone; null clears
// the nullable ones (Payload, Result, ErrorMessage).
type UpdateProps struct {
	Name         ddd.Optional[string]
	Order        ddd.Optional[int]
	Payload      ddd.Optional[json.RawMessage]
	Result       ddd.Optional[json.RawMessage]
	ErrorMessage ddd.Optional[string]
	RetryCount   ddd.Optional[int]
	MaxRetries   ddd.Optional[int]
}

// Validate rejects nulls on non-nullable fields and out-of-range values.
func (p UpdateProps) Validate() error {
	for field, null := range map[string]bool{
		"name":       p.Name.IsNull(),
		"order":      p.Order.IsNull(),
		"retryCount": p.RetryCount.IsNull(),
		"maxRetries": p.MaxRetries.IsNull(),
	} {
		if null {
			return fmt.Errorf("saga step: %s cannot be null: %w", field, ddd.ErrInvalidArgument)
		}
	}
	if name, ok := p.Name.Get(); ok && strings.TrimSpace(name) == "" {
		return fmt.Errorf("saga step: name is required: %w", ddd.ErrInvalidArgument)
	}
	if n, ok := p.RetryCount.Get(); ok && n < 0 {
		return fmt.Errorf("saga step: retryCount must not be negative: %w", ddd.ErrInvalidArgument)
	}
	if n, ok := p.MaxRetries.Get(); ok && n < 0 {
		return fmt.Errorf("saga step: maxRetries must not be negative: %w", ddd.ErrInvalidArgument)
	}
	return nil
}

// Update applies p and, when generateEvent is set, buffers one UpdatedEvent.
func (s *SagaStep) Update(p UpdateProps, generateEvent bool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if v, ok := p.Name.Get(); ok {
		s.name = strings.TrimSpace(v)
	}
	if v, ok := p.Order.Get(); ok {
		s.order = v
	}
	if p.Payload.IsSet() {
		v, _ := p.Payload.Get()
		s.payload = cloneRaw(v)
	}
	if p.Result.IsSet() {
		v, _ := p.Result.Get()
		s.result = cloneRaw(v)
	}
	if p.ErrorMessage.IsSet() {
		s.errorMessage = p.ErrorMessage.Ptr()
	}
	if v, ok := p.RetryCount.Get(); ok {
		s.retryCount = v
	}
	if v, ok := p.MaxRetries.Get(); ok {
		s.maxRetries = v
	}
	s.updatedAt = time.Now().UTC()
	if generateEvent {
		s.Apply(newUpdatedEvent(s.ToPrimitives()))
	}
	return nil
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return bytes.Clone(r)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
