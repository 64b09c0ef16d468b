package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// changeStepStatus is the only place mapping step status values to mutators.
func changeStepStatus(s *step.SagaStep, status step.Status, generateEvent bool) error {
	switch status {
	case step.StatusPending:
		s.MarkAsPending(generateEvent)
	case step.StatusStarted:
		s.MarkAsStarted(generateEvent)
	case step.StatusRunning:
		s.MarkAsRunning(generateEvent)
	case step.StatusCompleted:
		s.MarkAsCompleted(generateEvent)
	case step.StatusFailed:
		s.MarkAsFailed(generateEvent)
	default:
		return &UnknownStatusError{Entity: entityStep, Value: string(status)}
	}
	return nil
}

type SagaStepCreateHandler struct {
	notExists *AssertSagaStepNotExists
	repo      step.Repository
	publisher EventPublisher
}

func NewSagaStepCreateHandler(repo step.Repository, publisher EventPublisher) *SagaStepCreateHandler {
	return &SagaStepCreateHandler{
		notExists: NewAssertSagaStepNotExists(repo),
		repo:      repo,
		publisher: publisher,
	}
}

// Execute buffers exactly one SagaStepCreatedEvent: the step is forced to
// PENDING after construction without an event of its own.
func (h *SagaStepCreateHandler) Execute(ctx context.Context, cmd SagaStepCreate) (string, error) {
	if cmd.Status != "" && !cmd.Status.Valid() {
		return "", &UnknownStatusError{Entity: entityStep, Value: string(cmd.Status)}
	}
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}
	if err := h.notExists.Execute(ctx, id); err != nil {
		return "", err
	}

	s, err := step.Create(step.CreateProps{
		ID:             id,
		SagaInstanceID: cmd.SagaInstanceID,
		Name:           cmd.Name,
		Order:          cmd.Order,
		Payload:        cmd.Payload,
		Status:         cmd.Status,
		RetryCount:     cmd.RetryCount,
		MaxRetries:     cmd.MaxRetries,
		Result:         cmd.Result,
	}, true)
	if err != nil {
		return "", err
	}
	s.MarkAsPending(false)

	if err := persist(ctx, h.repo.Save, h.publisher, s); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "saga step created",
		"saga_step_id", s.ID(),
		"saga_instance_id", s.SagaInstanceID(),
		"name", s.Name(),
		"order", s.Order(),
	)
	return s.ID(), nil
}

type SagaStepChangeStatusHandler struct {
	exists    *AssertSagaStepExists
	repo      step.Repository
	publisher EventPublisher
}

func NewSagaStepChangeStatusHandler(repo step.Repository, publisher EventPublisher) *SagaStepChangeStatusHandler {
	return &SagaStepChangeStatusHandler{
		exists:    NewAssertSagaStepExists(repo),
		repo:      repo,
		publisher: publisher,
	}
}

func (h *SagaStepChangeStatusHandler) Execute(ctx context.Context, cmd SagaStepChangeStatus) (struct{}, error) {
	s, err := h.exists.Execute(ctx, cmd.ID)
	if err != nil {
		return struct{}{}, err
	}
	if !cmd.Status.Valid() {
		return struct{}{}, &UnknownStatusError{Entity: entityStep, Value: string(cmd.Status)}
	}
	if cmd.ErrorMessage.IsSet() {
		s.SetErrorMessage(cmd.ErrorMessage.Ptr())
	}
	if err := changeStepStatus(s, cmd.Status, true); err != nil {
		return struct{}{}, err
	}
	if err := persist(ctx, h.repo.Save, h.publisher, s); err != nil {
		return struct{}{}, err
	}

	slog.InfoContext(ctx, "saga step status changed", "saga_step_id", s.ID(), "status", s.Status())
	return struct{}{}, nil
}

type SagaStepUpdateHandler struct {
	exists    *AssertSagaStepExists
	repo      step.Repository
	publisher EventPublisher
}

func NewSagaStepUpdateHandler(repo step.Repository, publisher EventPublisher) *SagaStepUpdateHandler {
	return &SagaStepUpdateHandler{
		exists:    NewAssertSagaStepExists(repo),
		repo:      repo,
		publisher: publisher,
	}
}

// Execute applies a partial update and buffers a single SagaStepUpdatedEvent,
// including when the status changes.
func (h *SagaStepUpdateHandler) Execute(ctx context.Context, cmd SagaStepUpdate) (struct{}, error) {
	props := step.UpdateProps{
		Name:         cmd.Name,
		Order:        cmd.Order,
		Payload:      cmd.Payload,
		Result:       cmd.Result,
		ErrorMessage: cmd.ErrorMessage,
		RetryCount:   cmd.RetryCount,
		MaxRetries:   cmd.MaxRetries,
	}
	if err := props.Validate(); err != nil {
		return struct{}{}, err
	}
	if cmd.Status.IsNull() {
		return struct{}{}, fmt.Errorf("saga step: status cannot be null: %w", ddd.ErrInvalidArgument)
	}
	status, hasStatus := cmd.Status.Get()
	if hasStatus && !status.Valid() {
		return struct{}{}, &UnknownStatusError{Entity: entityStep, Value: string(status)}
	}

	s, err := h.exists.Execute(ctx, cmd.ID)
	if err != nil {
		return struct{}{}, err
	}
	if hasStatus {
		if err := changeStepStatus(s, status, false); err != nil {
			return struct{}{}, err
		}
	}
	if err := s.Update(props, true); err != nil {
		return struct{}{}, err
	}
	if err := persist(ctx, h.repo.Save, h.publisher, s); err != nil {
		return struct{}{}, err
	}

	slog.InfoContext(ctx, "saga step updated", "saga_step_id", s.ID())
	return struct{}{}, nil
}

type SagaStepDeleteHandler struct {
	exists *AssertSagaStepExists
	repo   step.Repository
}

func NewSagaStepDeleteHandler(repo step.Repository) *SagaStepDeleteHandler {
	return &SagaStepDeleteHandler{exists: NewAssertSagaStepExists(repo), repo: repo}
}

func (h *SagaStepDeleteHandler) Execute(ctx context.Context, cmd SagaStepDelete) (struct{}, error) {
	if _, err := h.exists.Execute(ctx, cmd.ID); err != nil {
		return struct{}{}, err
	}
	if err := h.repo.Delete(ctx, cmd.ID); err != nil {
		return struct{}{}, err
	}
	slog.InfoContext(ctx, "saga step deleted", "saga_step_id", cmd.ID)
	return struct{}{}, nil
}
