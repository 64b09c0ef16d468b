package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// EventPublisher is the part of the event bus the handlers need.
type EventPublisher interface {
	PublishAll(ctx context.Context, events []ddd.DomainEvent) error
}

// persist saves the aggregate, publishes its buffered events and commits.
// The order is fixed: a failed save publishes nothing, and a failed publish
// leaves the buffer uncommitted.
func persist[A ddd.EventSource](ctx context.Context, save func(context.Context, A) error, publisher EventPublisher, agg A) error {
	if err := save(ctx, agg); err != nil {
		return err
	}
	if err := publisher.PublishAll(ctx, agg.UncommittedEvents()); err != nil {
		return err
	}
	agg.Commit()
	return nil
}

// changeInstanceStatus is the only place mapping instance status values to
// mutators.
func changeInstanceStatus(s *instance.SagaInstance, status instance.Status, generateEvent bool) error {
	switch status {
	case instance.StatusPending:
		s.MarkAsPending(generateEvent)
	case instance.StatusStarted:
		s.MarkAsStarted(generateEvent)
	case instance.StatusRunning:
		s.MarkAsRunning(generateEvent)
	case instance.StatusCompleted:
		s.MarkAsCompleted(generateEvent)
	case instance.StatusFailed:
		s.MarkAsFailed(generateEvent)
	case instance.StatusCompensating:
		s.MarkAsCompensating(generateEvent)
	case instance.StatusCompensated:
		s.MarkAsCompensated(generateEvent)
	default:
		return &UnknownStatusError{Entity: entityInstance, Value: string(status)}
	}
	return nil
}

type SagaInstanceCreateHandler struct {
	notExists *AssertSagaInstanceNotExists
	repo      instance.Repository
	publisher EventPublisher
}

func NewSagaInstanceCreateHandler(repo instance.Repository, publisher EventPublisher) *SagaInstanceCreateHandler {
	return &SagaInstanceCreateHandler{
		notExists: NewAssertSagaInstanceNotExists(repo),
		repo:      repo,
		publisher: publisher,
	}
}

func (h *SagaInstanceCreateHandler) Execute(ctx context.Context, cmd SagaInstanceCreate) (string, error) {
	if cmd.Status != "" && !cmd.Status.Valid() {
		return "", &UnknownStatusError{Entity: entityInstance, Value: string(cmd.Status)}
	}
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}
	if err := h.notExists.Execute(ctx, id); err != nil {
		return "", err
	}

	s, err := instance.Create(instance.CreateProps{ID: id, Name: cmd.Name, Status: cmd.Status}, true)
	if err != nil {
		return "", err
	}
	if err := persist(ctx, h.repo.Save, h.publisher, s); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "saga instance created", "saga_instance_id", s.ID(), "name", s.Name())
	return s.ID(), nil
}

type SagaInstanceChangeStatusHandler struct {
	exists    *AssertSagaInstanceExists
	repo      instance.Repository
	publisher EventPublisher
}

func NewSagaInstanceChangeStatusHandler(repo instance.Repository, publisher EventPublisher) *SagaInstanceChangeStatusHandler {
	return &SagaInstanceChangeStatusHandler{
		exists:    NewAssertSagaInstanceExists(repo),
		repo:      repo,
		publisher: publisher,
	}
}

func (h *SagaInstanceChangeStatusHandler) Execute(ctx context.Context, cmd SagaInstanceChangeStatus) (struct{}, error) {
	s, err := h.exists.Execute(ctx, cmd.ID)
	if err != nil {
		return struct{}{}, err
	}
	if err := changeInstanceStatus(s, cmd.Status, true); err != nil {
		return struct{}{}, err
	}
	if err := persist(ctx, h.repo.Save, h.publisher, s); err != nil {
		return struct{}{}, err
	}

	slog.InfoContext(ctx, "saga instance status changed", "saga_instance_id", s.ID(), "status", s.Status())
	return struct{}{}, nil
}

type SagaInstanceDeleteHandler struct {
	exists *AssertSagaInstanceExists
	repo   instance.Repository
}

func NewSagaInstanceDeleteHandler(repo instance.Repository) *SagaInstanceDeleteHandler {
	return &SagaInstanceDeleteHandler{exists: NewAssertSagaInstanceExists(repo), repo: repo}
}

func (h *SagaInstanceDeleteHandler) Execute(ctx context.Context, cmd SagaInstanceDelete) (struct{}, error) {
	if _, err := h.exists.Execute(ctx, cmd.ID); err != nil {
		return struct{}{}, err
	}
	if err := h.repo.Delete(ctx, cmd.ID); err != nil {
		return struct{}{}, err
	}
	slog.InfoContext(ctx, "saga instance deleted", "saga_instance_id", cmd.ID)
	return struct{}{}, nil
}
