package app

import (
	"context"
	"fmt"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// AssertSagaInstanceExists loads an instance or fails with ddd.ErrNotFound.
type AssertSagaInstanceExists struct {
	repo instance.Repository
}

func NewAssertSagaInstanceExists(repo instance.Repository) *AssertSagaInstanceExists {
	return &AssertSagaInstanceExists{repo: repo}
}

func (a *AssertSagaInstanceExists) Execute(ctx context.Context, id string) (*instance.SagaInstance, error) {
	s, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("saga instance %q: %w", id, ddd.ErrNotFound)
	}
	return s, nil
}

// AssertSagaInstanceNotExists guards against creating the same id twice.
type AssertSagaInstanceNotExists struct {
	repo instance.Repository
}

func NewAssertSagaInstanceNotExists(repo instance.Repository) *AssertSagaInstanceNotExists {
	return &AssertSagaInstanceNotExists{repo: repo}
}

func (a *AssertSagaInstanceNotExists) Execute(ctx context.Context, id string) error {
	s, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if s != nil {
		return fmt.Errorf("saga instance %q: %w", id, ddd.ErrAlreadyExists)
	}
	return nil
}

// AssertSagaStepExists loads a step or fails with ddd.ErrNotFound.
type AssertSagaStepExists struct {
	repo step.Repository
}

func NewAssertSagaStepExists(repo step.Repository) *AssertSagaStepExists {
	return &AssertSagaStepExists{repo: repo}
}

func (a *AssertSagaStepExists) Execute(ctx context.Context, id string) (*step.SagaStep, error) {
	s, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("saga step %q: %w", id, ddd.ErrNotFound)
	}
	return s, nil
}

// AssertSagaStepNotExists guards against creating the same id twice.
type AssertSagaStepNotExists struct {
	repo step.Repository
}

func NewAssertSagaStepNotExists(repo step.Repository) *AssertSagaStepNotExists {
	return &AssertSagaStepNotExists{repo: repo}
}

func (a *AssertSagaStepNotExists) Execute(ctx context.Context, id string) error {
	s, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if s != nil {
		return fmt.Errorf("saga step %q: %w", id, ddd.ErrAlreadyExists)
	}
	return nil
}
