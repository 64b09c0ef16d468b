package step

import "context"

// Repository is the port for loading and saving saga steps.
// FindByID returns (nil, nil) when the step does not exist.
type Repository interface {
	FindByID(ctx context.Context, id string) (*SagaStep, error)
	// FindBySagaInstanceID returns the steps of an instance ordered by Order.
	FindBySagaInstanceID(ctx context.Context, sagaInstanceID string) ([]*SagaStep, error)
	Save(ctx context.Context, s *SagaStep) error
	// Delete is a soft delete.
	Delete(ctx context.Context, id string) error
}
