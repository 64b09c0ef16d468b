package instance

import "context"

// Repository is the port for loading and saving saga instances.
// FindByID returns (nil, nil) when the instance does not exist.
type Repository interface {
	FindByID(ctx context.Context, id string) (*SagaInstance, error)
	// Save upserts by id.
	Save(ctx context.Context, s *SagaInstance) error
	// Delete is a soft delete; the instance disappears from FindByID.
	Delete(ctx context.Context, id string) error
}
