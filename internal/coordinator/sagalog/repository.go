package sagalog

import "context"

// Repository is the port (interface) for persisting saga log entries.
// The coordinator depends on this abstraction, not on SQLite directly,
// so the implementation can be swapped (SQLite, in-memory for tests, etc.).
type Repository interface {
	// Save persists a new log entry. Each call appends a row; the table is
	// an append-only audit log, not an upsert.
	Save(ctx context.Context, entry *SagaLog) error

	// FindBySagaInstanceID lists an instance's entries oldest first.
	FindBySagaInstanceID(ctx context.Context, sagaInstanceID string) ([]*SagaLog, error)

	// FindBySagaStepID lists a step's entries oldest first.
	FindBySagaStepID(ctx context.Context, sagaStepID string) ([]*SagaLog, error)
}
