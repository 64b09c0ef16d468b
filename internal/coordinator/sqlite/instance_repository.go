package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
)

// InstanceRepository is the SQLite implementation of instance.Repository.
type InstanceRepository struct {
	db *sql.DB
}

var _ instance.Repository = (*InstanceRepository)(nil)

// FindByID returns (nil, nil) for unknown or soft-deleted instances.
func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*instance.SagaInstance, error) {
	const q = `
		SELECT id, name, status, start_date, end_date, created_at, updated_at
		FROM   saga_instances
		WHERE  id = ? AND deleted_at IS NULL`

	var (
		p                    instance.Primitives
		startDate, endDate   sql.NullString
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID,
		&p.Name,
		&p.Status,
		&startDate,
		&endDate,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find saga instance %q: %w", id, err)
	}

	if p.StartDate, err = parseNullableTime(startDate); err != nil {
		return nil, err
	}
	if p.EndDate, err = parseNullableTime(endDate); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return instance.FromPrimitives(p), nil
}

// Save upserts the instance by id. Last write wins and a soft-deleted row
// becomes visible again.
func (r *InstanceRepository) Save(ctx context.Context, s *instance.SagaInstance) error {
	const q = `
		INSERT INTO saga_instances
			(id, name, status, start_date, end_date, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			status     = excluded.status,
			start_date = excluded.start_date,
			end_date   = excluded.end_date,
			updated_at = excluded.updated_at,
			deleted_at = NULL`

	p := s.ToPrimitives()
	_, err := r.db.ExecContext(ctx, q,
		p.ID,
		p.Name,
		string(p.Status),
		formatNullableTime(p.StartDate),
		formatNullableTime(p.EndDate),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga instance %q: %w", p.ID, err)
	}
	return nil
}

// Delete marks the instance as deleted. Unknown ids are a no-op.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	const q = `UPDATE saga_instances SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	if _, err := r.db.ExecContext(ctx, q, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("sqlite: delete saga instance %q: %w", id, err)
	}
	return nil
}
