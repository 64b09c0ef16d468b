package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
)

// StepRepository is the SQLite implementation of step.Repository.
type StepRepository struct {
	db *sql.DB
}

var _ step.Repository = (*StepRepository)(nil)

const stepColumns = `id, saga_instance_id, name, step_order, status, start_date, end_date,
		       error_message, retry_count, max_retries, payload, result, created_at, updated_at`

// FindByID returns (nil, nil) for unknown or soft-deleted steps.
func (r *StepRepository) FindByID(ctx context.Context, id string) (*step.SagaStep, error) {
	q := `SELECT ` + stepColumns + ` FROM saga_steps WHERE id = ? AND deleted_at IS NULL`

	s, err := scanStep(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find saga step %q: %w", id, err)
	}
	return s, nil
}

func (r *StepRepository) FindBySagaInstanceID(ctx context.Context, sagaInstanceID string) ([]*step.SagaStep, error) {
	q := `SELECT ` + stepColumns + `
		FROM   saga_steps
		WHERE  saga_instance_id = ? AND deleted_at IS NULL
		ORDER  BY step_order ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, q, sagaInstanceID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list saga steps of %q: %w", sagaInstanceID, err)
	}
	defer rows.Close()

	var out []*step.SagaStep
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list saga steps of %q: %w", sagaInstanceID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list saga steps of %q: %w", sagaInstanceID, err)
	}
	return out, nil
}

// Save upserts the step by id. saga_instance_id is immutable after insert and
// a soft-deleted row becomes visible again.
func (r *StepRepository) Save(ctx context.Context, s *step.SagaStep) error {
	const q = `
		INSERT INTO saga_steps
			(id, saga_instance_id, name, step_order, status, start_date, end_date,
			 error_message, retry_count, max_retries, payload, result, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			step_order    = excluded.step_order,
			status        = excluded.status,
			start_date    = excluded.start_date,
			end_date      = excluded.end_date,
			error_message = excluded.error_message,
			retry_count   = excluded.retry_count,
			max_retries   = excluded.max_retries,
			payload       = excluded.payload,
			result        = excluded.result,
			updated_at    = excluded.updated_at,
			deleted_at    = NULL`

	p := s.ToPrimitives()
	_, err := r.db.ExecContext(ctx, q,
		p.ID,
		p.SagaInstanceID,
		p.Name,
		p.Order,
		string(p.Status),
		formatNullableTime(p.StartDate),
		formatNullableTime(p.EndDate),
		nullableString(p.ErrorMessage),
		p.RetryCount,
		p.MaxRetries,
		nullableJSON(p.Payload),
		nullableJSON(p.Result),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga step %q: %w", p.ID, err)
	}
	return nil
}

func (r *StepRepository) Delete(ctx context.Context, id string) error {
	const q = `UPDATE saga_steps SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	if _, err := r.db.ExecContext(ctx, q, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("sqlite: delete saga step %q: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (*step.SagaStep, error) {
	var (
		p                    step.Primitives
		startDate, endDate   sql.NullString
		errorMessage         sql.NullString
		payload, result      sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&p.ID,
		&p.SagaInstanceID,
		&p.Name,
		&p.Order,
		&p.Status,
		&startDate,
		&endDate,
		&errorMessage,
		&p.RetryCount,
		&p.MaxRetries,
		&payload,
		&result,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
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
	if errorMessage.Valid {
		p.ErrorMessage = &errorMessage.String
	}
	if payload.Valid {
		p.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		p.Result = json.RawMessage(result.String)
	}
	return step.FromPrimitives(p), nil
}
