package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
)

// LogRepository is the SQLite implementation of sagalog.Repository.
type LogRepository struct {
	db *sql.DB
}

var _ sagalog.Repository = (*LogRepository)(nil)

// Save inserts a new saga log entry. It is safe to call concurrently.
func (r *LogRepository) Save(ctx context.Context, entry *sagalog.SagaLog) error {
	const q = `
		INSERT INTO saga_logs
			(id, saga_instance_id, saga_step_id, type, message, trace_id, span_id, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.ID,
		entry.SagaInstanceID,
		entry.SagaStepID,
		string(entry.Type),
		entry.Message,
		entry.TraceID,
		entry.SpanID,
		formatTime(entry.CreatedAt),
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga log for step %q: %w", entry.SagaStepID, err)
	}
	return nil
}

func (r *LogRepository) FindBySagaInstanceID(ctx context.Context, sagaInstanceID string) ([]*sagalog.SagaLog, error) {
	return r.list(ctx, "saga_instance_id", sagaInstanceID)
}

func (r *LogRepository) FindBySagaStepID(ctx context.Context, sagaStepID string) ([]*sagalog.SagaLog, error) {
	return r.list(ctx, "saga_step_id", sagaStepID)
}

// list is only called with the two indexed column names above.
func (r *LogRepository) list(ctx context.Context, column, value string) ([]*sagalog.SagaLog, error) {
	q := `
		SELECT id, saga_instance_id, saga_step_id, type, message, trace_id, span_id, created_at, updated_at
		FROM   saga_logs
		WHERE  ` + column + ` = ?
		ORDER  BY seq ASC`

	rows, err := r.db.QueryContext(ctx, q, value)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list saga logs by %s %q: %w", column, value, err)
	}
	defer rows.Close()

	var out []*sagalog.SagaLog
	for rows.Next() {
		var (
			entry                sagalog.SagaLog
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.SagaInstanceID,
			&entry.SagaStepID,
			&entry.Type,
			&entry.Message,
			&entry.TraceID,
			&entry.SpanID,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan saga log: %w", err)
		}
		if entry.CreatedAt, err = parseRFC3339(createdAt); err != nil {
			return nil, err
		}
		if entry.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list saga logs by %s %q: %w", column, value, err)
	}
	return out, nil
}
