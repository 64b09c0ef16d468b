// Package sqlite provides SQLite-backed implementations of the saga
// instance, saga step and saga log repositories.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa: command handlers write while the HTTP read side queries.
package sqlite

import (
	"database/sql"
	"fmt"

	// Register the pure-Go SQLite driver.
	// modernc.org/sqlite avoids CGO, which keeps the binary easy to build
	// and run in Docker (Alpine).
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup.
// Instances and steps are upserted by id and soft-deleted through
// deleted_at. saga_logs is append-only.
const schema = `
CREATE TABLE IF NOT EXISTS saga_instances (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    status          TEXT NOT NULL,
    start_date      TEXT,
    end_date        TEXT,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    deleted_at      TEXT
);

CREATE TABLE IF NOT EXISTS saga_steps (
    id                TEXT PRIMARY KEY,
    saga_instance_id  TEXT    NOT NULL,
    name              TEXT    NOT NULL,
    step_order        INTEGER NOT NULL DEFAULT 0,
    status            TEXT    NOT NULL,
    start_date        TEXT,
    end_date          TEXT,
    error_message     TEXT,
    retry_count       INTEGER NOT NULL DEFAULT 0,
    max_retries       INTEGER NOT NULL DEFAULT 0,
    -- Opaque JSON documents; NULL when absent.
    payload           TEXT,
    result            TEXT,
    created_at        TEXT    NOT NULL,
    updated_at        TEXT    NOT NULL,
    deleted_at        TEXT
);

-- Most common read: "the steps of instance X in order".
CREATE INDEX IF NOT EXISTS idx_saga_steps_instance ON saga_steps(saga_instance_id, step_order);

CREATE TABLE IF NOT EXISTS saga_logs (
    -- Surrogate ordering key; the public id is the uuid.
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    id                TEXT NOT NULL UNIQUE,
    saga_instance_id  TEXT NOT NULL,
    saga_step_id      TEXT NOT NULL,
    type              TEXT NOT NULL,
    message           TEXT NOT NULL,

    -- W3C trace_id / span_id of the span active when the row was written.
    trace_id          TEXT NOT NULL DEFAULT '',
    span_id           TEXT NOT NULL DEFAULT '',

    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_logs_instance ON saga_logs(saga_instance_id, seq);
CREATE INDEX IF NOT EXISTS idx_saga_logs_step ON saga_logs(saga_step_id, seq);
CREATE INDEX IF NOT EXISTS idx_saga_logs_trace_id ON saga_logs(trace_id);
`

// DB is a shared handle for the three repositories.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path and applies
// the schema.
//
//	db, err := sqlite.Open("./data/saga.db")
func Open(path string) (*DB, error) {
	// The pure-Go driver uses _pragma query parameters to configure connection state.
	// busy_timeout waits for locks instead of failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	// Use "sqlite", not "sqlite3" for the modernc driver.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (d *DB) Close() error {
	return d.db.Close()
}

// Instances returns the saga instance repository.
func (d *DB) Instances() *InstanceRepository { return &InstanceRepository{db: d.db} }

// Steps returns the saga step repository.
func (d *DB) Steps() *StepRepository { return &StepRepository{db: d.db} }

// Logs returns the saga log repository.
func (d *DB) Logs() *LogRepository { return &LogRepository{db: d.db} }

// applySchema runs the DDL statements once. Idempotent due to IF NOT EXISTS.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// nullableString returns nil for nil pointers so SQLite stores NULL.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// nullableJSON stores absent JSON documents as NULL.
func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
