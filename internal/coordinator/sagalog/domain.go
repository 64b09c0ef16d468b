// Package sagalog defines the audit trail derived from saga step status
// transitions.
//
// Every SagaStepStatusChangedEvent produces exactly one SagaLog. Entries are
// append-only: nothing in the coordinator mutates a log after it is written.
// Each entry also carries the trace/span ids active when it was written, so a
// row can be joined with the distributed trace of the transition.
package sagalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// Type is the severity assigned to a log entry by the projection.
type Type string

const (
	TypeInfo  Type = "INFO"
	TypeDebug Type = "DEBUG"
	TypeError Type = "ERROR"
)

func (t Type) Valid() bool {
	switch t {
	case TypeInfo, TypeDebug, TypeError:
		return true
	}
	return false
}

// SagaLog is a single row in the saga_logs table.
type SagaLog struct {
	// ID is the unique identifier of the entry.
	ID string `json:"id"`

	// SagaInstanceID is the instance that owns the step.
	SagaInstanceID string `json:"sagaInstanceId"`

	// SagaStepID is the step whose transition produced the entry.
	SagaStepID string `json:"sagaStepId"`

	Type    Type   `json:"type"`
	Message string `json:"message"`

	// TraceID is the W3C trace ID of the span active when the entry was
	// written. Empty when no span was recording.
	TraceID string `json:"traceId,omitempty"`

	// SpanID is the specific span within the trace.
	SpanID string `json:"spanId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the fields every entry must carry.
func (l *SagaLog) Validate() error {
	switch {
	case strings.TrimSpace(l.SagaInstanceID) == "":
		return fmt.Errorf("saga log: saga instance id is required: %w", ddd.ErrInvalidArgument)
	case strings.TrimSpace(l.SagaStepID) == "":
		return fmt.Errorf("saga log: saga step id is required: %w", ddd.ErrInvalidArgument)
	case !l.Type.Valid():
		return fmt.Errorf("saga log: type %q: %w", l.Type, ddd.ErrInvalidArgument)
	}
	return nil
}

func newID() string { return uuid.NewString() }
