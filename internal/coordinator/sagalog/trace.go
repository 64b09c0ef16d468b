package sagalog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars).
	// Empty string if no active span is found in the context.
	TraceID string

	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx and returns
// its trace_id and span_id as hex strings.
//
// The command bus opens a span per dispatched command, so a log written by
// the SagaLogCreate handler carries the ids of that span. Without an active
// span (e.g. in unit tests, or with tracing disabled) both fields are empty.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()

	if !sc.IsValid() {
		return TraceInfo{}
	}

	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry is a convenience constructor that builds a SagaLog entry with
// the trace info automatically extracted from ctx.
//
//	entry := sagalog.NewEntry(ctx, instanceID, stepID, sagalog.TypeError, msg)
//	_ = repo.Save(ctx, entry)
func NewEntry(
	ctx context.Context,
	sagaInstanceID string,
	sagaStepID string,
	typ Type,
	message string,
) *SagaLog {
	ti := ExtractTraceInfo(ctx)
	now := time.Now().UTC()

	return &SagaLog{
		ID:             newID(),
		SagaInstanceID: sagaInstanceID,
		SagaStepID:     sagaStepID,
		Type:           typ,
		Message:        message,
		TraceID:        ti.TraceID,
		SpanID:         ti.SpanID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
