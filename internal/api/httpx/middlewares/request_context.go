package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type for context keys in this package.
// Using a custom type prevents collisions with keys from other packages
// that might use the same underlying string value.
type contextKey string

const (
	HeaderXRequestID      = "X-Request-Id"
	HeaderXIdempotencyKey = "X-Idempotency-Key"

	contextKeyIdempotencyKey contextKey = "idempotency-key"
)

// AttachRequestMetadata echoes the chi request id back to the client, stores
// the idempotency key in the context and tags the active span with both.
// It must run after middleware.RequestID.
func AttachRequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		idempotencyKey := r.Header.Get(HeaderXIdempotencyKey)

		if requestID != "" {
			w.Header().Set(HeaderXRequestID, requestID)
		}
		trace.SpanFromContext(r.Context()).SetAttributes(
			attribute.String("http.request_id", requestID),
			attribute.String("http.idempotency_key", idempotencyKey),
		)

		ctx := context.WithValue(r.Context(), contextKeyIdempotencyKey, idempotencyKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdempotencyKey returns the X-Idempotency-Key of the request, or "".
func IdempotencyKey(ctx context.Context) string {
	// Use comma-ok idiom to safely extract typed context values.
	key, _ := ctx.Value(contextKeyIdempotencyKey).(string)
	return key
}
