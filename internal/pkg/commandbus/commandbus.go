// Package commandbus routes a command to the single handler registered for
// its name and returns that handler's result or error unchanged.
package commandbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/saga-coordinator/internal/pkg/metrics"
)

const tracerName = "github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"

// Command is an intent submitted to the bus.
type Command interface {
	CommandName() string
}

// Handler executes one command type and produces R.
type Handler[C Command, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Execute(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

type route func(ctx context.Context, cmd Command) (any, error)

// Bus is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	routes map[string]route
}

func New() *Bus {
	return &Bus{routes: make(map[string]route)}
}

// Register binds h to the name of C. Registering a name twice is an error.
func Register[C Command, R any](b *Bus, h Handler[C, R]) error {
	var zero C
	name := zero.CommandName()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.routes[name]; exists {
		return fmt.Errorf("commandbus: handler for %q already registered", name)
	}
	b.routes[name] = func(ctx context.Context, cmd Command) (any, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, fmt.Errorf("commandbus: %q routed a %T", name, cmd)
		}
		return h.Execute(ctx, typed)
	}
	return nil
}

// Dispatch executes cmd and asserts the handler result to R.
func Dispatch[R any](ctx context.Context, b *Bus, cmd Command) (R, error) {
	var zero R
	name := cmd.CommandName()

	b.mu.RLock()
	r, ok := b.routes[name]
	b.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("commandbus: no handler registered for %q", name)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()
	span.SetAttributes(attribute.String("command.name", name))

	start := time.Now()
	res, err := r(ctx, cmd)
	metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	metrics.CommandsTotal.WithLabelValues(name, metrics.Outcome(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	typed, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("commandbus: %q returned %T", name, res)
	}
	return typed, nil
}
