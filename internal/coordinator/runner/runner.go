// Package runner drives a saga definition through the command bus.
//
// The aggregates accept any status sequence. The Runner is the component
// that decides which sequence is legal, when a failed step is retried and
// when completed steps are compensated.
//
// A process embeds it next to the command bus it already serves:
//
//	r := runner.New(commands, queries)
//	id, err := r.Run(ctx, runner.Definition{Name: "checkout", Steps: steps})
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/app"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// Step represents a single unit of work in the saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	Compensate(ctx context.Context, payload json.RawMessage) error
}

// StepDefinition binds a Step to its input. Nil MaxRetries uses
// step.DefaultMaxRetries.
type StepDefinition struct {
	Step       Step
	Payload    json.RawMessage
	MaxRetries *int
}

// Definition is an ordered list of steps run under one saga instance.
type Definition struct {
	Name  string
	Steps []StepDefinition
}

// StepError reports the step that exhausted its retries.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("runner: step %q failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// DefaultBackoff waits a constant 200ms between attempts.
func DefaultBackoff() retry.Backoff {
	return retry.NewConstant(200 * time.Millisecond)
}

// Runner executes definitions sequentially. It is safe for concurrent use;
// each Run owns its own lifecycle state.
type Runner struct {
	commands *commandbus.Bus
	queries  *app.Queries
	backoff  func() retry.Backoff
}

type Option func(*Runner)

// WithBackoff replaces the delay policy between attempts of a step.
func WithBackoff(f func() retry.Backoff) Option {
	return func(r *Runner) { r.backoff = f }
}

// New returns a Runner issuing commands on commands. queries is used to read
// back the stored retry counters of a failed step.
func New(commands *commandbus.Bus, queries *app.Queries, opts ...Option) *Runner {
	r := &Runner{commands: commands, queries: queries, backoff: DefaultBackoff}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run creates a saga instance for def and executes its steps in order.
// The instance id is returned even when the run fails, so the caller can
// inspect the recorded steps and logs.
func (r *Runner) Run(ctx context.Context, def Definition) (string, error) {
	instanceID, err := commandbus.Dispatch[string](ctx, r.commands, app.SagaInstanceCreate{Name: def.Name})
	if err != nil {
		return "", fmt.Errorf("runner: create saga %q: %w", def.Name, err)
	}
	lc := newLifecycle(r.commands, instanceID)

	if err := lc.advance(ctx, triggerStart); err != nil {
		return instanceID, err
	}
	if err := lc.advance(ctx, triggerRun); err != nil {
		return instanceID, err
	}

	var completed []StepDefinition
	for i, sd := range def.Steps {
		slog.InfoContext(ctx, "executing step", "saga_instance_id", instanceID, "step", sd.Step.Name())

		err := r.runStep(ctx, instanceID, i+1, sd)
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			slog.WarnContext(ctx, "step failed, starting rollback",
				"saga_instance_id", instanceID,
				"step", sd.Step.Name(),
				"error", stepErr.Err,
			)
			if cerr := r.rollback(ctx, lc, completed); cerr != nil {
				return instanceID, errors.Join(err, cerr)
			}
			return instanceID, err
		}
		if err != nil {
			lc.abort(ctx)
			return instanceID, err
		}
		// Track successful step for potential compensation (LIFO)
		completed = append(completed, sd)
	}

	if err := lc.advance(ctx, triggerComplete); err != nil {
		return instanceID, err
	}
	slog.InfoContext(ctx, "saga completed successfully", "saga_instance_id", instanceID)
	return instanceID, nil
}

// runStep returns a *StepError when the step itself failed for good, and
// any other error when the coordinator could not record progress.
func (r *Runner) runStep(ctx context.Context, instanceID string, order int, sd StepDefinition) error {
	name := sd.Step.Name()
	stepID, err := commandbus.Dispatch[string](ctx, r.commands, app.SagaStepCreate{
		SagaInstanceID: instanceID,
		Name:           name,
		Order:          order,
		Payload:        sd.Payload,
		MaxRetries:     sd.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("runner: create step %q: %w", name, err)
	}
	if err := r.changeStep(ctx, stepID, step.StatusStarted, ddd.Optional[string]{}); err != nil {
		return err
	}

	attempts := 0
	var lastErr error
	result, err := retry.DoValue[json.RawMessage](ctx, r.backoff(), func(ctx context.Context) (json.RawMessage, error) {
		// Each attempt starts clean; the previous failure stays in the FAILED log.
		if err := r.changeStep(ctx, stepID, step.StatusRunning, ddd.Null[string]()); err != nil {
			return nil, err
		}

		attempts++
		out, execErr := sd.Step.Execute(ctx, sd.Payload)
		if execErr == nil {
			return out, nil
		}
		lastErr = execErr

		if err := r.changeStep(ctx, stepID, step.StatusFailed, ddd.Some(execErr.Error())); err != nil {
			return nil, err
		}
		stored, err := r.queries.GetSagaStep(ctx, stepID)
		if err != nil {
			return nil, fmt.Errorf("runner: load step %q: %w", stepID, err)
		}
		if !step.FromPrimitives(stored).CanRetry() {
			return nil, &StepError{Step: name, Attempts: attempts, Err: execErr}
		}

		if _, err := commandbus.Dispatch[struct{}](ctx, r.commands, app.SagaStepUpdate{
			ID:         stepID,
			RetryCount: ddd.Some(stored.RetryCount + 1),
		}); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "retrying step", "saga_step_id", stepID, "step", name, "retry_count", stored.RetryCount+1)
		return nil, retry.RetryableError(execErr)
	})
	if err != nil {
		// A capped backoff may give up before the stored counters do.
		var stepErr *StepError
		if !errors.As(err, &stepErr) && lastErr != nil && errors.Is(err, lastErr) {
			err = &StepError{Step: name, Attempts: attempts, Err: lastErr}
		}
		return err
	}

	if result != nil {
		if _, err := commandbus.Dispatch[struct{}](ctx, r.commands, app.SagaStepUpdate{
			ID:     stepID,
			Result: ddd.Some(result),
		}); err != nil {
			return err
		}
	}
	return r.changeStep(ctx, stepID, step.StatusCompleted, ddd.Null[string]())
}

func (r *Runner) changeStep(ctx context.Context, stepID string, status step.Status, errorMessage ddd.Optional[string]) error {
	_, err := commandbus.Dispatch[struct{}](ctx, r.commands, app.SagaStepChangeStatus{
		ID:           stepID,
		Status:       status,
		ErrorMessage: errorMessage,
	})
	if err != nil {
		return fmt.Errorf("runner: step %q to %s: %w", stepID, status, err)
	}
	return nil
}

// rollback compensates completed steps in reverse order. Every compensation
// is attempted; any failure leaves the instance FAILED instead of
// COMPENSATED.
func (r *Runner) rollback(ctx context.Context, lc *lifecycle, completed []StepDefinition) error {
	if err := lc.advance(ctx, triggerCompensate); err != nil {
		return err
	}

	var errs []error
	for i := len(completed) - 1; i >= 0; i-- {
		sd := completed[i]
		slog.InfoContext(ctx, "compensating step", "saga_instance_id", lc.instanceID, "step", sd.Step.Name())
		if err := sd.Step.Compensate(ctx, sd.Payload); err != nil {
			slog.ErrorContext(ctx, "failed to compensate step",
				"saga_instance_id", lc.instanceID,
				"step", sd.Step.Name(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("runner: compensate %q: %w", sd.Step.Name(), err))
		}
	}

	if len(errs) > 0 {
		if err := lc.advance(ctx, triggerFail); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return lc.advance(ctx, triggerCompensated)
}
