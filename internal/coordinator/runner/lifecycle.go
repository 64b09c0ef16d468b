package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qmuntal/stateless"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/app"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
)

type trigger string

const (
	triggerStart       trigger = "start"
	triggerRun         trigger = "run"
	triggerComplete    trigger = "complete"
	triggerCompensate  trigger = "compensate"
	triggerCompensated trigger = "compensated"
	triggerFail        trigger = "fail"
)

// lifecycle mirrors one saga instance's status in a state machine and only
// issues SagaInstanceChangeStatus for transitions the machine permits.
type lifecycle struct {
	commands   *commandbus.Bus
	instanceID string
	fsm        *stateless.StateMachine
}

func newLifecycle(commands *commandbus.Bus, instanceID string) *lifecycle {
	fsm := stateless.NewStateMachine(instance.StatusPending)

	fsm.Configure(instance.StatusPending).
		Permit(triggerStart, instance.StatusStarted)

	fsm.Configure(instance.StatusStarted).
		Permit(triggerRun, instance.StatusRunning).
		Permit(triggerFail, instance.StatusFailed)

	fsm.Configure(instance.StatusRunning).
		Permit(triggerComplete, instance.StatusCompleted).
		Permit(triggerCompensate, instance.StatusCompensating).
		Permit(triggerFail, instance.StatusFailed)

	fsm.Configure(instance.StatusCompensating).
		Permit(triggerCompensated, instance.StatusCompensated).
		Permit(triggerFail, instance.StatusFailed)

	return &lifecycle{commands: commands, instanceID: instanceID, fsm: fsm}
}

func (l *lifecycle) status() instance.Status {
	return l.fsm.MustState().(instance.Status)
}

// advance fires t and records the resulting status on the instance.
func (l *lifecycle) advance(ctx context.Context, t trigger) error {
	from := l.status()
	if err := l.fsm.FireCtx(ctx, t); err != nil {
		return fmt.Errorf("runner: saga %q cannot %s from %s: %w", l.instanceID, t, from, err)
	}
	to := l.status()

	if _, err := commandbus.Dispatch[struct{}](ctx, l.commands, app.SagaInstanceChangeStatus{
		ID:     l.instanceID,
		Status: to,
	}); err != nil {
		return fmt.Errorf("runner: saga %q to %s: %w", l.instanceID, to, err)
	}
	return nil
}

// abort marks the instance FAILED after the coordinator itself failed. The
// triggering error is what the caller reports, so this one is only logged.
func (l *lifecycle) abort(ctx context.Context) {
	if err := l.advance(ctx, triggerFail); err != nil {
		slog.ErrorContext(ctx, "failed to mark saga as failed", "saga_instance_id", l.instanceID, "error", err)
	}
}
