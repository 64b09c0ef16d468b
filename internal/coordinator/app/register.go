package app

import (
	"errors"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/eventbus"
)

// Repositories groups the three stores the coordinator writes to.
type Repositories struct {
	Instances instance.Repository
	Steps     step.Repository
	Logs      sagalog.Repository
}

// Register binds every command handler to commands and subscribes the saga
// log projection to events.
func Register(commands *commandbus.Bus, events *eventbus.Bus, repos Repositories) error {
	err := errors.Join(
		commandbus.Register[SagaInstanceCreate, string](commands, NewSagaInstanceCreateHandler(repos.Instances, events)),
		commandbus.Register[SagaInstanceChangeStatus, struct{}](commands, NewSagaInstanceChangeStatusHandler(repos.Instances, events)),
		commandbus.Register[SagaInstanceDelete, struct{}](commands, NewSagaInstanceDeleteHandler(repos.Instances)),
		commandbus.Register[SagaStepCreate, string](commands, NewSagaStepCreateHandler(repos.Steps, events)),
		commandbus.Register[SagaStepUpdate, struct{}](commands, NewSagaStepUpdateHandler(repos.Steps, events)),
		commandbus.Register[SagaStepChangeStatus, struct{}](commands, NewSagaStepChangeStatusHandler(repos.Steps, events)),
		commandbus.Register[SagaStepDelete, struct{}](commands, NewSagaStepDeleteHandler(repos.Steps)),
		commandbus.Register[SagaLogCreate, string](commands, NewSagaLogCreateHandler(repos.Logs)),
	)
	if err != nil {
		return err
	}

	events.Subscribe(step.EventTypeStatusChanged, NewSagaStepStatusChangedSubscriber(commands))
	return nil
}
