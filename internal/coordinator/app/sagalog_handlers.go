package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/metrics"
)

type SagaLogCreateHandler struct {
	repo sagalog.Repository
}

func NewSagaLogCreateHandler(repo sagalog.Repository) *SagaLogCreateHandler {
	return &SagaLogCreateHandler{repo: repo}
}

// Execute stamps the entry with the trace of ctx, which the command bus has
// already wrapped in a SagaLogCreate span.
func (h *SagaLogCreateHandler) Execute(ctx context.Context, cmd SagaLogCreate) (string, error) {
	entry := sagalog.NewEntry(ctx, cmd.SagaInstanceID, cmd.SagaStepID, cmd.Type, cmd.Message)
	if err := entry.Validate(); err != nil {
		return "", err
	}
	if err := h.repo.Save(ctx, entry); err != nil {
		return "", err
	}
	metrics.LogsCreatedTotal.WithLabelValues(string(entry.Type)).Inc()

	slog.DebugContext(ctx, "saga log created",
		"saga_log_id", entry.ID,
		"saga_step_id", entry.SagaStepID,
		"type", entry.Type,
	)
	return entry.ID, nil
}

// SagaStepStatusChangedSubscriber turns every SagaStepStatusChangedEvent into
// one SagaLogCreate command. Command failures are returned to the event bus
// unchanged.
type SagaStepStatusChangedSubscriber struct {
	commands *commandbus.Bus
}

func NewSagaStepStatusChangedSubscriber(commands *commandbus.Bus) *SagaStepStatusChangedSubscriber {
	return &SagaStepStatusChangedSubscriber{commands: commands}
}

func (s *SagaStepStatusChangedSubscriber) Handle(ctx context.Context, event ddd.DomainEvent) error {
	ev, ok := event.(step.StatusChangedEvent)
	if !ok {
		return fmt.Errorf("saga log projection: unexpected event %T", event)
	}

	status := string(ev.Data.Status)
	_, err := commandbus.Dispatch[string](ctx, s.commands, SagaLogCreate{
		SagaInstanceID: ev.Data.SagaInstanceID,
		SagaStepID:     ev.AggregateID(),
		Type:           sagalog.Classify(status),
		Message:        sagalog.Message(status, ev.Data.ErrorMessage),
	})
	return err
}
