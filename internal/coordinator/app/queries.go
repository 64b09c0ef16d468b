package app

import (
	"context"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
)

// Queries is the read side. It returns snapshots, never aggregates, so
// readers cannot buffer events by accident.
type Queries struct {
	instanceExists *AssertSagaInstanceExists
	stepExists     *AssertSagaStepExists
	steps          step.Repository
	logs           sagalog.Repository
}

func NewQueries(repos Repositories) *Queries {
	return &Queries{
		instanceExists: NewAssertSagaInstanceExists(repos.Instances),
		stepExists:     NewAssertSagaStepExists(repos.Steps),
		steps:          repos.Steps,
		logs:           repos.Logs,
	}
}

func (q *Queries) GetSagaInstance(ctx context.Context, id string) (instance.Primitives, error) {
	s, err := q.instanceExists.Execute(ctx, id)
	if err != nil {
		return instance.Primitives{}, err
	}
	return s.ToPrimitives(), nil
}

func (q *Queries) GetSagaStep(ctx context.Context, id string) (step.Primitives, error) {
	s, err := q.stepExists.Execute(ctx, id)
	if err != nil {
		return step.Primitives{}, err
	}
	return s.ToPrimitives(), nil
}

// ListSagaSteps returns the steps of an instance ordered by Order. The
// result is never nil.
func (q *Queries) ListSagaSteps(ctx context.Context, sagaInstanceID string) ([]step.Primitives, error) {
	steps, err := q.steps.FindBySagaInstanceID(ctx, sagaInstanceID)
	if err != nil {
		return nil, err
	}
	out := make([]step.Primitives, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.ToPrimitives())
	}
	return out, nil
}

func (q *Queries) ListSagaLogsByInstance(ctx context.Context, sagaInstanceID string) ([]sagalog.SagaLog, error) {
	return flattenLogs(q.logs.FindBySagaInstanceID(ctx, sagaInstanceID))
}

func (q *Queries) ListSagaLogsByStep(ctx context.Context, sagaStepID string) ([]sagalog.SagaLog, error) {
	return flattenLogs(q.logs.FindBySagaStepID(ctx, sagaStepID))
}

func flattenLogs(entries []*sagalog.SagaLog, err error) ([]sagalog.SagaLog, error) {
	if err != nil {
		return nil, err
	}
	out := make([]sagalog.SagaLog, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	return out, nil
}
