package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/goleak"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/memdb"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/eventbus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	commands *commandbus.Bus
	events   *eventbus.Bus
	repos    Repositories
	queries  *Queries

	mu        sync.Mutex
	published []ddd.DomainEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := memdb.New()
	require.NoError(t, err)

	h := &harness{
		commands: commandbus.New(),
		events:   eventbus.New(),
		repos: Repositories{
			Instances: store.Instances(),
			Steps:     store.Steps(),
			Logs:      store.Logs(),
		},
	}
	require.NoError(t, Register(h.commands, h.events, h.repos))
	h.queries = NewQueries(h.repos)

	record := eventbus.HandlerFunc(func(_ context.Context, e ddd.DomainEvent) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, e)
		return nil
	})
	for _, typ := range []string{
		instance.EventTypeCreated,
		instance.EventTypeStatusChanged,
		step.EventTypeCreated,
		step.EventTypeStatusChanged,
		step.EventTypeUpdated,
	} {
		h.events.Subscribe(typ, record)
	}
	return h
}

func (h *harness) takeEvents() []ddd.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.published
	h.published = nil
	return out
}

func (h *harness) createStep(t *testing.T, cmd SagaStepCreate) string {
	t.Helper()
	id, err := commandbus.Dispatch[string](context.Background(), h.commands, cmd)
	require.NoError(t, err)
	h.takeEvents()
	return id
}

// calls records the interleaving of repository and publisher calls.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, name)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeInstanceRepo struct {
	calls   *calls
	found   *instance.SagaInstance
	findErr error
	saveErr error
}

func (r *fakeInstanceRepo) FindByID(context.Context, string) (*instance.SagaInstance, error) {
	r.calls.add("find")
	return r.found, r.findErr
}

func (r *fakeInstanceRepo) Save(context.Context, *instance.SagaInstance) error {
	r.calls.add("save")
	return r.saveErr
}

func (r *fakeInstanceRepo) Delete(context.Context, string) error {
	r.calls.add("delete")
	return nil
}

type fakePublisher struct {
	calls  *calls
	err    error
	events []ddd.DomainEvent
}

func (p *fakePublisher) PublishAll(_ context.Context, events []ddd.DomainEvent) error {
	p.calls.add("publishAll")
	p.events = append(p.events, events...)
	return p.err
}

func TestSagaInstanceChangeStatus_EveryStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := commandbus.Dispatch[string](ctx, h.commands, SagaInstanceCreate{Name: "checkout"})
	require.NoError(t, err)
	events := h.takeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, instance.EventTypeCreated, events[0].EventType())

	for _, status := range instance.Statuses() {
		t.Run(string(status), func(t *testing.T) {
			_, err := commandbus.Dispatch[struct{}](ctx, h.commands, SagaInstanceChangeStatus{ID: id, Status: status})
			require.NoError(t, err)

			got, err := h.queries.GetSagaInstance(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, status, got.Status)

			events := h.takeEvents()
			require.Len(t, events, 1)
			ev, ok := events[0].(instance.StatusChangedEvent)
			require.True(t, ok)
			assert.Equal(t, instance.AggregateType, ev.AggregateType())
			assert.Equal(t, id, ev.AggregateID())
			if diff := cmp.Diff(got, ev.Data); diff != "" {
				t.Errorf("event snapshot differs from stored state (-stored +event):\n%s", diff)
			}
		})
	}
}

func TestSagaInstanceChangeStatus_UnknownStatus(t *testing.T) {
	c := &calls{}
	s, err := instance.Create(instance.CreateProps{Name: "checkout"}, false)
	require.NoError(t, err)
	repo := &fakeInstanceRepo{calls: c, found: s}
	pub := &fakePublisher{calls: c}

	_, err = NewSagaInstanceChangeStatusHandler(repo, pub).Execute(context.Background(), SagaInstanceChangeStatus{
		ID:     s.ID(),
		Status: "ARCHIVED",
	})

	require.Error(t, err)
	assert.EqualError(t, err, "Unknown status: ARCHIVED. Cannot change saga instance status.")
	assert.ErrorIs(t, err, ddd.ErrInvalidArgument)
	var unknown *UnknownStatusError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"find"}, c.list())
}

func TestSagaStepChangeStatus_UnknownStatus(t *testing.T) {
	h := newHarness(t)
	id := h.createStep(t, SagaStepCreate{SagaInstanceID: "S1", Name: "charge"})

	_, err := commandbus.Dispatch[struct{}](context.Background(), h.commands, SagaStepChangeStatus{ID: id, Status: "COMPENSATED"})
	assert.EqualError(t, err, "Unknown status: COMPENSATED. Cannot change saga step status.")
	assert.Empty(t, h.takeEvents())
}

func TestSagaInstanceChangeStatus_SavesBeforePublishing(t *testing.T) {
	c := &calls{}
	s, err := instance.Create(instance.CreateProps{Name: "checkout"}, false)
	require.NoError(t, err)
	repo := &fakeInstanceRepo{calls: c, found: s}
	pub := &fakePublisher{calls: c}

	_, err = NewSagaInstanceChangeStatusHandler(repo, pub).Execute(context.Background(), SagaInstanceChangeStatus{
		ID:     s.ID(),
		Status: instance.StatusRunning,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"find", "save", "publishAll"}, c.list())
	require.Len(t, pub.events, 1)
	assert.Empty(t, s.UncommittedEvents(), "events are committed after publishing")
}

func TestSagaInstanceChangeStatus_FailedSaveSkipsPublish(t *testing.T) {
	c := &calls{}
	boom := errors.New("disk full")
	s, err := instance.Create(instance.CreateProps{Name: "checkout"}, false)
	require.NoError(t, err)
	repo := &fakeInstanceRepo{calls: c, found: s, saveErr: boom}
	pub := &fakePublisher{calls: c}

	_, err = NewSagaInstanceChangeStatusHandler(repo, pub).Execute(context.Background(), SagaInstanceChangeStatus{
		ID:     s.ID(),
		Status: instance.StatusRunning,
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"find", "save"}, c.list())
}

func TestSagaInstanceChangeStatus_FailedPublishKeepsBuffer(t *testing.T) {
	c := &calls{}
	boom := errors.New("bus down")
	s, err := instance.Create(instance.CreateProps{Name: "checkout"}, false)
	require.NoError(t, err)
	repo := &fakeInstanceRepo{calls: c, found: s}
	pub := &fakePublisher{calls: c, err: boom}

	_, err = NewSagaInstanceChangeStatusHandler(repo, pub).Execute(context.Background(), SagaInstanceChangeStatus{
		ID:     s.ID(),
		Status: instance.StatusFailed,
	})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.UncommittedEvents(), 1)
}

func TestSagaInstanceChangeStatus_NotFound(t *testing.T) {
	c := &calls{}
	repo := &fakeInstanceRepo{calls: c}
	pub := &fakePublisher{calls: c}

	_, err := NewSagaInstanceChangeStatusHandler(repo, pub).Execute(context.Background(), SagaInstanceChangeStatus{
		ID:     "missing",
		Status: instance.StatusRunning,
	})

	assert.ErrorIs(t, err, ddd.ErrNotFound)
	assert.Equal(t, []string{"find"}, c.list(), "neither save nor publishAll may run")
}

func TestSagaInstanceChangeStatus_PropagatesLookupError(t *testing.T) {
	c := &calls{}
	boom := errors.New("connection reset")
	repo := &fakeInstanceRepo{calls: c, findErr: boom}
	pub := &fakePublisher{calls: c}

	_, err := NewSagaInstanceChangeStatusHandler(repo, pub).Execute(context.Background(), SagaInstanceChangeStatus{
		ID:     "S1",
		Status: instance.StatusRunning,
	})

	assert.Same(t, boom, err)
	assert.Equal(t, []string{"find"}, c.list())
}

func TestSagaInstanceCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := commandbus.Dispatch[string](ctx, h.commands, SagaInstanceCreate{Name: "  "})
	assert.ErrorIs(t, err, ddd.ErrInvalidArgument)

	_, err = commandbus.Dispatch[string](ctx, h.commands, SagaInstanceCreate{Name: "checkout", Status: "DONE"})
	assert.EqualError(t, err, "Unknown status: DONE. Cannot change saga instance status.")

	id, err := commandbus.Dispatch[string](ctx, h.commands, SagaInstanceCreate{ID: "S1", Name: "checkout"})
	require.NoError(t, err)
	assert.Equal(t, "S1", id)

	_, err = commandbus.Dispatch[string](ctx, h.commands, SagaInstanceCreate{ID: "S1", Name: "again"})
	assert.ErrorIs(t, err, ddd.ErrAlreadyExists)

	got, err := h.queries.GetSagaInstance(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, instance.StatusPending, got.Status)
	assert.Equal(t, "checkout", got.Name)
}

func TestSagaStepCreate_EmitsExactlyOneEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := commandbus.Dispatch[string](ctx, h.commands, SagaStepCreate{
		SagaInstanceID: "S1",
		Name:           "Charge Card",
		Order:          1,
		Payload:        json.RawMessage(`{"amount":100}`),
		Status:         step.StatusRunning,
	})
	require.NoError(t, err)

	events := h.takeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, step.EventTypeCreated, events[0].EventType())
	assert.Equal(t, id, events[0].AggregateID())

	got, err := h.queries.GetSagaStep(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, step.StatusPending, got.Status)
	assert.Equal(t, step.DefaultMaxRetries, got.MaxRetries)
	assert.JSONEq(t, `{"amount":100}`, string(got.Payload))

	logs, err := h.queries.ListSagaLogsByStep(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, logs, "creation does not produce a saga log")

	_, err = commandbus.Dispatch[string](ctx, h.commands, SagaStepCreate{ID: id, SagaInstanceID: "S1", Name: "dup"})
	assert.ErrorIs(t, err, ddd.ErrAlreadyExists)
}

func TestSagaStepChangeStatus_ChargeCardScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createStep(t, SagaStepCreate{
		SagaInstanceID: "S1",
		Name:           "Charge Card",
		Order:          1,
		Payload:        json.RawMessage(`{"amount":100}`),
	})

	_, err := commandbus.Dispatch[struct{}](ctx, h.commands, SagaStepChangeStatus{
		ID:           id,
		Status:       step.StatusFailed,
		ErrorMessage: ddd.Some("card_declined"),
	})
	require.NoError(t, err)

	events := h.takeEvents()
	require.Len(t, events, 1)
	ev, ok := events[0].(step.StatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, step.StatusFailed, ev.Data.Status)
	require.NotNil(t, ev.Data.ErrorMessage)
	assert.Equal(t, "card_declined", *ev.Data.ErrorMessage)

	logs, err := h.queries.ListSagaLogsByStep(ctx, id)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, sagalog.TypeError, logs[0].Type)
	assert.Equal(t, `Saga step status changed to "FAILED". Error: card_declined`, logs[0].Message)
	assert.Equal(t, "S1", logs[0].SagaInstanceID)
}

func TestSagaStepChangeStatus_LogClassification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createStep(t, SagaStepCreate{SagaInstanceID: "S1", Name: "reserve"})

	for _, status := range []step.Status{step.StatusStarted, step.StatusRunning, step.StatusCompleted} {
		_, err := commandbus.Dispatch[struct{}](ctx, h.commands, SagaStepChangeStatus{ID: id, Status: status})
		require.NoError(t, err)
	}

	logs, err := h.queries.ListSagaLogsByInstance(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, sagalog.TypeDebug, logs[0].Type)
	assert.Equal(t, sagalog.TypeDebug, logs[1].Type)
	assert.Equal(t, `Saga step status changed to "RUNNING"`, logs[1].Message)
	assert.NotContains(t, logs[1].Message, "Error:")
	assert.Equal(t, sagalog.TypeInfo, logs[2].Type)
}

func TestSagaStepChangeStatus_ErrorMessageTriState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createStep(t, SagaStepCreate{SagaInstanceID: "S1", Name: "charge"})

	change := func(cmd SagaStepChangeStatus) step.Primitives {
		t.Helper()
		cmd.ID = id
		_, err := commandbus.Dispatch[struct{}](ctx, h.commands, cmd)
		require.NoError(t, err)
		got, err := h.queries.GetSagaStep(ctx, id)
		require.NoError(t, err)
		return got
	}

	got := change(SagaStepChangeStatus{Status: step.StatusFailed, ErrorMessage: ddd.Some("timeout")})
	require.NotNil(t, got.ErrorMessage)

	got = change(SagaStepChangeStatus{Status: step.StatusRunning})
	require.NotNil(t, got.ErrorMessage, "unset leaves the message alone")
	assert.Equal(t, "timeout", *got.ErrorMessage)

	got = change(SagaStepChangeStatus{Status: step.StatusCompleted, ErrorMessage: ddd.Null[string]()})
	assert.Nil(t, got.ErrorMessage)
}

func TestSagaStepChangeStatus_LogFailureDoesNotRollBackStep(t *testing.T) {
	store, err := memdb.New()
	require.NoError(t, err)
	boom := errors.New("log store unavailable")
	commands, events := commandbus.New(), eventbus.New()
	require.NoError(t, Register(commands, events, Repositories{
		Instances: store.Instances(),
		Steps:     store.Steps(),
		Logs:      failingLogRepo{err: boom},
	}))
	ctx := context.Background()

	id, err := commandbus.Dispatch[string](ctx, commands, SagaStepCreate{SagaInstanceID: "S1", Name: "charge"})
	require.NoError(t, err)

	_, err = commandbus.Dispatch[struct{}](ctx, commands, SagaStepChangeStatus{ID: id, Status: step.StatusRunning})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var handlerErr *eventbus.HandlerError
	assert.ErrorAs(t, err, &handlerErr)

	s, err := store.Steps().FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, step.StatusRunning, s.Status())
}

type failingLogRepo struct{ err error }

func (r failingLogRepo) Save(context.Context, *sagalog.SagaLog) error { return r.err }

func (r failingLogRepo) FindBySagaInstanceID(context.Context, string) ([]*sagalog.SagaLog, error) {
	return nil, r.err
}

func (r failingLogRepo) FindBySagaStepID(context.Context, string) ([]*sagalog.SagaLog, error) {
	return nil, r.err
}

func TestSagaStepUpdate_PartialFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createStep(t, SagaStepCreate{
		SagaInstanceID: "S1",
		Name:           "charge",
		Order:          1,
		Payload:        json.RawMessage(`{"amount":100}`),
	})

	_, err := commandbus.Dispatch[struct{}](ctx, h.commands, SagaStepUpdate{
		ID:         id,
		Status:     ddd.Some(step.StatusCompleted),
		Result:     ddd.Some(json.RawMessage(`{"charge":"ch_1"}`)),
		Payload:    ddd.Null[json.RawMessage](),
		RetryCount: ddd.Some(1),
	})
	require.NoError(t, err)

	events := h.takeEvents()
	require.Len(t, events, 1, "a status carried by an update emits no status event")
	assert.Equal(t, step.EventTypeUpdated, events[0].EventType())

	got, err := h.queries.GetSagaStep(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "charge", got.Name)
	assert.Equal(t, 1, got.Order)
	assert.Equal(t, step.StatusCompleted, got.Status)
	assert.Nil(t, got.Payload)
	assert.JSONEq(t, `{"charge":"ch_1"}`, string(got.Result))
	assert.Equal(t, 1, got.RetryCount)

	logs, err := h.queries.ListSagaLogsByStep(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSagaStepUpdate_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createStep(t, SagaStepCreate{SagaInstanceID: "S1", Name: "charge"})

	cases := map[string]SagaStepUpdate{
		"null name":        {ID: id, Name: ddd.Null[string]()},
		"blank name":       {ID: id, Name: ddd.Some(" ")},
		"null status":      {ID: id, Status: ddd.Null[step.Status]()},
		"null retryCount":  {ID: id, RetryCount: ddd.Null[int]()},
		"negative retries": {ID: id, MaxRetries: ddd.Some(-1)},
		"unknown status":   {ID: id, Status: ddd.Some(step.Status("PAUSED"))},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := commandbus.Dispatch[struct{}](ctx, h.commands, cmd)
			assert.ErrorIs(t, err, ddd.ErrInvalidArgument)
		})
	}
	assert.Empty(t, h.takeEvents())

	_, err := commandbus.Dispatch[struct{}](ctx, h.commands, SagaStepUpdate{ID: "missing", Name: ddd.Some("x")})
	assert.ErrorIs(t, err, ddd.ErrNotFound)
}

func TestDeleteCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	instanceID, err := commandbus.Dispatch[string](ctx, h.commands, SagaInstanceCreate{Name: "checkout"})
	require.NoError(t, err)
	stepID := h.createStep(t, SagaStepCreate{SagaInstanceID: instanceID, Name: "charge"})
	h.takeEvents()

	_, err = commandbus.Dispatch[struct{}](ctx, h.commands, SagaStepDelete{ID: stepID})
	require.NoError(t, err)
	_, err = commandbus.Dispatch[struct{}](ctx, h.commands, SagaInstanceDelete{ID: instanceID})
	require.NoError(t, err)
	assert.Empty(t, h.takeEvents())

	_, err = h.queries.GetSagaStep(ctx, stepID)
	assert.ErrorIs(t, err, ddd.ErrNotFound)
	_, err = h.queries.GetSagaInstance(ctx, instanceID)
	assert.ErrorIs(t, err, ddd.ErrNotFound)

	steps, err := h.queries.ListSagaSteps(ctx, instanceID)
	require.NoError(t, err)
	assert.NotNil(t, steps)
	assert.Empty(t, steps)

	_, err = commandbus.Dispatch[struct{}](ctx, h.commands, SagaInstanceDelete{ID: instanceID})
	assert.ErrorIs(t, err, ddd.ErrNotFound)
}

func TestListSagaSteps_Ordered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, order := range []int{3, 1, 2} {
		h.createStep(t, SagaStepCreate{SagaInstanceID: "S1", Name: "step", Order: order})
	}

	steps, err := h.queries.ListSagaSteps(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Order)
	}
}

func TestSagaLogCreate_Validates(t *testing.T) {
	// No span processor, so the provider starts no goroutines.
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	h := newHarness(t)
	ctx := context.Background()

	_, err := commandbus.Dispatch[string](ctx, h.commands, SagaLogCreate{SagaStepID: "x", Type: sagalog.TypeInfo, Message: "m"})
	assert.ErrorIs(t, err, ddd.ErrInvalidArgument)

	id, err := commandbus.Dispatch[string](ctx, h.commands, SagaLogCreate{
		SagaInstanceID: "S1",
		SagaStepID:     "x",
		Type:           sagalog.TypeInfo,
		Message:        "m",
	})
	require.NoError(t, err)

	logs, err := h.queries.ListSagaLogsByStep(ctx, "x")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, id, logs[0].ID)
	assert.NotEmpty(t, logs[0].TraceID, "the command bus span is recorded on the entry")
}

func TestRegister_Twice(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, Register(h.commands, h.events, h.repos))
}
