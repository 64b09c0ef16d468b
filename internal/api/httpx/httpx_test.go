package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/saga-coordinator/internal/api/httpx/middlewares"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/app"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/memdb"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/eventbus"
)

func newServer(t *testing.T, opts RouterOptions) http.Handler {
	t.Helper()
	store, err := memdb.New()
	require.NoError(t, err)

	repos := app.Repositories{
		Instances: store.Instances(),
		Steps:     store.Steps(),
		Logs:      store.Logs(),
	}
	commands := commandbus.New()
	require.NoError(t, app.Register(commands, eventbus.New(), repos))
	return NewRouter(NewHandler(commands, app.NewQueries(repos)), opts)
}

func do(t *testing.T, srv http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createInstance(t *testing.T, srv http.Handler, name string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/saga-instances", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[CreatedResponse](t, rec).ID
}

func createStep(t *testing.T, srv http.Handler, body string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/saga-steps", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[CreatedResponse](t, rec).ID
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, RouterOptions{})

	rec := do(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get(middlewares.HeaderXRequestID))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, RouterOptions{})
	createInstance(t, srv, "Order")

	rec := do(t, srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "saga_commands_total")
}

func TestSagaInstanceLifecycle(t *testing.T) {
	srv := newServer(t, RouterOptions{})
	id := createInstance(t, srv, "Order #1")

	rec := do(t, srv, http.MethodGet, "/saga-instances/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[instance.Primitives](t, rec)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Order #1", got.Name)
	assert.Equal(t, instance.StatusPending, got.Status)

	rec = do(t, srv, http.MethodPut, "/saga-instances/"+id+"/status", `{"status":"STARTED"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decodeBody[instance.Primitives](t, rec)
	assert.Equal(t, instance.StatusStarted, got.Status)
	assert.NotNil(t, got.StartDate)

	rec = do(t, srv, http.MethodDelete, "/saga-instances/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/saga-instances/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeSagaInstanceStatusUnknown(t *testing.T) {
	srv := newServer(t, RouterOptions{})
	id := createInstance(t, srv, "Order")

	rec := do(t, srv, http.MethodPut, "/saga-instances/"+id+"/status", `{"status":"PAUSED"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_argument", body.Error)
	assert.Equal(t, "Unknown status: PAUSED. Cannot change saga instance status.", body.Message)
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t, RouterOptions{})
	existing := createInstance(t, srv, "Order")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing instance", http.MethodGet, "/saga-instances/nope", "", http.StatusNotFound, "not_found"},
		{"missing step", http.MethodGet, "/saga-steps/nope", "", http.StatusNotFound, "not_found"},
		{"status of missing instance", http.MethodPut, "/saga-instances/nope/status", `{"status":"RUNNING"}`, http.StatusNotFound, "not_found"},
		{"delete missing step", http.MethodDelete, "/saga-steps/nope", "", http.StatusNotFound, "not_found"},
		{"duplicate id", http.MethodPost, "/saga-instances", `{"id":"` + existing + `","name":"Again"}`, http.StatusConflict, "already_exists"},
		{"malformed json", http.MethodPost, "/saga-instances", `{"name":`, http.StatusBadRequest, "invalid_json"},
		{"step without name", http.MethodPost, "/saga-steps", `{"sagaInstanceId":"` + existing + `"}`, http.StatusBadRequest, "invalid_argument"},
		{"unknown step status", http.MethodPost, "/saga-steps", `{"sagaInstanceId":"` + existing + `","name":"x","status":"DONE"}`, http.StatusBadRequest, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestCreateSagaInstanceIdempotencyKey(t *testing.T) {
	srv := newServer(t, RouterOptions{})

	first := do(t, srv, http.MethodPost, "/saga-instances", `{"name":"Order"}`, middlewares.HeaderXIdempotencyKey, "order-42")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, "order-42", decodeBody[CreatedResponse](t, first).ID)

	replay := do(t, srv, http.MethodPost, "/saga-instances", `{"name":"Order"}`, middlewares.HeaderXIdempotencyKey, "order-42")
	require.Equal(t, http.StatusOK, replay.Code, replay.Body.String())
	assert.Equal(t, "order-42", decodeBody[CreatedResponse](t, replay).ID)
}

func TestSagaStepFlowWritesLogs(t *testing.T) {
	srv := newServer(t, RouterOptions{})
	instanceID := createInstance(t, srv, "Checkout")
	stepID := createStep(t, srv, `{"sagaInstanceId":"`+instanceID+`","name":"Charge Card","order":1,"payload":{"amount":100}}`)

	rec := do(t, srv, http.MethodPut, "/saga-steps/"+stepID+"/status", `{"status":"FAILED","errorMessage":"card declined"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[step.Primitives](t, rec)
	assert.Equal(t, step.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "card declined", *got.ErrorMessage)

	rec = do(t, srv, http.MethodGet, "/saga-steps/"+stepID+"/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]sagalog.SagaLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, sagalog.TypeError, logs[0].Type)
	assert.Equal(t, `Saga step status changed to "FAILED". Error: card declined`, logs[0].Message)

	rec = do(t, srv, http.MethodGet, "/saga-instances/"+instanceID+"/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]sagalog.SagaLog](t, rec), 1)
}

func TestUpdateSagaStepPatchSemantics(t *testing.T) {
	srv := newServer(t, RouterOptions{})
	instanceID := createInstance(t, srv, "Checkout")
	stepID := createStep(t, srv, `{"sagaInstanceId":"`+instanceID+`","name":"Reserve","order":1,"result":{"ok":true}}`)

	rec := do(t, srv, http.MethodPatch, "/saga-steps/"+stepID, `{"name":"Reserve Stock","result":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[step.Primitives](t, rec)
	assert.Equal(t, "Reserve Stock", got.Name)
	assert.Equal(t, 1, got.Order)
	assert.Equal(t, "null", string(got.Result))

	rec = do(t, srv, http.MethodPatch, "/saga-steps/"+stepID, `{"status":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSagaInstanceSteps(t *testing.T) {
	srv := newServer(t, RouterOptions{})
	instanceID := createInstance(t, srv, "Checkout")

	rec := do(t, srv, http.MethodGet, "/saga-instances/"+instanceID+"/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	second := createStep(t, srv, `{"sagaInstanceId":"`+instanceID+`","name":"Ship","order":2}`)
	first := createStep(t, srv, `{"sagaInstanceId":"`+instanceID+`","name":"Pay","order":1}`)

	rec = do(t, srv, http.MethodGet, "/saga-instances/"+instanceID+"/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	steps := decodeBody[[]step.Primitives](t, rec)
	require.Len(t, steps, 2)
	assert.Equal(t, first, steps[0].ID)
	assert.Equal(t, second, steps[1].ID)

	rec = do(t, srv, http.MethodDelete, "/saga-steps/"+first, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/saga-instances/"+instanceID+"/steps", "")
	assert.Len(t, decodeBody[[]step.Primitives](t, rec), 1)
}

func TestRateLimit(t *testing.T) {
	srv := newServer(t, RouterOptions{RateLimitRPM: 2})

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/saga-instances/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/saga-instances/nope", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
