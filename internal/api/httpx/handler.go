package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/saga-coordinator/internal/api/httpx/middlewares"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/app"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// Handler exposes the saga commands and queries over HTTP. Writes go
// through the command bus; reads go straight to the queries.
type Handler struct {
	commands *commandbus.Bus
	queries  *app.Queries
}

func NewHandler(commands *commandbus.Bus, queries *app.Queries) *Handler {
	return &Handler{commands: commands, queries: queries}
}

// CreateSagaInstance uses X-Idempotency-Key as the instance id when the body
// has none, so a replayed request returns the instance created the first
// time.
func (h *Handler) CreateSagaInstance(w http.ResponseWriter, r *http.Request) {
	var req CreateSagaInstanceRequest
	if !decode(w, r, &req) {
		return
	}
	idempotent := req.ID == ""
	if idempotent {
		req.ID = middlewares.IdempotencyKey(r.Context())
	}

	id, err := commandbus.Dispatch[string](r.Context(), h.commands, app.SagaInstanceCreate{
		ID:     req.ID,
		Name:   req.Name,
		Status: req.Status,
	})
	if err != nil && idempotent && req.ID != "" && errors.Is(err, ddd.ErrAlreadyExists) {
		writeJSON(w, http.StatusOK, CreatedResponse{ID: req.ID})
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

func (h *Handler) GetSagaInstance(w http.ResponseWriter, r *http.Request) {
	out, err := h.queries.GetSagaInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ChangeSagaInstanceStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeSagaInstanceStatusRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")

	if _, err := commandbus.Dispatch[struct{}](r.Context(), h.commands, app.SagaInstanceChangeStatus{
		ID:     id,
		Status: req.Status,
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.GetSagaInstance(w, r)
}

func (h *Handler) DeleteSagaInstance(w http.ResponseWriter, r *http.Request) {
	if _, err := commandbus.Dispatch[struct{}](r.Context(), h.commands, app.SagaInstanceDelete{
		ID: chi.URLParam(r, "id"),
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListSagaInstanceSteps(w http.ResponseWriter, r *http.Request) {
	out, err := h.queries.ListSagaSteps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListSagaInstanceLogs(w http.ResponseWriter, r *http.Request) {
	out, err := h.queries.ListSagaLogsByInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateSagaStep(w http.ResponseWriter, r *http.Request) {
	var req CreateSagaStepRequest
	if !decode(w, r, &req) {
		return
	}
	idempotent := req.ID == ""
	if idempotent {
		req.ID = middlewares.IdempotencyKey(r.Context())
	}

	id, err := commandbus.Dispatch[string](r.Context(), h.commands, app.SagaStepCreate{
		ID:             req.ID,
		SagaInstanceID: req.SagaInstanceID,
		Name:           req.Name,
		Order:          req.Order,
		Payload:        req.Payload,
		Status:         req.Status,
		RetryCount:     req.RetryCount,
		MaxRetries:     req.MaxRetries,
		Result:         req.Result,
	})
	if err != nil && idempotent && req.ID != "" && errors.Is(err, ddd.ErrAlreadyExists) {
		writeJSON(w, http.StatusOK, CreatedResponse{ID: req.ID})
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

func (h *Handler) GetSagaStep(w http.ResponseWriter, r *http.Request) {
	out, err := h.queries.GetSagaStep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateSagaStep(w http.ResponseWriter, r *http.Request) {
	var req UpdateSagaStepRequest
	if !decode(w, r, &req) {
		return
	}

	if _, err := commandbus.Dispatch[struct{}](r.Context(), h.commands, app.SagaStepUpdate{
		ID:           chi.URLParam(r, "id"),
		Name:         req.Name,
		Order:        req.Order,
		Status:       req.Status,
		Payload:      req.Payload,
		Result:       req.Result,
		ErrorMessage: req.ErrorMessage,
		RetryCount:   req.RetryCount,
		MaxRetries:   req.MaxRetries,
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.GetSagaStep(w, r)
}

func (h *Handler) ChangeSagaStepStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeSagaStepStatusRequest
	if !decode(w, r, &req) {
		return
	}

	if _, err := commandbus.Dispatch[struct{}](r.Context(), h.commands, app.SagaStepChangeStatus{
		ID:           chi.URLParam(r, "id"),
		Status:       req.Status,
		ErrorMessage: req.ErrorMessage,
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.GetSagaStep(w, r)
}

func (h *Handler) DeleteSagaStep(w http.ResponseWriter, r *http.Request) {
	if _, err := commandbus.Dispatch[struct{}](r.Context(), h.commands, app.SagaStepDelete{
		ID: chi.URLParam(r, "id"),
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListSagaStepLogs(w http.ResponseWriter, r *http.Request) {
	out, err := h.queries.ListSagaLogsByStep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// writeDomainError maps the coordinator error kinds to HTTP statuses.
// Anything unexpected is logged and reported without details.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ddd.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ddd.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, ddd.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
