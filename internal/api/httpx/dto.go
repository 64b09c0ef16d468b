package httpx

import (
	"encoding/json"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

type CreateSagaInstanceRequest struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status instance.Status `json:"status"`
}

type ChangeSagaInstanceStatusRequest struct {
	Status instance.Status `json:"status"`
}

type CreateSagaStepRequest struct {
	ID             string          `json:"id"`
	SagaInstanceID string          `json:"sagaInstanceId"`
	Name           string          `json:"name"`
	Order          int             `json:"order"`
	Payload        json.RawMessage `json:"payload"`
	Status         step.Status     `json:"status"`
	RetryCount     *int            `json:"retryCount"`
	MaxRetries     *int            `json:"maxRetries"`
	Result         json.RawMessage `json:"result"`
}

// UpdateSagaStepRequest distinguishes an absent key (unchanged) from an
// explicit null (cleared).
type UpdateSagaStepRequest struct {
	Name         ddd.Optional[string]          `json:"name"`
	Order        ddd.Optional[int]             `json:"order"`
	Status       ddd.Optional[step.Status]     `json:"status"`
	Payload      ddd.Optional[json.RawMessage] `json:"payload"`
	Result       ddd.Optional[json.RawMessage] `json:"result"`
	ErrorMessage ddd.Optional[string]          `json:"errorMessage"`
	RetryCount   ddd.Optional[int]             `json:"retryCount"`
	MaxRetries   ddd.Optional[int]             `json:"maxRetries"`
}

type ChangeSagaStepStatusRequest struct {
	Status       step.Status          `json:"status"`
	ErrorMessage ddd.Optional[string] `json:"errorMessage"`
}

type CreatedResponse struct {
	ID string `json:"id"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
