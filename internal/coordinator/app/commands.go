// Package app holds the command side of the saga coordinator: commands,
// their handlers, the assert collaborators and the saga log projection, plus
// the read-side queries served over HTTP.
//
// Every mutating handler follows the same sequence: load (or build) the
// aggregate, mutate it, save it, publish its buffered events, commit.
package app

import (
	"encoding/json"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

// SagaInstanceCreate creates an instance and returns its id.
// Empty ID generates one; empty Status means PENDING.
type SagaInstanceCreate struct {
	ID     string          `json:"id,omitempty"`
	Name   string          `json:"name"`
	Status instance.Status `json:"status,omitempty"`
}

func (SagaInstanceCreate) CommandName() string { return "SagaInstanceCreate" }

type SagaInstanceChangeStatus struct {
	ID     string          `json:"id"`
	Status instance.Status `json:"status"`
}

func (SagaInstanceChangeStatus) CommandName() string { return "SagaInstanceChangeStatus" }

type SagaInstanceDelete struct {
	ID string `json:"id"`
}

func (SagaInstanceDelete) CommandName() string { return "SagaInstanceDelete" }

// SagaStepCreate creates a step and returns its id. The step always ends up
// PENDING; Status only seeds the creation snapshot.
type SagaStepCreate struct {
	ID             string          `json:"id,omitempty"`
	SagaInstanceID string          `json:"sagaInstanceId"`
	Name           string          `json:"name"`
	Order          int             `json:"order"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         step.Status     `json:"status,omitempty"`
	RetryCount     *int            `json:"retryCount,omitempty"`
	MaxRetries     *int            `json:"maxRetries,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
}

func (SagaStepCreate) CommandName() string { return "SagaStepCreate" }

// SagaStepUpdate is a partial update. Unset fields are left alone and an
// explicit null clears the nullable ones.
type SagaStepUpdate struct {
	ID           string                        `json:"-"`
	Name         ddd.Optional[string]          `json:"name"`
	Order        ddd.Optional[int]             `json:"order"`
	Status       ddd.Optional[step.Status]     `json:"status"`
	Payload      ddd.Optional[json.RawMessage] `json:"payload"`
	Result       ddd.Optional[json.RawMessage] `json:"result"`
	ErrorMessage ddd.Optional[string]          `json:"errorMessage"`
	RetryCount   ddd.Optional[int]             `json:"retryCount"`
	MaxRetries   ddd.Optional[int]             `json:"maxRetries"`
}

func (SagaStepUpdate) CommandName() string { return "SagaStepUpdate" }

// SagaStepChangeStatus moves a step to Status. ErrorMessage is applied
// first, so the status-changed snapshot carries it.
type SagaStepChangeStatus struct {
	ID           string               `json:"-"`
	Status       step.Status          `json:"status"`
	ErrorMessage ddd.Optional[string] `json:"errorMessage"`
}

func (SagaStepChangeStatus) CommandName() string { return "SagaStepChangeStatus" }

type SagaStepDelete struct {
	ID string `json:"id"`
}

func (SagaStepDelete) CommandName() string { return "SagaStepDelete" }

// SagaLogCreate appends one audit entry and returns its id.
type SagaLogCreate struct {
	SagaInstanceID string       `json:"sagaInstanceId"`
	SagaStepID     string       `json:"sagaStepId"`
	Type           sagalog.Type `json:"type"`
	Message        string       `json:"message"`
}

func (SagaLogCreate) CommandName() string { return "SagaLogCreate" }
