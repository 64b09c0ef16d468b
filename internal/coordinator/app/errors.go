package app

import (
	"fmt"

	"github.com/jcmexdev/saga-coordinator/internal/pkg/ddd"
)

const (
	entityInstance = "saga instance"
	entityStep     = "saga step"
)

// UnknownStatusError is returned when a command names a status the
// dispatch table does not know. It matches ddd.ErrInvalidArgument.
type UnknownStatusError struct {
	Entity string
	Value  string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("Unknown status: %s. Cannot change %s status.", e.Value, e.Entity)
}

func (e *UnknownStatusError) Unwrap() error { return ddd.ErrInvalidArgument }
