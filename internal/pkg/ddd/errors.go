package ddd

import "errors"

var (
	// ErrNotFound is wrapped by assert-exists collaborators.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is wrapped by assert-not-exists collaborators.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument marks malformed commands.
	ErrInvalidArgument = errors.New("invalid argument")
)
