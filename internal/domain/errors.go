package domain

import "errors"

// Validation errors for task records.
var (
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
	ErrEmptyInput       = errors.New("task input must contain at least one text")
	ErrBlankText        = errors.New("task input texts cannot be blank")
	ErrInvalidStatus    = errors.New("invalid task status")
	ErrInconsistentTask = errors.New("task status does not match result and error fields")

	// ErrResultMismatch is returned when predictions do not line up with the input texts.
	ErrResultMismatch = errors.New("prediction result does not match input")
)
