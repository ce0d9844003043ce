package service

import "errors"

// Service errors that callers check with errors.Is. The API layer maps
// them to HTTP status codes; anything else is an internal error.
var (
	// ErrInvalidInput indicates the submitted texts failed validation.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTaskNotFound indicates that the task does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrQueueUnavailable indicates the task was stored but could not be
	// enqueued. The task stays pending until recovery re-enqueues it.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrQueueUnavailable = errors.New("work queue unavailable")
)
