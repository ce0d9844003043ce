package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/moderation-api/internal/api/shared"
	"github.com/phrazzld/moderation-api/internal/service"
	"github.com/phrazzld/moderation-api/internal/store"
)

// errInvalidTaskID is returned for a task id path parameter that is not a UUID.
var errInvalidTaskID = errors.New("invalid task id")

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing the error itself.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, errInvalidTaskID):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrQueueUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, errInvalidTaskID):
		return "Invalid task ID"
	case errors.Is(err, service.ErrInvalidInput):
		return sanitizeInputError(err)
	case errors.Is(err, service.ErrQueueUnavailable):
		return "Task accepted but could not be queued; it will be retried"
	default:
		return "An unexpected error occurred"
	}
}

// sanitizeInputError keeps the service's validation detail, which names
// only counts and indexes, and drops everything else.
func sanitizeInputError(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, service.ErrInvalidInput.Error()+": "); i >= 0 {
		detail := msg[i+len(service.ErrInvalidInput.Error())+2:]
		if detail != "" && !strings.ContainsAny(detail, "/\\\"'") {
			return "Invalid input: " + detail
		}
	}
	return "Invalid input"
}

// SanitizeValidationError turns a validator error into a short message that
// names the failing field and rule.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "Invalid " + strings.ToLower(fe.Field()) + ": " + getValidationTagMessage(fe.Tag())
	}
	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "dive":
		return "invalid element"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the error response for err. An empty message uses
// GetSafeErrorMessage.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
