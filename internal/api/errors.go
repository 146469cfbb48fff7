package api

import (
	"errors"
	"net/http"

	"github.com/avelines/taskwatch/internal/task"
)

// MapErrorToStatusCode maps tracker errors to HTTP status codes so internal
// error details do not leak to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrAlreadyRunning):
		return http.StatusConflict

	case errors.Is(err, task.ErrPollerLimit):
		return http.StatusTooManyRequests

	case errors.Is(err, task.ErrNoActiveTask):
		return http.StatusNotFound

	case errors.Is(err, task.ErrLaunchRejected),
		errors.Is(err, task.ErrProtocol):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly message for the
// error type.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, task.ErrAlreadyRunning):
		return "A task of this type is already running for the entity"

	case errors.Is(err, task.ErrPollerLimit):
		return "Too many tasks are running, try again later"

	case errors.Is(err, task.ErrNoActiveTask):
		return "No active task for the entity and task type"

	case errors.Is(err, task.ErrLaunchRejected):
		return "The content service rejected the task"

	case errors.Is(err, task.ErrProtocol):
		return "The content service returned a malformed response"

	default:
		return "Failed to launch the task"
	}
}
