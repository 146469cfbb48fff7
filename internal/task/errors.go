package task

import "errors"

// Common errors returned by the tracking subsystem. Poll-time terminal
// errors (ErrTaskFailed, ErrTimeout, ErrUnknownStatus) travel through the
// error callback; launch-time errors are returned synchronously.
var (
	// ErrAlreadyRunning is returned when a launch is requested for an
	// entity and task type that already has an active descriptor. The
	// remote service is not contacted in that case.
	ErrAlreadyRunning = errors.New("task already running")

	// ErrLaunchRejected is returned when the launch endpoint answered but
	// did not accept the job.
	ErrLaunchRejected = errors.New("task launch rejected")

	// ErrProtocol is returned when the launch endpoint reported acceptance
	// without providing a task id.
	ErrProtocol = errors.New("malformed launch response")

	// ErrTaskFailed wraps the server-reported error of a job that reached
	// the failed state.
	ErrTaskFailed = errors.New("task failed")

	// ErrTimeout indicates the poll attempt budget was exhausted before
	// the job reached a terminal state.
	ErrTimeout = errors.New("task timed out")

	// ErrUnknownStatus indicates the status endpoint returned a value
	// outside the known vocabulary.
	ErrUnknownStatus = errors.New("unrecognized task status")

	// ErrPollerLimit is returned by Launch when the configured cap on
	// concurrently polling tasks is reached.
	ErrPollerLimit = errors.New("too many concurrent tasks")

	// ErrNoActiveTask is returned by operations that need an active
	// descriptor for a key that has none.
	ErrNoActiveTask = errors.New("no active task")
)
