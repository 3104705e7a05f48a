package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not finish before its
	// deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckAborted indicates the caller's context ended during a check.
	ErrCheckAborted = errors.New("health: check aborted")

	// ErrCheckPanicked indicates a health check panicked.
	ErrCheckPanicked = errors.New("health: check panicked")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrQueueSaturated indicates a limiter's queue reached the unhealthy
	// threshold.
	ErrQueueSaturated = errors.New("health: limiter queue saturated")
)
