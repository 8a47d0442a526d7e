package scheduler

import "errors"

var (
	// ErrBadRequest marks a malformed scheduling request. It is the only
	// class of error Schedule returns; downstream failures are recorded on
	// the job record and observed by polling.
	ErrBadRequest = errors.New("bad schedule request")

	// ErrStopped is returned when scheduling after shutdown has begun.
	ErrStopped = errors.New("scheduler stopped")

	// errTimeout marks an attempt that exceeded its wall-clock budget. The
	// in-flight task is abandoned, not killed; its context is cancelled so a
	// cooperative executor can self-abort.
	errTimeout = errors.New("job attempt timed out")

	// errNoExecutor marks a job whose type has no registered executor.
	errNoExecutor = errors.New("no executor registered for job type")
)
