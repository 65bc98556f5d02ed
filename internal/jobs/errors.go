package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by TryStart when a live job already occupies the key
	ErrAlreadyRunning = errors.New("operation already in progress")

	// ErrInvalidState signals a programming error: acknowledging a running job,
	// or reading a sink with a cursor it never issued
	ErrInvalidState = errors.New("invalid job state")

	// ErrNotFound is returned when no handle exists under a key
	ErrNotFound = errors.New("job not found")

	// ErrSessionLimit is returned by TryStart when the per-session running-job limit is reached
	ErrSessionLimit = errors.New("too many running operations for this session")
)

// JobError is the captured failure of a job's work function. It records which
// stage of a chained job failed so the caller can render a diagnostic.
type JobError struct {
	JobID     string
	Stage     int
	StageName string
	Panicked  bool
	Err       error
}

func (e *JobError) Error() string {
	if e.StageName != "" {
		return fmt.Sprintf("stage %d (%s) failed: %v", e.Stage+1, e.StageName, e.Err)
	}
	return e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}
