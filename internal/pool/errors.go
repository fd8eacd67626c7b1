package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted settles a task that was cancelled, either while still
	// queued or cooperatively while in flight. It is a normal termination,
	// distinct from execution errors.
	ErrAborted = errors.New("task aborted")

	// ErrClosed is returned for any submission or control call made after
	// the coordinator has shut down.
	ErrClosed = errors.New("coordinator closed")

	// ErrEmptyProgram rejects a submission whose program is empty or
	// whitespace-only. This is the only synchronous validation Submit does.
	ErrEmptyProgram = errors.New("empty program")
)

// FaultError reports that the worker host bound to a task failed outside the
// normal execution protocol: its evaluator panicked, or could not be
// initialized after bounded retries. The fault is isolated to the one task
// that was bound to the host; the pool replaces the host and carries on.
type FaultError struct {
	HostID string
	Cause  error
}

func (e *FaultError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("worker %s faulted: %v", e.HostID, e.Cause)
}

func (e *FaultError) Unwrap() error { return e.Cause }
