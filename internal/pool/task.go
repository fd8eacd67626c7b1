package pool

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// TaskID is the opaque unique identifier of one submission. IDs are ULIDs,
// so they sort by submission time, which makes queue ordering observable in
// logs and tests.
type TaskID = ulid.ULID

// Handle is the caller's side of one submitted task. It settles exactly
// once, with exactly one of: a result (possibly StatusError), ErrAborted,
// or a *FaultError.
type Handle struct {
	id   TaskID
	done chan struct{}
	res  *ExecuteResult
	err  error
}

func newHandle(id TaskID) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the task's identifier, usable as an Abort target.
func (h *Handle) ID() TaskID { return h.id }

// Done is closed once the task has settled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task settles or ctx is cancelled. A cancelled ctx
// abandons the wait only; it does not abort the task itself.
func (h *Handle) Wait(ctx context.Context) (*ExecuteResult, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// task is the coordinator-internal unit of work. Fields are only touched on
// the coordinator goroutine; the handle is the one piece the caller sees.
type task struct {
	id      TaskID
	program string
	state   Snapshot
	handle  *Handle
	settled bool
}

func newTask(program string, state Snapshot) *task {
	id := ulid.Make()
	return &task{
		id:      id,
		program: program,
		state:   state.Clone(),
		handle:  newHandle(id),
	}
}

// settle fulfills the task's handle. The settled guard makes double
// fulfillment impossible even if a stale host message arrives after the
// task was already rejected.
func (t *task) settle(res *ExecuteResult, err error) {
	if t.settled {
		return
	}
	t.settled = true
	t.handle.res = res
	t.handle.err = err
	close(t.handle.done)
}
