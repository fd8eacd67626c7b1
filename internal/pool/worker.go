package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// initAttempts bounds evaluator construction retries before the host is
	// declared permanently failed.
	initAttempts = 3
	// initBackoff is the delay before the first retry; it doubles per attempt.
	initBackoff = 10 * time.Millisecond
)

// abortSignal records a pending cancellation target. The coordinator always
// resolves wildcard aborts down to the specific task id bound to this host,
// so a signal left over from a finished run can never match a later one.
type abortSignal struct {
	set bool
	id  TaskID
}

// Host wraps one Evaluator inside a dedicated goroutine. It executes at most
// one task at a time, received over an ordered command channel, and reports
// outcomes on the coordinator's shared reply channel.
//
// The evaluator is constructed lazily on the first task, with bounded retry.
// A host that faults (initialization exhausted, evaluator panic, nil result)
// stops serving and is discarded by the coordinator; it is never reused.
type Host struct {
	id      uuid.UUID
	factory EvaluatorFactory
	cmds    chan execCmd
	replies chan<- hostMsg
	quit    chan struct{}
	logger  *log.Logger

	eval Evaluator

	// mu guards the interrupt plumbing and the observable lifecycle state.
	// Everything else is touched only from the host goroutine.
	mu        sync.Mutex
	state     HostState
	ab        abortSignal
	runID     TaskID
	runActive bool
	cancelRun context.CancelFunc
}

func newHost(factory EvaluatorFactory, replies chan<- hostMsg, logger *log.Logger) *Host {
	return &Host{
		id:      uuid.New(),
		factory: factory,
		cmds:    make(chan execCmd, 1),
		replies: replies,
		quit:    make(chan struct{}),
		logger:  logger,
		state:   HostUninitialized,
	}
}

// ID returns the host's stable identity.
func (h *Host) ID() uuid.UUID { return h.id }

// State returns the host's current lifecycle state.
func (h *Host) State() HostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// serve is the host goroutine's main loop. It exits when the coordinator
// closes quit (discard, reset, shutdown) or when the host faults.
func (h *Host) serve() {
	for {
		select {
		case <-h.quit:
			return
		case cmd := <-h.cmds:
			if !h.handleExecute(cmd) {
				return
			}
		}
	}
}

// handleExecute runs one task end to end: reset, restore (stack first, then
// definitions), execute, reply. The interrupt flag is consulted before the
// restore, before the evaluator call, and (through the run context) during
// it. Returns false when the host has faulted and must stop serving.
func (h *Host) handleExecute(cmd execCmd) (ok bool) {
	h.beginRun(cmd.id)
	defer func() {
		if r := recover(); r != nil {
			h.fault(cmd.id, fmt.Errorf("evaluator panic: %v", r))
			ok = false
		}
	}()

	if h.eval == nil {
		if err := h.advance(HostUninitialized, HostInitializing); err != nil {
			h.fault(cmd.id, err)
			return false
		}
		ev, err := h.initEvaluator()
		if err != nil {
			h.fault(cmd.id, fmt.Errorf("evaluator init: %w", err))
			return false
		}
		h.eval = ev
		if err := h.advance(HostInitializing, HostIdle); err != nil {
			h.fault(cmd.id, err)
			return false
		}
	}

	if err := h.advance(HostIdle, HostBusy); err != nil {
		h.fault(cmd.id, err)
		return false
	}
	res, aborted, err := h.run(cmd)
	// The abort signal must be consumed before the reply becomes visible to
	// the coordinator: once it sees the reply it may dispatch another task
	// here, and a leftover signal must not touch that run.
	h.endRun()
	if err != nil {
		h.fault(cmd.id, err)
		return false
	}
	if err := h.advance(HostBusy, HostIdle); err != nil {
		h.fault(cmd.id, err)
		return false
	}
	if aborted {
		h.send(hostMsg{host: h, kind: msgAborted, id: cmd.id})
	} else {
		h.send(hostMsg{host: h, kind: msgResult, id: cmd.id, result: res})
	}
	return true
}

// run performs the reset/restore/execute sequence. A non-nil error faults
// the host; aborted=true means the interrupt flag was observed and any
// evaluator state from this run must be treated as discardable.
func (h *Host) run(cmd execCmd) (res *ExecuteResult, aborted bool, err error) {
	if h.interrupted() {
		return nil, true, nil
	}
	h.eval.Reset()

	if h.interrupted() {
		return nil, true, nil
	}
	if rerr := h.eval.RestoreState(cmd.state.Stack, cmd.state.Definitions); rerr != nil {
		// Undecodable snapshot: a language-level outcome, not a host fault.
		// The evaluator is reset before its next task anyway.
		return &ExecuteResult{
			Status: StatusError,
			Output: fmt.Sprintf("restore state: %v", rerr),
			State:  cmd.state,
		}, false, nil
	}

	if h.interrupted() {
		return nil, true, nil
	}
	ctx := h.armRun()
	res, err = h.eval.Execute(ctx, cmd.program)
	h.disarmRun()
	if h.interrupted() {
		// The run may have finished anyway (the evaluator call is not
		// preemptible); report aborted regardless and drop its result.
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("evaluator execute: %w", err)
	}
	if res == nil {
		return nil, false, errors.New("evaluator returned nil result")
	}
	return res, false, nil
}

// initEvaluator constructs the evaluator with bounded retry and backoff.
func (h *Host) initEvaluator() (Evaluator, error) {
	backoff := initBackoff
	var lastErr error
	for attempt := 1; attempt <= initAttempts; attempt++ {
		ev, err := h.factory()
		if err == nil {
			if ev == nil {
				return nil, errors.New("factory returned nil evaluator")
			}
			return ev, nil
		}
		lastErr = err
		if h.logger != nil {
			h.logger.Printf("worker %s: evaluator init attempt %d/%d failed: %v", h.id, attempt, initAttempts, err)
		}
		if attempt < initAttempts {
			select {
			case <-time.After(backoff):
			case <-h.quit:
				return nil, lastErr
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", initAttempts, lastErr)
}

// signalAbort flags the host's current (or about-to-start) run for
// cancellation. Called from the coordinator goroutine, always with the id
// of the task it has bound to this host; a signal that outlives its run is
// ignored by the checkpoint logic because it can no longer match runID.
func (h *Host) signalAbort(id TaskID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ab = abortSignal{set: true, id: id}
	if h.runActive && h.cancelRun != nil && id == h.runID {
		h.cancelRun()
	}
}

func (h *Host) beginRun(id TaskID) {
	h.mu.Lock()
	h.runID = id
	h.runActive = true
	h.mu.Unlock()
}

// endRun consumes any abort signal so it cannot leak into the next task.
func (h *Host) endRun() {
	h.mu.Lock()
	h.runActive = false
	h.ab = abortSignal{}
	h.cancelRun = nil
	h.mu.Unlock()
}

// interrupted reports whether a pending abort targets the current run.
func (h *Host) interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ab.set && h.ab.id == h.runID
}

// armRun installs a cancellable context for the evaluator call, so an abort
// arriving mid-run can interrupt a cooperative evaluator.
func (h *Host) armRun() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.cancelRun = cancel
	fire := h.ab.set && h.ab.id == h.runID
	h.mu.Unlock()
	if fire {
		cancel()
	}
	return ctx
}

func (h *Host) disarmRun() {
	h.mu.Lock()
	if h.cancelRun != nil {
		h.cancelRun()
		h.cancelRun = nil
	}
	h.mu.Unlock()
}

// advance performs a validated lifecycle transition.
func (h *Host) advance(from, to HostState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return transitionHost(&h.state, from, to)
}

// fault marks the host terminally failed and reports it upward.
func (h *Host) fault(id TaskID, err error) {
	h.mu.Lock()
	if h.state != HostFaulted {
		h.state = HostFaulted
	}
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Printf("worker %s: fault: %v", h.id, err)
	}
	h.send(hostMsg{host: h, kind: msgFault, id: id, err: err})
}

// send delivers a reply unless the coordinator has already discarded this
// host, in which case the message would never be read.
func (h *Host) send(msg hostMsg) {
	select {
	case h.replies <- msg:
	case <-h.quit:
	}
}

// discard terminates the host. Only ever called once per host, on the
// coordinator goroutine. Cancelling the in-flight run context lets a
// cooperative evaluator unblock promptly; its reply is then dropped because
// quit is closed.
func (h *Host) discard() {
	close(h.quit)
	h.mu.Lock()
	if h.cancelRun != nil {
		h.cancelRun()
		h.cancelRun = nil
	}
	h.mu.Unlock()
}
