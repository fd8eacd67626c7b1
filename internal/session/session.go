// Package session owns the authoritative interpreter state on the caller's
// side of the pool: the canonical {stack, definitions} pair that programs
// read from and write back to.
//
// The coordinator deliberately takes no position on two tasks mutating
// shared definitions concurrently on different hosts. The session resolves
// that: state-mutating evaluations are serialized through Eval, which holds
// the session lock across submit+wait+merge, so every program sees the
// effects of the previous one. Independent computations that must not touch
// shared state can run concurrently through EvalDetached, whose results are
// never merged back.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"stackpool/internal/pool"
)

// Session is the application-layer owner of authoritative state. All
// methods are safe for concurrent use.
type Session struct {
	coord   *pool.Coordinator
	timeout time.Duration

	mu    sync.Mutex
	state pool.Snapshot
}

// New wraps a coordinator. timeout bounds each Eval; zero means no bound.
// The bound is enforced caller-side: an external timer fires an abort, the
// core itself has no automatic timeout.
func New(coord *pool.Coordinator, timeout time.Duration) *Session {
	return &Session{coord: coord, timeout: timeout}
}

// Eval runs a program against the authoritative state and merges the
// resulting state back in, but only on StatusOK: an errored or aborted
// run's state may be partial and is discarded.
//
// Eval holds the session lock for the whole round trip, so evaluations
// through it are strictly serialized.
func (s *Session) Eval(ctx context.Context, program string) (*pool.ExecuteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.coord.Submit(program, s.state)
	if s.timeout > 0 {
		timer := time.AfterFunc(s.timeout, func() { s.coord.Abort(h.ID()) })
		defer timer.Stop()
	}
	res, err := h.Wait(ctx)
	if err != nil {
		// If the caller gave up waiting, cancel the task as well so the
		// host is freed instead of finishing work nobody will read.
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			s.coord.Abort(h.ID())
		}
		return nil, err
	}
	if res.Status == pool.StatusOK {
		s.state = res.State.Clone()
	}
	return res, nil
}

// EvalDetached runs a program against a copy of the current state,
// concurrently with other work. The result is delivered on the handle and
// never merged into the session; callers treat its state as a throwaway.
func (s *Session) EvalDetached(program string) *pool.Handle {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	return s.coord.Submit(program, state)
}

// Snapshot returns a copy of the authoritative state.
func (s *Session) Snapshot() pool.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Reset clears the authoritative state and rebuilds the pool, so nothing a
// pre-reset worker held can leak into later evaluations.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = pool.Snapshot{}
	return s.coord.ResetPool()
}
