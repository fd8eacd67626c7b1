package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"stackpool/internal/forth"
	"stackpool/internal/pool"
)

func newForthSession(t *testing.T, timeout time.Duration) *Session {
	t.Helper()
	c, err := pool.New(pool.Config{Workers: 2, Factory: forth.Factory})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(c.Close)
	return New(c, timeout)
}

func TestEval_StatePersistsAcrossEvaluations(t *testing.T) {
	s := newForthSession(t, 0)
	ctx := context.Background()

	if _, err := s.Eval(ctx, "1 2 +"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Eval(ctx, ": double 2 * ;"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := s.Eval(ctx, "double")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.State.Stack, []string{"6"}) {
		t.Fatalf("got stack %v", res.State.Stack)
	}

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.Stack, []string{"6"}) {
		t.Fatalf("authoritative stack %v", snap.Stack)
	}
	if len(snap.Definitions) != 1 || snap.Definitions[0].Name != "double" {
		t.Fatalf("authoritative definitions %+v", snap.Definitions)
	}
}

func TestEval_ErrorDoesNotMergeState(t *testing.T) {
	s := newForthSession(t, 0)
	ctx := context.Background()

	if _, err := s.Eval(ctx, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := s.Eval(ctx, "2 3 bogus")
	if err != nil {
		t.Fatalf("language error must not reject: %v", err)
	}
	if res.Status != pool.StatusError {
		t.Fatalf("expected error status, got %+v", res)
	}

	// The failed run's partial stack was discarded.
	if got := s.Snapshot().Stack; !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("authoritative state polluted by failed run: %v", got)
	}
}

func TestEvalDetached_NeverMerges(t *testing.T) {
	s := newForthSession(t, 0)
	ctx := context.Background()

	if _, err := s.Eval(ctx, "10"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := s.EvalDetached("dup *")
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.State.Stack, []string{"100"}) {
		t.Fatalf("detached result %v", res.State.Stack)
	}
	if got := s.Snapshot().Stack; !reflect.DeepEqual(got, []string{"10"}) {
		t.Fatalf("detached run leaked into authoritative state: %v", got)
	}
}

func TestEvalDetached_RunsConcurrently(t *testing.T) {
	s := newForthSession(t, 0)
	ctx := context.Background()

	var handles []*pool.Handle
	for i := 0; i < 4; i++ {
		handles = append(handles, s.EvalDetached("2 3 +"))
	}
	for _, h := range handles {
		res, err := h.Wait(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(res.State.Stack, []string{"5"}) {
			t.Fatalf("got stack %v", res.State.Stack)
		}
	}
}

func TestReset_ClearsStateAndPool(t *testing.T) {
	s := newForthSession(t, 0)
	ctx := context.Background()

	if _, err := s.Eval(ctx, ": w 1 ; 2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Stack) != 0 || len(snap.Definitions) != 0 {
		t.Fatalf("reset left state behind: %+v", snap)
	}
	res, err := s.Eval(ctx, "w")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != pool.StatusError {
		t.Fatalf("pre-reset definition visible after reset: %+v", res)
	}
}

// stallEval blocks until its context is cancelled, standing in for a
// program that runs longer than the session's eval timeout.
type stallEval struct {
	started chan struct{}
	once    sync.Once
}

func (e *stallEval) Reset() {}

func (e *stallEval) RestoreState(stack []string, defs []pool.Definition) error { return nil }

func (e *stallEval) Execute(ctx context.Context, program string) (*pool.ExecuteResult, error) {
	e.once.Do(func() { close(e.started) })
	<-ctx.Done()
	return &pool.ExecuteResult{Status: pool.StatusOK}, nil
}

func TestEval_TimeoutAbortsRun(t *testing.T) {
	ev := &stallEval{started: make(chan struct{})}
	c, err := pool.New(pool.Config{Workers: 1, Factory: func() (pool.Evaluator, error) { return ev, nil }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
	s := New(c, 30*time.Millisecond)

	_, err = s.Eval(context.Background(), "stall")
	if !errors.Is(err, pool.ErrAborted) {
		t.Fatalf("expected ErrAborted from timeout, got %v", err)
	}
}

func TestEval_CallerContextCancellation(t *testing.T) {
	ev := &stallEval{started: make(chan struct{})}
	c, err := pool.New(pool.Config{Workers: 1, Factory: func() (pool.Evaluator, error) { return ev, nil }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
	s := New(c, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ev.started
		cancel()
	}()
	if _, err := s.Eval(ctx, "stall"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
