package pool

import "context"

// Definition is one user-defined word: its name, its body in source form,
// and an optional human-readable description.
type Definition struct {
	Name string `json:"name" yaml:"name"`
	Body string `json:"body" yaml:"body"`
	Doc  string `json:"doc,omitempty" yaml:"doc,omitempty"`
}

// Snapshot is the authoritative interpreter state carried across the worker
// boundary: the data stack in serialized literal form plus the user-defined
// words, in definition order.
//
// Snapshots are values. The coordinator clones one at submission time and
// hosts return a fresh one at completion time, so no state is ever shared by
// reference between the caller and a worker goroutine.
type Snapshot struct {
	Stack       []string     `json:"stack" yaml:"stack"`
	Definitions []Definition `json:"definitions" yaml:"definitions"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := Snapshot{}
	if s.Stack != nil {
		cp.Stack = make([]string, len(s.Stack))
		copy(cp.Stack, s.Stack)
	}
	if s.Definitions != nil {
		cp.Definitions = make([]Definition, len(s.Definitions))
		copy(cp.Definitions, s.Definitions)
	}
	return cp
}

// Status classifies the outcome of an evaluator run.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// ExecuteResult is what a completed run hands back to the caller: the
// outcome class, the human-readable output (or error message), and the
// evaluator's resulting state for the caller to merge into its own
// authoritative copy.
//
// StatusError means the evaluator itself reported a failure executing the
// program (unknown word, stack underflow, ...). It is not a worker fault:
// the host that produced it remains usable, and State reflects whatever the
// evaluator held when it stopped. Callers that want transactional semantics
// should merge State only on StatusOK.
type ExecuteResult struct {
	Status Status
	Output string
	State  Snapshot
}

// Evaluator is one language engine instance, owned exclusively by a single
// worker host. The host never calls these methods concurrently.
//
// Contract:
//   - Reset discards all evaluator state, returning it to a clean baseline.
//   - RestoreState loads a snapshot into a freshly reset evaluator: stack
//     values first, then definitions, in that order. An error means the
//     snapshot could not be decoded; the evaluator itself is still usable
//     after the next Reset.
//   - Execute runs a program to completion. Language-level failures are
//     reported in the result's Status, never as a Go error; a non-nil error
//     is an infrastructure failure and faults the host. Cancelling ctx is
//     the cooperative interruption hook: Execute should return early, but
//     is not required to (the run is then abandoned on return).
type Evaluator interface {
	Reset()
	RestoreState(stack []string, defs []Definition) error
	Execute(ctx context.Context, program string) (*ExecuteResult, error)
}

// EvaluatorFactory constructs a fresh evaluator for a worker host. It is
// called from the host's own goroutine, lazily, on the first task the host
// receives.
type EvaluatorFactory func() (Evaluator, error)
