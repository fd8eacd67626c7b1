// Package pool implements the parallel execution coordinator: a fixed-size
// pool of worker goroutines, each owning one isolated evaluator instance,
// fed from a FIFO queue of execution tasks.
//
// It is intentionally split into:
//   - Immutable task submissions (Task): program text + a state snapshot
//     copied by value at submission time
//   - A single-goroutine Coordinator owning all queue/pool bookkeeping
//   - Host: one worker goroutine wrapping one Evaluator behind an ordered
//     command channel
//
// Concurrency model:
//   - The Coordinator's taskQueue, activeTasks map and per-host busy flags
//     are mutated only on the coordinator goroutine. External callers talk
//     to it over channels; hosts report back over a shared reply channel.
//   - The only data crossing the host boundary is the state snapshot, and
//     it is always deep-copied, never shared by reference.
//   - Execute commands travel the host's ordered command channel. Abort is
//     delivered out of band (an atomic interrupt flag plus cancellation of
//     the in-flight run context), because a busy host does not poll its
//     command channel mid-run.
//
// Failure model:
//   - A language-level failure is a normal ExecuteResult with StatusError;
//     the host stays in the pool.
//   - A panic inside the evaluator, or an evaluator that cannot be
//     constructed after bounded retries, faults the host: its bound task is
//     rejected with a FaultError, the host is discarded and a fresh one
//     takes its place. No other task is affected.
//   - Every task settles exactly once: result, language error, FaultError,
//     or ErrAborted.
package pool
