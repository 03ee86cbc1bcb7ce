package runtime

import (
	"errors"
	"fmt"
)

// Standard sentinel errors, matched with errors.Is.
var (
	// ErrCancelled is returned by WaitOp.Await (and so by Event.Wait and
	// Mutex.Lock) when the awaiting Frame is cancelled, and by a Task's
	// context Err once its Frame is cancelled; Task.Await passes it on when
	// the Task's body returns it. Propagating it unchanged (rather than
	// swallowing it) is what performs bottom-up chain destruction — see the
	// package doc.
	ErrCancelled = errors.New("runtime: cancelled")

	// ErrLoopAlreadyRunning is returned by Run on a Loop that is already
	// running.
	ErrLoopAlreadyRunning = errors.New("runtime: loop is already running")

	// ErrLoopTerminated is returned when scheduling onto a Loop that has
	// finished Run (Stop was called and the ready queue drained).
	ErrLoopTerminated = errors.New("runtime: loop has been terminated")

	// ErrLoopNotRunning names an operation on a Loop whose Run has not been
	// called. No Loop method returns it: Schedule and ScheduleTimer accept
	// work before Run, and it runs once Run starts draining.
	ErrLoopNotRunning = errors.New("runtime: loop is not running")

	// ErrFrameFinished is the underlying cause of the InvariantViolation
	// raised when scheduling a Frame that has already finished.
	ErrFrameFinished = errors.New("runtime: frame already finished")

	// ErrFrameRunning names a re-schedule of a Frame that is already
	// running. Loop.Schedule does not detect that case (it rejects only a
	// Finished Frame), so nothing in this package raises it.
	ErrFrameRunning = errors.New("runtime: frame already running")
)

// InvariantViolation represents a programmer error. It is raised for
// scheduling a Finished Frame, a Frame awaiting a second callee while one
// is still linked, and unlocking a Mutex that isn't held; a re-schedule of
// a running Frame and a second Await of the same Task are not detected.
// These are not recoverable operational errors — the caller
// broke a documented invariant — so the convention in this module is to
// panic with one, rather than return it. A test harness that recovers the
// panic can still assert on Invariant and Cause via errors.As.
type InvariantViolation struct {
	// Invariant names the violated rule, e.g. "double-schedule".
	Invariant string
	// Cause is the sentinel error describing the specific condition.
	Cause error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("runtime: invariant violated (%s): %v", e.Invariant, e.Cause)
}

func (e *InvariantViolation) Unwrap() error { return e.Cause }

func panicInvariant(invariant string, cause error) {
	panic(&InvariantViolation{Invariant: invariant, Cause: cause})
}
