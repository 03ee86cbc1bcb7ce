package runtime

import "sync"

// DeliveryMode selects how a WaitOp's producer feeds values to its waiter
// SingleShot completes the wait the first time Deliver is
// called and ignores any further calls; LatestValue keeps overwriting a
// buffered value so a waiter that hasn't yet awaited sees only the most
// recent one (matching, e.g., a manual-reset event re-armed between waits).
type DeliveryMode int

const (
	SingleShot DeliveryMode = iota
	LatestValue
)

// WaitOp binds one Frame to a single external completion source — a timer,
// a readable file descriptor, a sync primitive wakeup — for the duration of
// one Await call. It is the generic adapter underlying every suspension
// point in this module other than Task.Await (syncx's Event.Wait and
// Mutex.Lock, and jsonrpc's wait for a response).
//
// The zero value is not usable; construct with NewWaitOp.
type WaitOp[T any] struct {
	mode DeliveryMode

	mu        sync.Mutex
	delivered bool
	value     T
	err       error
	ready     chan struct{}

	cancelAction func()
}

// NewWaitOp constructs a WaitOp. cancelAction, if non-nil, is invoked at
// most once if the waiting Frame is cancelled before Deliver is called —
// typically this detaches whatever external registration (timer, fd
// callback, primitive waiter list entry) would otherwise call Deliver
// later, so a cancelled wait doesn't leak a dangling callback. cancelAction
// must be reentrancy-safe per Frame.OnCancel's contract: it may run
// synchronously, inline, from whatever goroutine calls Cancel.
func NewWaitOp[T any](mode DeliveryMode, cancelAction func()) *WaitOp[T] {
	return &WaitOp[T]{mode: mode, cancelAction: cancelAction, ready: make(chan struct{})}
}

// Deliver completes the wait with (value, err). Under SingleShot, only the
// first call has any effect; later calls are silently ignored. Under
// LatestValue, each call before the waiter observes delivery overwrites the
// pending value, and only the first call closes ready (subsequent calls
// update value/err in place, which Await (not yet having read them) will
// see). Safe to call from any goroutine, including the same goroutine that
// registered the completion source, and safe to call zero times if the wait
// is abandoned via cancellation instead.
func (w *WaitOp[T]) Deliver(value T, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.delivered && w.mode == SingleShot {
		return
	}
	w.value, w.err = value, err
	if !w.delivered {
		w.delivered = true
		close(w.ready)
	}
}

// Await blocks caller until Deliver is called or caller's Frame is
// cancelled, in which case it returns ErrCancelled whatever caller's
// policy bits are. Registers caller as waiting on this WaitOp for the
// duration (no callee Frame is synthesized, since WaitOp completions don't
// originate from another Task), and always unregisters the cancel hook on
// return, whichever way the wait settled.
func (w *WaitOp[T]) Await(caller *Frame) (T, error) {
	unregister := caller.OnCancel(func() {
		if w.cancelAction != nil {
			w.cancelAction()
		}
		var zero T
		w.Deliver(zero, ErrCancelled)
	})
	defer unregister()

	<-w.ready
	w.mu.Lock()
	v, err := w.value, w.err
	w.mu.Unlock()
	return v, err
}
