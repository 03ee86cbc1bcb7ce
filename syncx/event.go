package syncx

import (
	"sync"

	"github.com/joeycumines/go-asyncrpc/runtime"
)

// Event is a manual-reset event: Set wakes every Frame currently blocked in
// Wait (fan-out to the full subscriber list), and any Frame that calls Wait
// after Set remains set returns immediately. Clear rearms it. The zero
// value is a valid, initially-unset Event.
type Event struct {
	mu        sync.Mutex
	set       bool
	waiters   []*runtime.WaitOp[struct{}]
}

// Set marks the event signalled and wakes every current waiter. A
// subsequent Wait returns immediately until Clear is called.
func (e *Event) Set() {
	e.mu.Lock()
	e.set = true
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, w := range waiters {
		w.Deliver(struct{}{}, nil)
	}
}

// Clear rearms the event. Waiters already unblocked by a prior Set are
// unaffected.
func (e *Event) Clear() {
	e.mu.Lock()
	e.set = false
	e.mu.Unlock()
}

// IsSet reports whether the event is currently signalled.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Wait suspends caller until the event is set, or returns immediately if it
// already is. Returns runtime.ErrCancelled if caller is cancelled first.
func (e *Event) Wait(caller *runtime.Frame) error {
	e.mu.Lock()
	if e.set {
		e.mu.Unlock()
		return nil
	}
	var w *runtime.WaitOp[struct{}]
	w = runtime.NewWaitOp[struct{}](runtime.SingleShot, func() {
		e.removeWaiter(w)
	})
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()

	_, err := w.Await(caller)
	return err
}

func (e *Event) removeWaiter(target *runtime.WaitOp[struct{}]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, w := range e.waiters {
		if w == target {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}
