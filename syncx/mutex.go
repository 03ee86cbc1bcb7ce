package syncx

import (
	"errors"
	"sync"

	"github.com/joeycumines/go-asyncrpc/runtime"
)

// ErrMutexNotLocked is the Cause of the InvariantViolation panicked by
// Unlock on an already-unlocked Mutex.
var ErrMutexNotLocked = errors.New("syncx: mutex not locked")

// Mutex is an async-aware mutual exclusion lock: Lock suspends the calling
// Frame (rather than blocking an OS thread) until the lock is free, and
// waiters are granted the lock strictly in arrival order — a FIFO queue,
// not whatever order the Go scheduler happens to wake blocked goroutines
// in. The zero value is an unlocked Mutex ready for use.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []*runtime.WaitOp[struct{}]
}

// Lock suspends caller until the Mutex is acquired. Returns
// runtime.ErrCancelled, without acquiring the lock, if caller is cancelled
// first.
func (m *Mutex) Lock(caller *runtime.Frame) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	var w *runtime.WaitOp[struct{}]
	w = runtime.NewWaitOp[struct{}](runtime.SingleShot, func() {
		m.removeWaiter(w)
	})
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	_, err := w.Await(caller)
	if err != nil {
		return err
	}
	// Deliver already transferred ownership to us (see Unlock); acquiring
	// here would be redundant and could race a concurrent Unlock.
	return nil
}

// Unlock releases the Mutex. If waiters are queued, ownership transfers
// directly to the head of the queue (it is woken already holding the lock,
// matching Lock's contract above) rather than being reopened for
// contention; otherwise the Mutex becomes free. Unlocking an already-
// unlocked Mutex is a programmer error and panics, matching the stdlib
// sync.Mutex convention this mirrors.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if !m.locked {
		m.mu.Unlock()
		panic(&runtime.InvariantViolation{Invariant: "unlock-not-held", Cause: ErrMutexNotLocked})
	}
	if len(m.waiters) == 0 {
		m.locked = false
		m.mu.Unlock()
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	m.mu.Unlock()
	next.Deliver(struct{}{}, nil)
}

// TryLock acquires the Mutex without suspending if it is immediately free,
// reporting whether it succeeded.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

func (m *Mutex) removeWaiter(target *runtime.WaitOp[struct{}]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w == target {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}
