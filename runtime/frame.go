package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// StateBits are the 3 tag bits a Frame's callee link would otherwise pack
// into a stolen pointer bit. Go has no spare pointer bits to steal, so these
// live as an ordinary field instead — see the package doc.
type StateBits uint8

const (
	// StateCancelled marks a Frame that has been walked by Cancel and has
	// not yet observed it (the next suspension point will see it).
	StateCancelled StateBits = 1 << iota
	// StateDisposable marks a Frame that owns the goroutine computing its
	// Task — it was created by Go[T], not by a stack-allocated awaiter.
	StateDisposable
	// StateFinished marks a Frame whose Task has settled. A Finished Frame
	// is never resumed again.
	StateFinished
)

// PolicyBits are the 3 tag bits a Frame's caller link would otherwise pack
// into a stolen pointer bit.
type PolicyBits uint8

const (
	// PolicyExplicitCancel marks a Frame's cancel-chain boundary: Cancel
	// walking the callee chain stops at (but includes) a Frame carrying
	// this bit — that subtree owns its own cancellation semantics.
	PolicyExplicitCancel PolicyBits = 1 << iota
	// PolicyIntercept marks a Frame that observes cancellation
	// cooperatively; cancel.WithToken sets it. The bit is only recorded and
	// reported by Policy: Cancel, Task.Await and WaitOp.Await behave the
	// same whether or not it is set.
	PolicyIntercept
)

// Location is the schedule-site diagnostic attached to every Frame, filled
// in automatically at Go[T] call sites.
type Location struct {
	File string
	Line int
	Func string
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Func)
}

// Frame is the side-table node tracking one Task's place in the
// caller/callee chain. It is created by Go[T], which marks it Disposable;
// Await creates no Frame of its own, it links the caller's existing Frame
// to the awaited Task's.
//
// Invariant: if f.callee == c then c.caller == f. The only
// party that mutates a Frame's caller/callee link is whichever goroutine is
// currently resuming it — enforced here by funneling every link mutation
// through the owning Frame's mutex, which in the steady state is only ever
// contended by the Loop goroutine and the single goroutine computing that
// Frame's Task.
type Frame struct {
	mu sync.Mutex

	loop *Loop
	loc  Location

	caller *Frame
	callee *Frame

	state  atomic.Uint32 // StateBits, atomic so Cancelled/Finished are checked lock-free
	policy atomic.Uint32 // PolicyBits

	cancelHooks []func()
	hooksFired  bool
}

func newFrame(loop *Loop, loc Location) *Frame {
	return &Frame{loop: loop, loc: loc}
}

// Cancelled reports whether StateCancelled has been set. Checking this is
// the only form of "preemption": nothing forces a running goroutine to
// stop, it's expected to check Cancelled (or select on a derived context)
// at its own suspension points.
func (f *Frame) Cancelled() bool {
	return StateBits(f.state.Load())&StateCancelled != 0
}

// Finished reports whether the Frame's Task has settled.
func (f *Frame) Finished() bool {
	return StateBits(f.state.Load())&StateFinished != 0
}

func (f *Frame) hasState(bit StateBits) bool {
	return StateBits(f.state.Load())&bit != 0
}

func (f *Frame) setState(bit StateBits) {
	for {
		old := f.state.Load()
		nu := old | uint32(bit)
		if old == nu || f.state.CompareAndSwap(old, nu) {
			return
		}
	}
}

// Policy returns the currently set PolicyBits.
func (f *Frame) Policy() PolicyBits {
	return PolicyBits(f.policy.Load())
}

// SetPolicy ORs the given bits into the Frame's policy. WithToken uses this
// to mark a wrapped child PolicyIntercept before awaiting it.
func (f *Frame) SetPolicy(bit PolicyBits) {
	for {
		old := f.policy.Load()
		nu := old | uint32(bit)
		if old == nu || f.policy.CompareAndSwap(old, nu) {
			return
		}
	}
}

func (f *Frame) hasPolicy(bit PolicyBits) bool {
	return PolicyBits(f.policy.Load())&bit != 0
}

// Location returns the Frame's schedule-site diagnostic.
func (f *Frame) Location() Location { return f.loc }

// Loop returns the Loop this Frame was scheduled onto.
func (f *Frame) Loop() *Loop { return f.loop }

// setCallee links f -> c (f is now awaiting c), enforcing the bidirectional
// invariant. Panics (programmer error) if f already has a live callee —
// that would mean the same Frame is awaiting two children concurrently,
// which never happens in this model.
func (f *Frame) setCallee(c *Frame) {
	f.mu.Lock()
	if f.callee != nil {
		f.mu.Unlock()
		panicInvariant("concurrent-await", fmt.Errorf("frame %s already awaiting a callee", f.loc))
	}
	f.callee = c
	f.mu.Unlock()

	c.mu.Lock()
	c.caller = f
	c.mu.Unlock()
}

// clearCallee unlinks f's callee once the await completes (normally or via
// cancellation).
func (f *Frame) clearCallee() {
	f.mu.Lock()
	c := f.callee
	f.callee = nil
	f.mu.Unlock()
	if c != nil {
		c.mu.Lock()
		if c.caller == f {
			c.caller = nil
		}
		c.mu.Unlock()
	}
}

// Callee returns the Frame currently being awaited, or nil.
func (f *Frame) Callee() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callee
}

// Caller returns the Frame currently awaiting this one, or nil.
func (f *Frame) Caller() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caller
}

// OnCancel registers hook to run the moment this Frame is cancelled (or
// immediately, inline, if it's already cancelled). It returns an
// unregister function that removes the hook if it hasn't fired yet — used
// by WaitOp and the sync primitives to detach their cancel action once a
// wait settles normally, and required to be reentrancy-safe: calling
// unregister from inside a hook, or cancelling from inside a hook, must not
// deadlock or corrupt the hook list.
func (f *Frame) OnCancel(hook func()) (unregister func()) {
	f.mu.Lock()
	if f.hasState(StateCancelled) {
		f.mu.Unlock()
		hook()
		return func() {}
	}
	if f.hooksFired {
		// Cancel() already swapped the slice out from under us in another
		// goroutine between the Load check above and here; fire inline.
		f.mu.Unlock()
		hook()
		return func() {}
	}
	idx := len(f.cancelHooks)
	f.cancelHooks = append(f.cancelHooks, hook)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		if idx < len(f.cancelHooks) {
			f.cancelHooks[idx] = nil
		}
		f.mu.Unlock()
	}
}

// Cancel marks this Frame and walks its callee chain, stopping at (but
// including) any Frame carrying PolicyExplicitCancel — that subtree owns
// its own cancellation semantics and must not be torn down by an ancestor's
// Cancel. Safe to call from any goroutine, and safe
// to call from within a registered cancel hook (the hook list is swapped
// out before it's invoked, so re-entrant Cancel calls never iterate the
// same slice being drained).
func (f *Frame) Cancel() {
	cur := f
	for cur != nil {
		cur.cancelOne()
		if cur.hasPolicy(PolicyExplicitCancel) {
			break
		}
		cur = cur.Callee()
	}
}

func (f *Frame) cancelOne() {
	f.mu.Lock()
	already := f.hasState(StateCancelled)
	f.setState(StateCancelled)
	var hooks []func()
	if !already && !f.hooksFired {
		hooks = f.cancelHooks
		f.cancelHooks = nil
		f.hooksFired = true
	}
	f.mu.Unlock()
	for _, h := range hooks {
		if h != nil {
			h()
		}
	}
}
