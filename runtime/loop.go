package runtime

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// LoopState enumerates a Loop's lifecycle, from construction through final
// drain.
type LoopState int32

const (
	// StateAwake: constructed, Run not yet called.
	StateAwake LoopState = iota
	// StateRunning: Run is draining the ready queue / blocked waiting for
	// work.
	StateRunning
	// StateTerminating: Stop was requested, final drain in progress.
	StateTerminating
	// StateTerminated: Run has returned.
	StateTerminated
)

func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

type readyItem struct {
	frame *Frame
	fn    func()
}

type timerEntry struct {
	when time.Time
	seq   uint64 // tie-break, preserves FIFO among equal deadlines
	fn    func()
	live  *atomic.Bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Loop is a single-threaded cooperative event loop: it owns a FIFO ready
// queue of scheduled continuations, drains it on each idle tick, and hosts a
// timer heap for ScheduleTimer. Exactly one goroutine executes Run's
// drain loop at a time; everything the Loop owns (ready queue aside, which
// has its own mutex for thread-safe Schedule from any goroutine) is
// therefore touched single-threaded, with no locking needed on the hot
// path.
type Loop struct {
	cfg *loopConfig

	readyMu sync.Mutex
	ready   []readyItem
	wake    chan struct{}

	timersMu sync.Mutex
	timers   timerHeap
	timerSeq atomic.Uint64

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop constructs a Loop in StateAwake. Call Run to start draining it.
func NewLoop(opts ...Option) *Loop {
	cfg := defaultLoopConfig()
	for _, o := range opts {
		o(cfg)
	}
	l := &Loop{
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	l.state.Store(int32(StateAwake))
	return l
}

// State returns the Loop's current lifecycle state.
func (l *Loop) State() LoopState { return LoopState(l.state.Load()) }

// Schedule enqueues fn to run on the Loop goroutine during its next drain
// pass, preserving FIFO ordering within a cycle. Safe to call from any
// goroutine. frame may be nil for continuations not tied to a particular
// Frame (e.g. a Task's settle step or a due timer); when non-nil, scheduling a Finished
// frame is a programmer error and panics.
func (l *Loop) Schedule(frame *Frame, fn func()) error {
	if frame != nil && frame.Finished() {
		panicInvariant("double-schedule", ErrFrameFinished)
	}
	if LoopState(l.state.Load()) == StateTerminated {
		return ErrLoopTerminated
	}
	l.readyMu.Lock()
	l.ready = append(l.ready, readyItem{frame: frame, fn: fn})
	n := len(l.ready)
	l.readyMu.Unlock()

	if n >= l.cfg.readyQueueWarnLen && l.cfg.onOverload != nil {
		l.cfg.onOverload(ErrLoopOverloaded(n))
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// ErrLoopOverloaded is returned (via WithOnOverload) describing the ready
// queue length observed at the time of the warning.
type ErrLoopOverloaded int

func (e ErrLoopOverloaded) Error() string {
	return "runtime: ready queue overloaded"
}

// ScheduleTimer arranges for fn to run on the Loop goroutine after d
// elapses, backed by a container/heap timer heap. Returns a cancel
// function; calling it after the timer has already fired is a harmless
// no-op.
func (l *Loop) ScheduleTimer(d time.Duration, fn func()) (cancel func()) {
	live := &atomic.Bool{}
	live.Store(true)
	entry := &timerEntry{
		when: time.Now().Add(d),
		seq:  l.timerSeq.Add(1),
		fn:   fn,
		live: live,
	}
	l.timersMu.Lock()
	heap.Push(&l.timers, entry)
	l.timersMu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return func() { live.Store(false) }
}

func (l *Loop) nextTimerDelay() (time.Duration, bool) {
	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	for l.timers.Len() > 0 {
		top := l.timers[0]
		if !top.live.Load() {
			heap.Pop(&l.timers)
			continue
		}
		return time.Until(top.when), true
	}
	return 0, false
}

// drainTimers moves every timer whose deadline has passed onto the ready
// queue, in deadline order.
func (l *Loop) drainTimers() {
	now := time.Now()
	l.timersMu.Lock()
	var due []*timerEntry
	for l.timers.Len() > 0 && !l.timers[0].when.After(now) {
		e := heap.Pop(&l.timers).(*timerEntry)
		if e.live.Load() {
			due = append(due, e)
		}
	}
	l.timersMu.Unlock()
	for _, e := range due {
		fn := e.fn
		_ = l.Schedule(nil, fn)
	}
}

// Run drains the ready queue until Stop is called, then makes one final
// pass over due timers and ready items and returns; timers not yet due at
// that point never fire. Exactly one call to Run may be active on a given
// Loop at a time.
func (l *Loop) Run() error {
	if !l.state.CompareAndSwap(int32(StateAwake), int32(StateRunning)) {
		return ErrLoopAlreadyRunning
	}
	prev := currentLoop.Swap(l)
	l.cfg.logger.Info().Log("loop starting")
	defer func() {
		currentLoop.Store(prev)
		l.state.Store(int32(StateTerminated))
		close(l.doneCh)
		l.cfg.logger.Info().Log("loop terminated")
	}()

	for {
		l.drainTimers()

		// Snapshot-and-clear: everything enqueued before this point runs
		// this cycle; anything scheduled by a handler as it runs lands in
		// the now-empty slice and waits for the next cycle.
		l.readyMu.Lock()
		batch := l.ready
		l.ready = nil
		l.readyMu.Unlock()

		if len(batch) > 0 {
			for _, item := range batch {
				item.fn()
			}
			continue
		}

		select {
		case <-l.stopCh:
			l.drainTimers()
			l.readyMu.Lock()
			remaining := l.ready
			l.ready = nil
			l.readyMu.Unlock()
			for _, item := range remaining {
				item.fn()
			}
			return nil
		case <-l.wake:
			continue
		case <-l.timerWaitChan():
			continue
		}
	}
}

// timerWaitChan returns a channel that fires when the next timer is due,
// or a long-lived idle channel if no timer is pending — bounding how long
// Run can block before re-checking stopCh.
func (l *Loop) timerWaitChan() <-chan time.Time {
	if d, ok := l.nextTimerDelay(); ok {
		if d <= 0 {
			ch := make(chan time.Time, 1)
			ch <- time.Now()
			return ch
		}
		return time.After(d)
	}
	return time.After(idleTickInterval)
}

// Stop requests the Loop unwind: Run will perform one final drain of
// whatever is ready (including due timers) and then return.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		if LoopState(l.state.Load()) == StateRunning {
			l.state.Store(int32(StateTerminating))
		}
		close(l.stopCh)
	})
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }

var currentLoop atomic.Pointer[Loop]

// CurrentLoop returns the most recently started Loop still inside Run, a
// package-level convenience for library code that wants a default without
// threading a *Loop through every call. Go has no true goroutine-local
// storage, so a single package-level pointer — set on Run entry, restored
// on exit — stands in for the single-active-loop case; code juggling
// multiple concurrently-running Loops should thread *Loop explicitly
// instead of relying on this. Returns nil if no Loop is currently running.
func CurrentLoop() *Loop { return currentLoop.Load() }
