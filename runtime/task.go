package runtime

import (
	"context"
	goruntime "runtime"
	"time"
)

// taskResult is the settled value of a Task[T], delivered exactly once.
type taskResult[T any] struct {
	value T
	err   error
}

// Task is the handle to one scheduled coroutine-equivalent: a goroutine
// computing fn, fronted by a Frame tracking its place in the caller/callee
// chain. Task owns a Frame prior to (and across) scheduling.
//
// A *Task[T] must only be Awaited once — a Frame has exactly one caller at
// a time, matching real structured-concurrency usage where a child task is
// owned by a single parent. A second Await is not detected: the single
// result goes to one of the awaiters and any other Await blocks.
type Task[T any] struct {
	frame *Frame
	done  chan taskResult[T]
}

// Frame returns the Task's Frame, e.g. to pass to WithToken, OnCancel, or
// nested Go[T] calls that need a caller Frame.
func (t *Task[T]) Frame() *Frame { return t.frame }

// TaskFunc is the body run by Go[T]. ctx.Done() is closed (via the
// standard context.Context contract) when the Task's own Frame is
// cancelled, letting ordinary context-aware code participate without
// depending on this package directly.
type TaskFunc[T any] func(ctx *TaskContext) (T, error)

// TaskContext is passed to a running Task's body. It embeds a
// context.Context so existing context-aware APIs (database calls,
// net/http, etc.) compose directly; Frame exposes the structured-
// concurrency-specific bits (caller/callee, OnCancel, Policy).
type TaskContext struct {
	context.Context
	Frame *Frame
}

// frameContext adapts a *Frame to context.Context, so TaskFunc bodies can
// pass ctx straight into stdlib/ecosystem APIs that want one.
type frameContext struct {
	done chan struct{}
}

func newFrameContext(f *Frame) *frameContext {
	fc := &frameContext{done: make(chan struct{})}
	f.OnCancel(func() { close(fc.done) })
	return fc
}

func (c *frameContext) Deadline() (deadline time.Time, ok bool) { return time.Time{}, false }
func (c *frameContext) Done() <-chan struct{}                   { return c.done }
func (c *frameContext) Err() error {
	select {
	case <-c.done:
		return ErrCancelled
	default:
		return nil
	}
}
func (c *frameContext) Value(key any) any { return nil }

// Go spawns fn as a Task running on its own goroutine, with a fresh,
// Disposable Frame registered on loop. Frame creation and scheduling fold
// into one call here, since Go has no separate coroutine-creation step —
// the goroutine itself is the scheduled unit.
func Go[T any](loop *Loop, fn TaskFunc[T]) *Task[T] {
	return goAt(loop, callerLocation(2), fn)
}

func goAt[T any](loop *Loop, loc Location, fn TaskFunc[T]) *Task[T] {
	f := newFrame(loop, loc)
	f.setState(StateDisposable)
	t := &Task[T]{frame: f, done: make(chan taskResult[T], 1)}

	fc := newFrameContext(f)
	go func() {
		v, err := fn(&TaskContext{Context: fc, Frame: f})
		_ = loop.Schedule(nil, func() {
			f.setState(StateFinished)
			t.done <- taskResult[T]{value: v, err: err}
		})
	}()
	return t
}

// Await suspends caller until t settles, linking caller.callee = t.Frame()
// for the duration and unlinking on return.
//
// If t's Frame is cancelled and does not carry PolicyIntercept, Await still
// returns exactly what the Task produced — including ErrCancelled, if the
// Task itself observed ctx.Done() and returned it, which is the expected
// and idiomatic way for a TaskFunc to react to cancellation. Await performs
// no implicit conversion; propagating (or not) ErrCancelled is the calling
// code's job, and doing so unconditionally is what performs bottom-up
// chain destruction (see the package doc).
func (t *Task[T]) Await(caller *Frame) (T, error) {
	caller.setCallee(t.frame)
	defer caller.clearCallee()

	r := <-t.done
	return r.value, r.err
}

// callerLocation captures the call site skip frames above it, for Frame
// diagnostics. Best-effort: an unresolvable location is reported as empty.
func callerLocation(skip int) Location {
	pc, file, line, ok := goruntime.Caller(skip)
	if !ok {
		return Location{}
	}
	fn := goruntime.FuncForPC(pc)
	name := "?"
	if fn != nil {
		name = fn.Name()
	}
	return Location{File: file, Line: line, Func: name}
}
