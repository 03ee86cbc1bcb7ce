// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package runtime implements a single-threaded, cooperative, event-loop
// scheduler with structured-concurrency cancellation: Frame tracks the
// caller/callee link of one running Task, Loop drains a FIFO ready queue of
// scheduled continuations, and WaitOp binds a Frame to a single external
// completion (a sync primitive wakeup, a JSON-RPC response).
//
// Go has no stackful coroutines, so a Frame here is not a suspended machine
// stack: it's a side-table struct (caller/callee pointers, state and policy
// bits) attached to a goroutine that runs a Task's body. Suspension happens
// at well-defined points — awaiting another Task or a wait-op — where the
// goroutine blocks on a channel: a Task's result is delivered from the Loop
// goroutine, while a WaitOp completes from whichever goroutine calls
// Deliver or cancels the waiting Frame. Cancellation is observed only at those
// suspension points: a cancelled goroutine keeps running until its next
// await.
//
// Chain destruction (a child that dies without producing a value tears down
// every ancestor that did not opt into observing the cancellation) falls out
// of ordinary Go error propagation: a cancelled Task's body sees
// ErrCancelled from its waits (or from ctx.Err()) and returns it, Task.Await
// passes it on, and the idiomatic caller pattern
//
//	v, err := child.Await(self)
//	if err != nil {
//	    return zero, err
//	}
//
// propagates that sentinel up through every enclosing Await, which is
// implements bottom-up chain destruction for free, by Go's normal control
// flow, instead of an explicit pointer-chasing destructor walk.
package runtime
