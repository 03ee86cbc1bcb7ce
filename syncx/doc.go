// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package syncx implements the async-aware synchronization primitives built
// on runtime.WaitOp: a manual-reset Event (fan-out to every current waiter
// on Set) and a FIFO Mutex (waiters are granted the lock in arrival order,
// never the goroutine scheduler's own order).
package syncx
