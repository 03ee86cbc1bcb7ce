// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package cancel implements the CancellationSource/CancellationToken/
// Registration model that sits above runtime.Frame's low-level cancel bits:
// a Source is a one-shot trigger (like a W3C AbortController), a Token is
// the read-only view passed down to callees (like an AbortSignal), and a
// Registration is the handle returned by Token.Register, used to detach a
// callback before it fires.
//
// WithToken bridges this model into the Frame chain: it marks a callee
// Frame PolicyIntercept and wires the Token so that triggering the Source
// cancels that Frame directly, without tearing down the ancestors that
// created the Source — the same shape as catching a cancellation instead of
// letting it propagate.
package cancel
