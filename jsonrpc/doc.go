// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package jsonrpc implements a bidirectional JSON-RPC 2.0 peer on top of
// package runtime: a read loop decodes incoming messages and dispatches
// requests/notifications/responses, a write pump serializes outgoing
// messages one at a time (no batching), and Call suspends the calling
// Frame until a matching response arrives or it is cancelled, in which case
// a "$/cancelRequest" notification is sent so the remote side can act on
// it. Structurally this is the same read-loop/dispatch-table shape as
// golang.org/x/tools' internal/jsonrpc2.Conn, adapted to suspend Frames
// instead of blocking on a channel select against a stdlib context.
package jsonrpc
