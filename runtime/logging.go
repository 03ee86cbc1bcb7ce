package runtime

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured-logging façade this module logs through. It is
// satisfied directly by *logiface.Logger[*stumpy.Event] (see NewLogger and
// WithLogger), matching logiface-stumpy's documented usage
// (stumpy.L.New(...)). Keeping this as a narrow interface, rather than
// requiring the concrete logiface type everywhere, lets an embedder swap in
// any other logiface Event backend (zerolog, logrus, slog adapters all
// exist in the wider ecosystem) without this package caring.
type Logger interface {
	Info() *logiface.Builder[*stumpy.Event]
	Debug() *logiface.Builder[*stumpy.Event]
	Warning() *logiface.Builder[*stumpy.Event]
	Err() *logiface.Builder[*stumpy.Event]
}

// NewLogger builds the default structured logger: stumpy's JSON event
// backend over the given writer. Passing a nil writer disables output
// (stumpy.L.WithWriter(nil) behavior); noopLogger instead disables logging
// by level.
func NewLogger(opts ...stumpy.Option) *logiface.Logger[*stumpy.Event] {
	return stumpy.L.New(opts...)
}

// noopLogger is the zero-overhead default when no Logger option is
// supplied: logiface.Logger's zero value already refuses to allocate an
// Event (Level() returns LevelDisabled on the zero Event), so building one
// with WithLevel(logiface.LevelDisabled) gives a real, safe-to-call Logger
// that does no work.
func noopLogger() Logger {
	return stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled))
}

// NoopLogger returns a Logger that discards everything, for callers outside
// this package (e.g. jsonrpc.defaultPeerConfig) that want the same
// zero-overhead default Loop itself falls back to.
func NoopLogger() Logger {
	return noopLogger()
}
