package jsonrpc

import (
	"github.com/joeycumines/go-asyncrpc/runtime"
)

// PeerOption configures a Peer at construction, mirroring runtime.Option's
// functional-options convention.
type PeerOption func(*peerConfig)

type peerConfig struct {
	logger           runtime.Logger
	idGenerator      func() ID
	strictDuplicates bool
}

func defaultPeerConfig() *peerConfig {
	return &peerConfig{
		logger: runtime.NoopLogger(),
	}
}

// WithLogger attaches a structured logger (see runtime.NewLogger). Without
// this option the Peer logs nothing.
func WithLogger(l runtime.Logger) PeerOption {
	return func(c *peerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator overrides how outgoing request IDs are produced. Absent
// this option, IDs are a monotonic per-Peer integer counter starting at 1,
// matching the "monotonic integer" contract request/response correlation
// depends on.
func WithIDGenerator(fn func() ID) PeerOption {
	return func(c *peerConfig) { c.idGenerator = fn }
}

// WithStrictDuplicateIDLogging logs at Warning (rather than Debug) level
// when an incoming request reuses an ID that is already being handled —
// useful in development, noisy in production against a peer implementation
// known to recycle IDs aggressively.
func WithStrictDuplicateIDLogging(strict bool) PeerOption {
	return func(c *peerConfig) { c.strictDuplicates = strict }
}
