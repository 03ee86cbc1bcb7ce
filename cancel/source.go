package cancel

import (
	"time"

	"github.com/joeycumines/go-asyncrpc/runtime"
)

// Source is a one-shot cancellation trigger, the Go analogue of a W3C
// AbortController: create one, hand its Token out to however many callees
// need to observe cancellation, and call Cancel to fire it. Calling Cancel
// more than once has no additional effect — the Token keeps the reason from
// the first call.
type Source struct {
	token *Token
}

// NewSource constructs a Source with a fresh, not-yet-cancelled Token.
func NewSource() *Source {
	return &Source{token: newToken()}
}

// Token returns the Source's Token. Always the same instance.
func (s *Source) Token() *Token { return s.token }

// Cancel fires the Source's Token with reason, running every registered
// handler synchronously, in registration order, before returning. A nil
// reason is replaced with a default *CancelledError.
func (s *Source) Cancel(reason any) {
	if reason == nil {
		reason = &CancelledError{}
	}
	s.token.fire(reason)
}

// NewTimeoutSource returns a Source whose Token cancels itself with a
// *TimeoutError reason after d elapses on loop.
func NewTimeoutSource(loop *runtime.Loop, d time.Duration) *Source {
	s := NewSource()
	loop.ScheduleTimer(d, func() {
		s.Cancel(&TimeoutError{})
	})
	return s
}

// TimeoutError is the reason used by NewTimeoutSource.
type TimeoutError struct{}

func (e *TimeoutError) Error() string { return "cancel: operation timed out" }

// Any returns a Token that cancels the moment any of the given tokens
// cancels, carrying whichever token's reason fired first. A nil entry in
// tokens is ignored.
func Any(tokens ...*Token) *Token {
	composite := newToken()
	if len(tokens) == 0 {
		return composite
	}

	for _, tok := range tokens {
		if tok == nil {
			continue
		}
		if tok.Cancelled() {
			composite.fire(tok.Reason())
			return composite
		}
	}

	for _, tok := range tokens {
		if tok == nil {
			continue
		}
		tok.Register(func(reason any) {
			composite.fire(reason)
		})
	}

	return composite
}
