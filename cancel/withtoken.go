package cancel

import "github.com/joeycumines/go-asyncrpc/runtime"

// WithToken marks frame PolicyIntercept and wires token so that
// frame.Cancel() runs the instant token's Source fires. This lets a Task be
// cancelled by an externally-scoped Token (a request timeout, a
// user-triggered abort) in addition to its structural parent: firing the
// Token cancels frame and its callees without touching frame's ancestors.
// The PolicyIntercept mark does not stop an ancestor's ordinary Cancel walk
// from reaching frame; only PolicyExplicitCancel ends that walk.
//
// The returned Registration should be unregistered once frame's Task
// settles through a normal path, so a Token that outlives many short-lived
// Frames (e.g. one shared request-scoped Token reused per sub-task) doesn't
// accumulate dead registrations.
func WithToken(token *Token, frame *runtime.Frame) *Registration {
	frame.SetPolicy(runtime.PolicyIntercept)
	return token.Register(func(reason any) {
		frame.Cancel()
	})
}
