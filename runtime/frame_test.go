package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_CallerCalleeInvariant(t *testing.T) {
	loop := NewLoop()
	caller := newFrame(loop, Location{})
	callee := newFrame(loop, Location{})

	caller.setCallee(callee)
	require.Equal(t, callee, caller.Callee())
	require.Equal(t, caller, callee.Caller())

	caller.clearCallee()
	assert.Nil(t, caller.Callee())
	assert.Nil(t, callee.Caller())
}

func TestFrame_SetCallee_PanicsOnConcurrentAwait(t *testing.T) {
	loop := NewLoop()
	caller := newFrame(loop, Location{})
	a := newFrame(loop, Location{})
	b := newFrame(loop, Location{})

	caller.setCallee(a)
	assert.Panics(t, func() { caller.setCallee(b) })
}

func TestFrame_Cancel_SetsStateAndFiresHooks(t *testing.T) {
	loop := NewLoop()
	f := newFrame(loop, Location{})

	fired := false
	f.OnCancel(func() { fired = true })
	assert.False(t, f.Cancelled())

	f.Cancel()
	assert.True(t, f.Cancelled())
	assert.True(t, fired)
}

func TestFrame_OnCancel_FiresInlineIfAlreadyCancelled(t *testing.T) {
	loop := NewLoop()
	f := newFrame(loop, Location{})
	f.Cancel()

	fired := false
	unregister := f.OnCancel(func() { fired = true })
	assert.True(t, fired)
	unregister() // no-op, must not panic
}

func TestFrame_OnCancel_UnregisterPreventsLaterFire(t *testing.T) {
	loop := NewLoop()
	f := newFrame(loop, Location{})

	fired := false
	unregister := f.OnCancel(func() { fired = true })
	unregister()

	f.Cancel()
	assert.False(t, fired)
}

func TestFrame_Cancel_StopsAtExplicitCancelBoundary(t *testing.T) {
	loop := NewLoop()
	root := newFrame(loop, Location{})
	boundary := newFrame(loop, Location{})
	beyond := newFrame(loop, Location{})

	root.setCallee(boundary)
	boundary.setCallee(beyond)
	boundary.SetPolicy(PolicyExplicitCancel)

	root.Cancel()

	assert.True(t, root.Cancelled())
	assert.True(t, boundary.Cancelled())
	assert.False(t, beyond.Cancelled())
}

func TestFrame_Cancel_WalksWholeChainWithoutBoundary(t *testing.T) {
	loop := NewLoop()
	root := newFrame(loop, Location{})
	mid := newFrame(loop, Location{})
	leaf := newFrame(loop, Location{})

	root.setCallee(mid)
	mid.setCallee(leaf)

	root.Cancel()

	assert.True(t, root.Cancelled())
	assert.True(t, mid.Cancelled())
	assert.True(t, leaf.Cancelled())
}

func TestFrame_Cancel_ZeroHooksIsNoop(t *testing.T) {
	loop := NewLoop()
	f := newFrame(loop, Location{})
	assert.NotPanics(t, func() { f.Cancel() })
	assert.True(t, f.Cancelled())
}

func TestFrame_Cancel_Idempotent(t *testing.T) {
	loop := NewLoop()
	f := newFrame(loop, Location{})

	count := 0
	f.OnCancel(func() { count++ })
	f.Cancel()
	f.Cancel()
	assert.Equal(t, 1, count)
}

func TestLocation_String(t *testing.T) {
	assert.Equal(t, "<unknown>", Location{}.String())
	loc := Location{File: "x.go", Line: 7, Func: "pkg.Fn"}
	assert.Equal(t, "x.go:7 (pkg.Fn)", loc.String())
}
