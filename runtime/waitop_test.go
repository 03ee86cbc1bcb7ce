package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitOp_SingleShotDeliversOnce(t *testing.T) {
	loop := NewLoop()
	op := NewWaitOp[int](SingleShot, nil)
	caller := newFrame(loop, Location{})

	go func() {
		op.Deliver(1, nil)
		op.Deliver(2, nil) // ignored
	}()

	v, err := op.Await(caller)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWaitOp_LatestValueOverwritesBeforeDelivery(t *testing.T) {
	loop := NewLoop()
	op := NewWaitOp[int](LatestValue, nil)
	caller := newFrame(loop, Location{})

	op.Deliver(1, nil)
	op.Deliver(2, nil)

	v, err := op.Await(caller)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestWaitOp_CancelledCallerUnblocksWithErrCancelled(t *testing.T) {
	loop := NewLoop()
	op := NewWaitOp[int](SingleShot, nil)
	caller := newFrame(loop, Location{})

	resultCh := make(chan error, 1)
	go func() {
		_, err := op.Await(caller)
		resultCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	caller.Cancel()

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("Await never unblocked on cancellation")
	}
}

func TestWaitOp_CancelActionInvokedOnce(t *testing.T) {
	loop := NewLoop()
	calls := 0
	op := NewWaitOp[int](SingleShot, func() { calls++ })
	caller := newFrame(loop, Location{})

	resultCh := make(chan error, 1)
	go func() {
		_, err := op.Await(caller)
		resultCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	caller.Cancel()
	<-resultCh

	assert.Equal(t, 1, calls)
}

func TestWaitOp_DeliverBeforeCancelWins(t *testing.T) {
	loop := NewLoop()
	op := NewWaitOp[int](SingleShot, nil)
	caller := newFrame(loop, Location{})

	op.Deliver(99, nil)
	caller.Cancel() // should be a no-op from WaitOp's perspective: already delivered

	v, err := op.Await(caller)
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}
