package cancel

import (
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrpc/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithToken_CancelsFrameOnTokenFire(t *testing.T) {
	loop := runtime.NewLoop()
	task := runtime.Go(loop, func(ctx *runtime.TaskContext) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	src := NewSource()
	WithToken(src.Token(), task.Frame())

	assert.Equal(t, runtime.PolicyIntercept, task.Frame().Policy()&runtime.PolicyIntercept)

	src.Cancel("external abort")

	require.True(t, task.Frame().Cancelled())
}

func TestWithToken_DoesNotCancelUnrelatedAncestor(t *testing.T) {
	loop := runtime.NewLoop()
	done := make(chan error, 1)
	go func() { done <- loop.Run() }()
	defer func() {
		loop.Stop()
		<-done
	}()

	child := runtime.Go(loop, func(ctx *runtime.TaskContext) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	src := NewSource()
	WithToken(src.Token(), child.Frame())

	ancestor := runtime.Go(loop, func(ctx *runtime.TaskContext) (int, error) {
		v, err := child.Await(ctx.Frame)
		return v, err
	})

	time.Sleep(20 * time.Millisecond)
	src.Cancel("scoped cancel")
	time.Sleep(10 * time.Millisecond)

	// ancestor's own Frame must not have been cancelled by the token firing.
	assert.False(t, ancestor.Frame().Cancelled())
}
