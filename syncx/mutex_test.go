package syncx

import (
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrpc/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutex_LockUnlockUncontended(t *testing.T) {
	loop := runtime.NewLoop()
	var m Mutex
	caller := newTestFrame(loop)

	require.NoError(t, m.Lock(caller))
	m.Unlock()
}

func TestMutex_TryLock(t *testing.T) {
	var m Mutex
	assert.True(t, m.TryLock())
	assert.False(t, m.TryLock())
	m.Unlock()
	assert.True(t, m.TryLock())
}

func TestMutex_UnlockUnlockedPanics(t *testing.T) {
	var m Mutex
	assert.Panics(t, m.Unlock)
}

func TestMutex_FIFOOrdering(t *testing.T) {
	loop := runtime.NewLoop()
	var m Mutex
	require.True(t, m.TryLock())

	const n = 4
	order := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		caller := newTestFrame(loop)
		go func() {
			require.NoError(t, m.Lock(caller))
			order <- i
			m.Unlock()
		}()
		time.Sleep(5 * time.Millisecond) // stagger arrival to fix queue order
	}

	m.Unlock() // release the initial TryLock, starting the chain

	for i := 0; i < n; i++ {
		select {
		case got := <-order:
			assert.Equal(t, i, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter %d never acquired the lock", i)
		}
	}
}

func TestMutex_LockCancelled(t *testing.T) {
	loop := runtime.NewLoop()
	var m Mutex
	require.True(t, m.TryLock())

	caller := newTestFrame(loop)
	resultCh := make(chan error, 1)
	go func() { resultCh <- m.Lock(caller) }()

	time.Sleep(10 * time.Millisecond)
	caller.Cancel()

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, runtime.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("Lock never unblocked on cancellation")
	}

	m.Unlock()
	assert.True(t, m.TryLock())
}
