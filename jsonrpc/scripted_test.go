package jsonrpc

import (
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrpc/cancel"
	"github.com/joeycumines/go-asyncrpc/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScripted_CancelPropagatesToHandler verifies that cancelling a Call's
// caller Frame sends $/cancelRequest, and the server-side handler's own
// Frame observes the cancellation through a hook registered with OnCancel.
func TestScripted_CancelPropagatesToHandler(t *testing.T) {
	pp := newPeerPair(t)

	handlerCancelled := make(chan struct{})
	pp.server.Handle("block", func(req *Request, frame *runtime.Frame) (any, *RPCError) {
		done := make(chan struct{})
		frame.OnCancel(func() { close(done); close(handlerCancelled) })
		<-done
		return nil, nil
	})

	callerTask := runtime.Go(pp.clientLoop, func(ctx *runtime.TaskContext) (struct{}, error) {
		var out any
		err := pp.client.Call(ctx.Frame, "block", nil, &out)
		assert.ErrorIs(t, err, runtime.ErrCancelled)
		return struct{}{}, nil
	})

	time.Sleep(30 * time.Millisecond)
	callerTask.Frame().Cancel()

	select {
	case <-handlerCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler frame was never cancelled")
	}
}

// TestScripted_UnknownCancelRequestDropped verifies that a cancelRequest
// naming an id with no matching in-flight handler is silently ignored —
// no response, no panic, the connection stays usable afterward.
func TestScripted_UnknownCancelRequestDropped(t *testing.T) {
	pp := newPeerPair(t)

	BindMethod(pp.server, "echo", func(params string, frame *runtime.Frame) (string, *RPCError) {
		return params, nil
	})

	data, err := encodeRequest(nil, CancelMethod, struct {
		ID ID `json:"id"`
	}{ID: NewNumberID(99999)})
	require.NoError(t, err)
	require.NoError(t, pp.client.send(data))

	time.Sleep(20 * time.Millisecond)

	caller := testFrame(pp.clientLoop)
	result, err := CallTyped[string, string](pp.client, caller, "echo", "still alive")
	require.NoError(t, err)
	assert.Equal(t, "still alive", result)
}

// TestScripted_UnknownResponseDropped verifies that a response naming an
// id with no pending call is silently dropped rather than panicking or
// wedging the read loop.
func TestScripted_UnknownResponseDropped(t *testing.T) {
	pp := newPeerPair(t)

	BindMethod(pp.server, "echo", func(params string, frame *runtime.Frame) (string, *RPCError) {
		return params, nil
	})

	id := NewNumberID(424242)
	data, err := encodeResponse(&id, "nobody asked", nil)
	require.NoError(t, err)
	require.NoError(t, pp.server.send(data))

	time.Sleep(20 * time.Millisecond)

	caller := testFrame(pp.clientLoop)
	result, err := CallTyped[string, string](pp.client, caller, "echo", "still alive")
	require.NoError(t, err)
	assert.Equal(t, "still alive", result)
}

// TestScripted_CloseOutputDoesNotBlockOnInFlightHandler verifies
// CloseOutput returns immediately even while a handler is still running,
// per the fire-and-forget close contract.
func TestScripted_CloseOutputDoesNotBlockOnInFlightHandler(t *testing.T) {
	pp := newPeerPair(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	pp.server.Handle("slow", func(req *Request, frame *runtime.Frame) (any, *RPCError) {
		close(entered)
		<-release
		return "late", nil
	})

	caller := testFrame(pp.clientLoop)
	callDone := make(chan error, 1)
	go func() {
		var out string
		callDone <- pp.client.Call(caller, "slow", nil, &out)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	closeDone := make(chan struct{})
	go func() {
		pp.server.CloseOutput()
		close(closeDone)
	}()

	select {
	case <-closeDone:
	case <-time.After(time.Second):
		t.Fatal("CloseOutput blocked on in-flight handler")
	}

	close(release)
	// The handler's response comes after CloseOutput and is discarded, so
	// the client call can only end locally.
	caller.Cancel()
	<-callDone
}

// TestScripted_RequestTimeoutCancelsCall verifies CallWithTimeout fails a
// call locally once the deadline passes, without requiring the remote side
// to ever respond.
func TestScripted_RequestTimeoutCancelsCall(t *testing.T) {
	clientLoop := runtime.NewLoop()
	serverLoop := runtime.NewLoop()
	clientDone := make(chan error, 1)
	serverDone := make(chan error, 1)
	go func() { clientDone <- clientLoop.Run() }()
	go func() { serverDone <- serverLoop.Run() }()
	defer func() {
		clientLoop.Stop()
		serverLoop.Stop()
		<-clientDone
		<-serverDone
	}()

	clientTransport, serverTransport := NewPipe()
	client := NewPeer(clientLoop, clientTransport)
	server := NewPeer(serverLoop, serverTransport)
	defer client.Close()
	defer server.Close()

	server.Handle("never", func(req *Request, frame *runtime.Frame) (any, *RPCError) {
		<-frame.Loop().Done() // never respond until the test tears down
		return nil, nil
	})

	caller := testFrame(clientLoop)
	var out any
	err := client.CallWithTimeout(caller, 30*time.Millisecond, "never", nil, &out)
	require.Error(t, err)
	rpcErr, ok := err.(*RPCError)
	require.True(t, ok)
	assert.Equal(t, CodeRequestCancelled, rpcErr.Code)
}

// TestScripted_PreCancelledTokenSkipsSend verifies CallWithToken with an
// already-cancelled token never enqueues a request at all.
func TestScripted_PreCancelledTokenSkipsSend(t *testing.T) {
	clientLoop := runtime.NewLoop()
	serverLoop := runtime.NewLoop()
	clientDone := make(chan error, 1)
	serverDone := make(chan error, 1)
	go func() { clientDone <- clientLoop.Run() }()
	go func() { serverDone <- serverLoop.Run() }()
	defer func() {
		clientLoop.Stop()
		serverLoop.Stop()
		<-clientDone
		<-serverDone
	}()

	clientTransport, serverTransport := NewPipe()
	client := NewPeer(clientLoop, clientTransport)
	server := NewPeer(serverLoop, serverTransport)
	defer client.Close()
	defer server.Close()

	called := make(chan struct{}, 1)
	server.Handle("shouldNotRun", func(req *Request, frame *runtime.Frame) (any, *RPCError) {
		called <- struct{}{}
		return nil, nil
	})

	src := cancel.NewSource()
	src.Cancel("pre-cancelled")

	caller := testFrame(clientLoop)
	var out any
	err := client.CallWithToken(caller, src.Token(), "shouldNotRun", nil, &out)
	require.Error(t, err)
	rpcErr, ok := err.(*RPCError)
	require.True(t, ok)
	assert.Equal(t, CodeRequestCancelled, rpcErr.Code)

	select {
	case <-called:
		t.Fatal("handler ran for a call made with a pre-cancelled token")
	case <-time.After(30 * time.Millisecond):
	}
}
