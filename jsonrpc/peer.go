package jsonrpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-asyncrpc/cancel"
	"github.com/joeycumines/go-asyncrpc/runtime"
)

// MethodHandler handles one incoming request or notification. frame is the
// Frame backing the goroutine running the handler — cancelling it (e.g.
// because the remote side sent $/cancelRequest) is how a handler observes
// it should stop early; CloseOutput does not cancel it. For a
// notification (req.IsNotification()), the returned result/rpcErr are
// discarded, since no response can be sent.
//
// A handler that wants to issue nested requests/notifications back through
// the owning Peer needs one in scope; since MethodHandler doesn't carry a
// Peer handle directly, callers register handlers as closures over the
// Peer returned by NewPeer (Handle is called after construction, so the
// Peer is always available to close over) rather than through a dedicated
// context type.
type MethodHandler func(req *Request, frame *runtime.Frame) (result any, rpcErr *RPCError)

type outboundMsg struct {
	data  []byte
	errCh chan error
}

// Peer is a bidirectional JSON-RPC 2.0 connection: a read loop decodes and
// dispatches incoming messages, a write pump serializes outgoing ones, and
// Call suspends the calling Frame on a runtime.WaitOp until the reply (or
// cancellation) arrives; Notify only waits for its message to be written.
// Grounded on the
// read-loop/dispatch-table shape of golang.org/x/tools' internal/jsonrpc2,
// rebuilt to suspend Frames instead of blocking on a context-derived
// channel select.
type Peer struct {
	loop      *runtime.Loop
	transport Transport
	cfg       *peerConfig

	writeCh chan outboundMsg

	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}
	runErr    error

	idSeq atomic.Int64

	pendingMu sync.Mutex
	pending   map[ID]*runtime.WaitOp[*Response]

	incomingMu sync.Mutex
	incoming   map[ID]*cancel.Source

	handlersMu sync.RWMutex
	handlers   map[string]MethodHandler
}

// NewPeer constructs a Peer over transport and immediately starts its read
// loop and write pump as Tasks on loop.
func NewPeer(loop *runtime.Loop, transport Transport, opts ...PeerOption) *Peer {
	cfg := defaultPeerConfig()
	for _, o := range opts {
		o(cfg)
	}
	p := &Peer{
		loop:      loop,
		transport: transport,
		cfg:       cfg,
		writeCh:   make(chan outboundMsg, 256),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
		pending:   make(map[ID]*runtime.WaitOp[*Response]),
		incoming:  make(map[ID]*cancel.Source),
		handlers:  make(map[string]MethodHandler),
	}
	runtime.Go(loop, func(ctx *runtime.TaskContext) (struct{}, error) {
		p.writePumpLoop()
		return struct{}{}, nil
	})
	runtime.Go(loop, func(ctx *runtime.TaskContext) (struct{}, error) {
		p.runErr = p.readLoop()
		close(p.doneCh)
		return struct{}{}, nil
	})
	return p
}

// Handle registers h to serve method. Registering the same method twice
// replaces the previous handler.
func (p *Peer) Handle(method string, h MethodHandler) {
	p.handlersMu.Lock()
	p.handlers[method] = h
	p.handlersMu.Unlock()
}

func (p *Peer) lookupHandler(method string) (MethodHandler, bool) {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()
	h, ok := p.handlers[method]
	return h, ok
}

// Done returns a channel closed once the read loop has exited (the
// transport was closed or errored).
func (p *Peer) Done() <-chan struct{} { return p.doneCh }

// Err returns the error that ended the read loop, valid only after Done is
// closed.
func (p *Peer) Err() error { return p.runErr }

// nextID produces the next outgoing request ID: a monotonic per-Peer
// integer counter by default, or cfg.idGenerator if one was supplied.
func (p *Peer) nextID() ID {
	if p.cfg.idGenerator != nil {
		return p.cfg.idGenerator()
	}
	return NewNumberID(p.idSeq.Add(1))
}

// Call sends method(params) as a request and suspends caller until a
// response arrives, decoding its result into result (if non-nil). If
// caller is cancelled first, a $/cancelRequest notification is sent and
// Call returns runtime.ErrCancelled.
func (p *Peer) Call(caller *runtime.Frame, method string, params any, result any) error {
	return p.call(caller, nil, method, params, result)
}

// CallWithToken is like Call, but also fails the call the moment token
// fires (sending $/cancelRequest), independently of whatever cancels
// caller — the externally-scoped cancellation form alongside Call's
// caller-scoped one: a timeout, a user-triggered abort, or any other
// cancel.Source the embedder owns can cut a call short without needing to
// cancel caller's whole Frame chain to do it. If token is already
// cancelled, CallWithToken returns immediately without sending anything.
func (p *Peer) CallWithToken(caller *runtime.Frame, token *cancel.Token, method string, params any, result any) error {
	return p.call(caller, token, method, params, result)
}

// CallWithTimeout is like Call, but fails locally with CodeRequestCancelled
// if no response arrives within timeout, built on a cancel.NewTimeoutSource
// internal to this call (see CallWithToken) rather than any peer-wide
// default.
func (p *Peer) CallWithTimeout(caller *runtime.Frame, timeout time.Duration, method string, params any, result any) error {
	src := cancel.NewTimeoutSource(p.loop, timeout)
	return p.call(caller, src.Token(), method, params, result)
}

func (p *Peer) call(caller *runtime.Frame, token *cancel.Token, method string, params any, result any) error {
	if token != nil && token.Cancelled() {
		return cancelledCallError(token)
	}

	id := p.nextID()
	data, err := encodeRequest(&id, method, params)
	if err != nil {
		return err
	}

	op := runtime.NewWaitOp[*Response](runtime.SingleShot, func() {
		p.removePending(id)
		p.notifyCancel(id)
	})
	p.pendingMu.Lock()
	p.pending[id] = op
	p.pendingMu.Unlock()

	if err := p.send(data); err != nil {
		p.removePending(id)
		return err
	}

	var resp *Response
	if token == nil {
		resp, err = op.Await(caller)
	} else {
		// A dedicated child Frame carries the external token's
		// PolicyIntercept mark instead of caller's own Frame, so
		// CallWithToken never leaves caller itself permanently marked.
		// caller still cancels the call normally, by walking down to this
		// Frame through the ordinary callee chain.
		task := runtime.Go(p.loop, func(ctx *runtime.TaskContext) (*Response, error) {
			reg := cancel.WithToken(token, ctx.Frame)
			defer reg.Unregister()
			return op.Await(ctx.Frame)
		})
		resp, err = task.Await(caller)
	}
	if err != nil {
		if err == runtime.ErrCancelled && token != nil && token.Cancelled() {
			return cancelledCallError(token)
		}
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		return json.Unmarshal(resp.Result, result)
	}
	return nil
}

// cancelledCallError reports a fired token as the RPCError a caller sees,
// distinguishing a timeout-induced cancellation (cancel.TimeoutError) from
// any other externally-scoped reason via the token's own recorded Reason.
func cancelledCallError(token *cancel.Token) *RPCError {
	if _, timedOut := token.Reason().(*cancel.TimeoutError); timedOut {
		return &RPCError{Code: CodeRequestCancelled, Message: "request timed out"}
	}
	return errCancelled()
}

// Notify sends method(params) as a notification: it returns once the
// message has been handed to the transport, without waiting for any reply
// (none is possible).
func (p *Peer) Notify(method string, params any) error {
	data, err := encodeRequest(nil, method, params)
	if err != nil {
		return err
	}
	return p.send(data)
}

func (p *Peer) notifyCancel(id ID) {
	data, err := encodeRequest(nil, CancelMethod, struct {
		ID ID `json:"id"`
	}{ID: id})
	if err != nil {
		return
	}
	p.sendAsync(data)
}

func (p *Peer) removePending(id ID) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

func (p *Peer) takePending(id ID) (*runtime.WaitOp[*Response], bool) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	op, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	return op, ok
}

// send enqueues data for the write pump and blocks until it is actually
// written (or fails).
func (p *Peer) send(data []byte) error {
	errCh := make(chan error, 1)
	select {
	case p.writeCh <- outboundMsg{data: data, errCh: errCh}:
	case <-p.closeCh:
		return ErrTransportClosed
	}
	select {
	case err := <-errCh:
		return err
	case <-p.closeCh:
		return ErrTransportClosed
	}
}

// sendAsync enqueues data without waiting for the write to complete; write
// failures are only logged, by the pump itself, and a message arriving after
// CloseOutput is logged and discarded here. Used for cancellation
// notifications and responses, neither of which has anyone left waiting on
// a Go error return.
func (p *Peer) sendAsync(data []byte) {
	select {
	case <-p.closeCh:
		p.cfg.logger.Debug().Log("jsonrpc: output closed, message discarded")
		return
	default:
	}
	select {
	case p.writeCh <- outboundMsg{data: data}:
	case <-p.closeCh:
		p.cfg.logger.Debug().Log("jsonrpc: output closed, message discarded")
	}
}

func (p *Peer) writePumpLoop() {
	for {
		select {
		case msg := <-p.writeCh:
			err := p.transport.WriteMessage(msg.data)
			if msg.errCh != nil {
				msg.errCh <- err
			} else if err != nil {
				p.cfg.logger.Err().Err(err).Log("jsonrpc: transport write failed")
			}
		case <-p.closeCh:
			return
		}
	}
}

func (p *Peer) readLoop() error {
	for {
		data, err := p.transport.ReadMessage()
		if err != nil {
			p.failAllPending(err)
			return err
		}
		p.dispatch(data)
	}
}

func (p *Peer) failAllPending(cause error) {
	p.pendingMu.Lock()
	all := p.pending
	p.pending = make(map[ID]*runtime.WaitOp[*Response])
	p.pendingMu.Unlock()
	for _, op := range all {
		op.Deliver(nil, &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("connection closed: %v", cause)})
	}
}

func (p *Peer) dispatch(data []byte) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.cfg.logger.Err().Err(err).Log("jsonrpc: malformed message, dropped")
		resp, encErr := encodeResponse(nil, nil, NewError(CodeParseError, "parse error"))
		if encErr == nil {
			p.sendAsync(resp)
		}
		return
	}

	switch {
	case msg.Method == CancelMethod:
		p.handleCancelNotification(msg.Params)
	case msg.Method != "":
		req := &Request{ID: msg.ID, Method: msg.Method, Params: msg.Params}
		if req.IsNotification() {
			p.dispatchNotification(req)
		} else {
			p.dispatchCall(req)
		}
	case msg.ID != nil:
		p.dispatchResponse(msg.ID, msg.Result, msg.Error)
	default:
		p.cfg.logger.Warning().Log("jsonrpc: message is neither a request, notification nor response, dropped")
	}
}

func (p *Peer) handleCancelNotification(params json.RawMessage) {
	var body struct {
		ID ID `json:"id"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		p.cfg.logger.Debug().Err(err).Log("jsonrpc: malformed cancelRequest, dropped")
		return
	}
	p.incomingMu.Lock()
	source := p.incoming[body.ID]
	p.incomingMu.Unlock()
	if source == nil {
		p.cfg.logger.Debug().Log("jsonrpc: cancelRequest for unknown id, dropped")
		return
	}
	source.Cancel(nil)
}

func (p *Peer) dispatchNotification(req *Request) {
	handler, ok := p.lookupHandler(req.Method)
	if !ok {
		p.cfg.logger.Debug().Log("jsonrpc: notification for unknown method, dropped")
		return
	}
	runtime.Go(p.loop, func(ctx *runtime.TaskContext) (struct{}, error) {
		_, _ = handler(req, ctx.Frame)
		return struct{}{}, nil
	})
}

func (p *Peer) dispatchCall(req *Request) {
	id := *req.ID

	handler, ok := p.lookupHandler(req.Method)
	if !ok {
		p.cfg.logger.Info().Log("jsonrpc: method not found")
		p.sendResponse(&id, nil, NewError(CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)))
		return
	}

	source := cancel.NewSource()
	p.incomingMu.Lock()
	if _, dup := p.incoming[id]; dup {
		p.incomingMu.Unlock()
		if p.cfg.strictDuplicates {
			p.cfg.logger.Warning().Log("jsonrpc: duplicate request id")
		} else {
			p.cfg.logger.Debug().Log("jsonrpc: duplicate request id")
		}
		p.sendResponse(&id, nil, NewError(CodeInvalidRequest, "duplicate request id"))
		return
	}
	p.incoming[id] = source
	p.incomingMu.Unlock()

	task := runtime.Go(p.loop, func(ctx *runtime.TaskContext) (struct{}, error) {
		result, rpcErr := handler(req, ctx.Frame)
		p.incomingMu.Lock()
		delete(p.incoming, id)
		p.incomingMu.Unlock()
		if rpcErr == nil && ctx.Frame.Cancelled() {
			rpcErr = errCancelled()
		}
		p.sendResponse(&id, result, rpcErr)
		return struct{}{}, nil
	})
	// Invoke the handler under with_token(source.token, ...): a received
	// $/cancelRequest fires source, which cancels the handler's Frame
	// directly, the same mechanism a caller-scoped cancellation would use.
	cancel.WithToken(source.Token(), task.Frame())
}

func (p *Peer) dispatchResponse(id *ID, result json.RawMessage, rpcErr *RPCError) {
	op, ok := p.takePending(*id)
	if !ok {
		p.cfg.logger.Debug().Log("jsonrpc: response for unknown request id, dropped")
		return
	}
	op.Deliver(&Response{ID: id, Result: result, Error: rpcErr}, nil)
}

func (p *Peer) sendResponse(id *ID, result any, rpcErr *RPCError) {
	data, err := encodeResponse(id, result, rpcErr)
	if err != nil {
		p.cfg.logger.Err().Err(err).Log("jsonrpc: failed to encode response")
		return
	}
	p.sendAsync(data)
}

// CloseOutput stops accepting new outbound writes and returns immediately:
// it does not wait for in-flight inbound handlers to finish. Any handler
// whose eventual response fails to write (because the transport is now
// closed) has that failure logged and discarded, not surfaced anywhere
// else — there is no one left to report it to.
func (p *Peer) CloseOutput() error {
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}

// Close stops outbound writes (see CloseOutput) and closes the underlying
// transport, which in turn unblocks the read loop's next ReadMessage call.
func (p *Peer) Close() error {
	p.CloseOutput()
	return p.transport.Close()
}
