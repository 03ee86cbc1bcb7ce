package jsonrpc

import (
	"encoding/json"

	"github.com/joeycumines/go-asyncrpc/cancel"
	"github.com/joeycumines/go-asyncrpc/runtime"
)

// BindMethod registers a typed handler for method: params are decoded into
// a fresh P before fn runs, and fn's R is returned as the response result.
// A malformed params payload is reported as CodeInvalidParams without
// invoking fn. This is the generic adapter over the MethodHandler/Handle
// pair that lets call sites work in terms of real Go types instead of
// json.RawMessage.
func BindMethod[P any, R any](peer *Peer, method string, fn func(params P, frame *runtime.Frame) (R, *RPCError)) {
	peer.Handle(method, func(req *Request, frame *runtime.Frame) (any, *RPCError) {
		var params P
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, NewError(CodeInvalidParams, err.Error())
			}
		}
		result, rpcErr := fn(params, frame)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return result, nil
	})
}

// CallTyped sends method(params) and decodes the response into a fresh R,
// the generic counterpart to Peer.Call for callers that want a typed
// result instead of handling json.RawMessage/any themselves.
func CallTyped[P any, R any](peer *Peer, caller *runtime.Frame, method string, params P) (R, error) {
	var result R
	err := peer.Call(caller, method, params, &result)
	return result, err
}

// CallTypedWithToken is CallTyped's counterpart to Peer.CallWithToken,
// letting an externally-scoped cancel.Token bound a typed call.
func CallTypedWithToken[P any, R any](peer *Peer, caller *runtime.Frame, token *cancel.Token, method string, params P) (R, error) {
	var result R
	err := peer.CallWithToken(caller, token, method, params, &result)
	return result, err
}
