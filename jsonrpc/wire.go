package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the "jsonrpc" field value this package produces. Incoming
// messages are not checked against it.
const Version = "2.0"

// CancelMethod is the notification method used to request cancellation of
// an in-flight call, following the de facto "$/cancelRequest" convention
// (not part of the JSON-RPC 2.0 spec itself, but universal among peers
// built on it).
const CancelMethod = "$/cancelRequest"

// ID is a JSON-RPC request identifier: the wire format allows either a
// number or a string, never both, so ID is a small tagged union rather than
// a bare `any` — giving it well-defined equality and making it safe to use
// as a map key (needed for the pending/incoming request tables).
type ID struct {
	str    string
	num    int64
	isStr  bool
}

// NewNumberID constructs a numeric ID.
func NewNumberID(n int64) ID { return ID{num: n} }

// NewStringID constructs a string ID.
func NewStringID(s string) ID { return ID{str: s, isStr: true} }

// IsString reports whether the ID is the string variant.
func (id ID) IsString() bool { return id.isStr }

// String returns the ID's display form, not its JSON encoding: a numeric ID
// renders as a decimal integer, a string ID renders unquoted.
func (id ID) String() string {
	if id.isStr {
		return id.str
	}
	return fmt.Sprintf("%d", id.num)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{num: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID{str: s, isStr: true}
		return nil
	}
	return errors.New("jsonrpc: id must be a number or a string")
}

// Request is a decoded JSON-RPC request or notification (ID is nil for a
// notification).
type Request struct {
	ID     *ID             `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this Request carries no ID and therefore
// expects no Response.
func (r *Request) IsNotification() bool { return r.ID == nil }

// wireMessage is the union of every field a Request or Response might
// carry, used to sniff which kind of message was just decoded (mirrors the
// "combined" trick in golang.org/x/tools' jsonrpc2 implementation).
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Response is a decoded JSON-RPC response.
type Response struct {
	ID     *ID
	Result json.RawMessage
	Error  *RPCError
}

func encodeRequest(id *ID, method string, params any) ([]byte, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	msg := wireMessage{JSONRPC: Version, ID: id, Method: method, Params: raw}
	return json.Marshal(msg)
}

func encodeResponse(id *ID, result any, rpcErr *RPCError) ([]byte, error) {
	msg := wireMessage{JSONRPC: Version, ID: id, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		msg.Result = raw
	}
	return json.Marshal(msg)
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
