// Package jsonrpc defines the on-the-wire JSON-RPC 2.0 envelope types:
// requests, notifications, responses, batches, and the fixed error object
// shape. Framing (internal/framing) and dispatch (internal/rpcserver,
// internal/rpcclient) build on top of these.
package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/dkoosis/goarpc/internal/rpcerror"
)

// Version is the only JSON-RPC version this framework speaks.
const Version = "2.0"

// Error represents a JSON-RPC 2.0 error object, as carried in a Response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewErrorFromWire builds an Error from an rpcerror.WireError, marshaling
// Data if present.
func NewErrorFromWire(we rpcerror.WireError) *Error {
	e := &Error{Code: we.Code, Message: we.Message}
	if we.Data != nil {
		if raw, err := json.Marshal(we.Data); err == nil {
			e.Data = raw
		}
	}
	return e
}

// Request represents a JSON-RPC request: a method call expecting a reply.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response: exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification represents a JSON-RPC notification: a method call with no
// id, which never produces a response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a Request, marshaling id and params.
func NewRequest(id interface{}, method string, params interface{}) (*Request, error) {
	idJSON, err := marshalOptional(id, "id")
	if err != nil {
		return nil, err
	}
	paramsJSON, err := marshalOptional(params, "params")
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, ID: idJSON, Method: method, Params: paramsJSON}, nil
}

// NewNotification builds a Notification, marshaling params.
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalOptional(params, "params")
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: Version, Method: method, Params: paramsJSON}, nil
}

func marshalOptional(v interface{}, field string) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, rpcerror.New(rpcerror.InternalError, err, map[string]any{
			"field":    field,
			"go_type": fmt.Sprintf("%T", v),
		})
	}
	return raw, nil
}

// ParseParams unmarshals the request's params into dst. A nil Params is a
// no-op, matching a procedure with an empty param list.
func (r *Request) ParseParams(dst interface{}) error {
	return parseParams(r.Method, r.Params, dst)
}

// ParseParams unmarshals the notification's params into dst.
func (n *Notification) ParseParams(dst interface{}) error {
	return parseParams(n.Method, n.Params, dst)
}

func parseParams(method string, params json.RawMessage, dst interface{}) error {
	if params == nil {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return rpcerror.New(rpcerror.InvalidParams, err, map[string]any{
			"method":      method,
			"target_type": fmt.Sprintf("%T", dst),
		})
	}
	return nil
}
