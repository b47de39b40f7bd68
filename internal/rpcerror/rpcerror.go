// Package rpcerror is the closed JSON-RPC 2.0 error taxonomy: a fixed
// enumeration of wire codes and messages, plus a detail-carrying wrapper
// built on github.com/cockroachdb/errors for everything that needs more
// context than the wire is allowed to see.
package rpcerror

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is the closed set of JSON-RPC 2.0 error variants. It is never
// extended at runtime; the wire code and message always come from table,
// never interpolated from caller input.
type Kind int

const (
	ParseError Kind = iota
	InvalidRequest
	MethodNotFound
	InvalidParams
	InternalError
)

type entry struct {
	code    int
	message string
}

// table is the single source of truth for code <-> message <-> Kind.
var table = [...]entry{
	ParseError:     {-32700, "Parse error"},
	InvalidRequest: {-32600, "Invalid Request"},
	MethodNotFound: {-32601, "Method not found"},
	InvalidParams:  {-32602, "Invalid params"},
	InternalError:  {-32603, "Internal error"},
}

// Code returns the fixed JSON-RPC wire code for k.
func (k Kind) Code() int { return table[k].code }

// Message returns the fixed human-readable message for k.
func (k Kind) Message() string { return table[k].message }

func (k Kind) String() string { return k.Message() }

// FromCode reverse-maps a wire code back onto the closed enum, for a client
// classifying an error object it did not itself produce;
// ok is false for any code outside the five standard variants (including
// the implementer-defined -32000..-32099 server-error range).
func FromCode(code int) (Kind, bool) {
	for k, e := range table {
		if e.code == code {
			return Kind(k), true
		}
	}
	return 0, false
}

// rpcError is a Kind paired with structured, loggable detail that must
// never reach the wire verbatim — see ToWireError.
type rpcError struct {
	kind    Kind
	cause   error
	detail  map[string]any
}

func (e *rpcError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.kind.Message(), e.cause.Error())
	}
	return e.kind.Message()
}

func (e *rpcError) Unwrap() error { return e.cause }

// New builds an error of the given kind carrying cause (may be nil) and
// structured detail for logging. The detail map is never echoed to the
// wire unless explicitly passed through ToWireError, which redacts it.
func New(kind Kind, cause error, detail map[string]any) error {
	wrapped := &rpcError{kind: kind, cause: cause, detail: detail}
	return errors.WithStack(wrapped)
}

// Newf is a convenience for New with a formatted cause message and no
// structured detail.
func Newf(kind Kind, format string, args ...any) error {
	return New(kind, errors.Newf(format, args...), nil)
}

// KindOf extracts the Kind carried by err, walking wrapped errors. Returns
// InternalError, false if err (or its chain) does not carry an rpcError —
// matching the spec's fallback for uncaught handler failures.
func KindOf(err error) (Kind, bool) {
	var target *rpcError
	if errors.As(err, &target) {
		return target.kind, true
	}
	return InternalError, false
}

// WireError is the JSON-serializable shape of a JSON-RPC error object.
type WireError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ToWireError projects err onto the wire error object. If err does not
// carry an rpcError, it is treated as an uncaught internal failure per the
// spec's propagation policy: the caller's message is discarded from the
// wire entirely and replaced with the fixed INTERNAL_ERROR text.
func ToWireError(err error) WireError {
	kind, ok := KindOf(err)
	if !ok {
		return WireError{Code: InternalError.Code(), Message: InternalError.Message()}
	}

	var rerr *rpcError
	errors.As(err, &rerr)

	we := WireError{Code: kind.Code(), Message: kind.Message()}
	if rerr != nil && len(rerr.detail) > 0 {
		we.Data = RedactDetails(rerr.detail)
	}
	return we
}

// sensitiveKeywords marks detail keys that must never reach the wire even
// when a handler attached them deliberately (e.g. echoing a bad param back
// for debugging).
var sensitiveKeywords = map[string]struct{}{
	"token": {}, "password": {}, "secret": {}, "key": {}, "auth": {}, "credential": {},
}

// RedactDetails returns a copy of detail with every key that exactly equals
// one of sensitiveKeywords removed; a key that only contains such a word
// (e.g. "api_token") is kept. Supplements the core spec, which does not otherwise
// say anything about what handlers are allowed to put in error data.
func RedactDetails(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	out := make(map[string]any, len(detail))
	for k, v := range detail {
		if _, sensitive := sensitiveKeywords[k]; sensitive {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
