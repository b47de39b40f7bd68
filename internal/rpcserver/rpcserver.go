// Package rpcserver implements the server dispatch core (C5): parsing and
// validating inbound bodies, resolving method names against a registry,
// invoking procedure handlers (possibly on a worker pool), and assembling
// single or batch responses.
package rpcserver

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/dkoosis/goarpc/internal/aggregator"
	"github.com/dkoosis/goarpc/internal/jsonrpc"
	"github.com/dkoosis/goarpc/internal/logging"
	"github.com/dkoosis/goarpc/internal/rpcerror"
	"github.com/dkoosis/goarpc/internal/rpcservice"
	"github.com/dkoosis/goarpc/internal/workerpool"
)

// RespondFunc sends one complete, unframed JSON response body back to the
// connection. Framing (internal/framing) happens one layer up, in C8.
type RespondFunc func(body []byte)

// Dispatcher resolves and invokes requests against a service registry.
// Handler execution is delegated to pool when non-nil; otherwise handlers
// run inline on the calling goroutine (useful for tests and for Notify
// handlers that are cheap enough not to need offloading).
type Dispatcher struct {
	registry *rpcservice.Registry
	pool     *workerpool.Pool
	log      logging.Logger
}

// New builds a Dispatcher over registry. pool may be nil to run every
// handler inline.
func New(registry *rpcservice.Registry, pool *workerpool.Pool, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.GetNoopLogger()
	}
	return &Dispatcher{registry: registry, pool: pool, log: log}
}

func (d *Dispatcher) run(fn func()) {
	if d.pool != nil {
		d.pool.Run(fn)
		return
	}
	fn()
}

// Handle processes one decoded message body (already unframed by C2).
// respond is called zero or more times with unframed JSON response bodies
// (one for a single request, one array body for a batch, never for a bare
// notification). shutdown is called when the body violates the protocol
// at a level that cannot be recovered within this connection: malformed
// JSON, or a top-level value that is neither an object nor an array.
func (d *Dispatcher) Handle(body []byte, respond RespondFunc, shutdown func()) {
	trimmed := bytes.TrimSpace(body)

	var top interface{}
	if err := json.Unmarshal(trimmed, &top); err != nil {
		d.emitTopError(rpcerror.ParseError, nil, respond)
		shutdown()
		return
	}

	switch top.(type) {
	case map[string]interface{}:
		d.handleObject(trimmed, respond)
	case []interface{}:
		d.handleBatch(trimmed, respond)
	default:
		d.emitTopError(rpcerror.InvalidRequest, nil, respond)
		shutdown()
	}
}

func (d *Dispatcher) emitTopError(kind rpcerror.Kind, id json.RawMessage, respond RespondFunc) {
	resp := errorResponse(id, rpcerror.ToWireError(rpcerror.New(kind, nil, nil)))
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	respond(raw)
}

func errorResponse(id json.RawMessage, we rpcerror.WireError) *jsonrpc.Response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   jsonrpc.NewErrorFromWire(we),
	}
}

func successResponse(id json.RawMessage, result interface{}) (*jsonrpc.Response, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: resultJSON}, nil
}

// fields decodes an object body into its members, preserving raw member
// values for precise count-based validation.
func fields(raw []byte) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Dispatcher) handleObject(raw []byte, respond RespondFunc) {
	m, err := fields(raw)
	if err != nil {
		d.emitTopError(rpcerror.ParseError, nil, respond)
		return
	}

	if _, hasID := m["id"]; !hasID {
		d.handleSingleNotify(m)
		return
	}
	d.handleSingleRequest(m, respond)
}

// validateEnvelope checks the clauses common to requests and
// notifications: jsonrpc=="2.0", method present and not reserved, and the
// exact expected member count.
func validateEnvelope(m map[string]json.RawMessage, wantMembers int) (method string, err error) {
	if len(m) != wantMembers {
		return "", rpcerror.New(rpcerror.InvalidRequest, nil, map[string]any{
			"reason": "unexpected member count", "got": len(m), "want": wantMembers,
		})
	}

	var version string
	if raw, ok := m["jsonrpc"]; !ok {
		return "", rpcerror.New(rpcerror.InvalidRequest, nil, map[string]any{"reason": "missing jsonrpc"})
	} else if err := json.Unmarshal(raw, &version); err != nil || version != jsonrpc.Version {
		return "", rpcerror.New(rpcerror.InvalidRequest, nil, map[string]any{"reason": "bad jsonrpc version"})
	}

	raw, ok := m["method"]
	if !ok {
		return "", rpcerror.New(rpcerror.InvalidRequest, nil, map[string]any{"reason": "missing method"})
	}
	if err := json.Unmarshal(raw, &method); err != nil || method == "" {
		return "", rpcerror.New(rpcerror.InvalidRequest, nil, map[string]any{"reason": "bad method"})
	}
	if reservedMethod(method) {
		return "", rpcerror.New(rpcerror.InvalidRequest, nil, map[string]any{"reason": "reserved method prefix", "method": method})
	}
	return method, nil
}

func reservedMethod(method string) bool {
	prefix, _, found := strings.Cut(method, ".")
	return found && prefix == "rpc"
}

func validID(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v.(type) {
	case string, float64:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) handleSingleRequest(m map[string]json.RawMessage, respond RespondFunc) {
	_, hasParams := m["params"]
	wantMembers := 3
	if hasParams {
		wantMembers = 4
	}

	id := m["id"]
	if !validID(id) {
		d.emitTopError(rpcerror.InvalidRequest, id, respond)
		return
	}

	method, err := validateEnvelope(m, wantMembers)
	if err != nil {
		d.emitErrorAsResponse(id, err, respond)
		return
	}

	serviceName, methodName, err := splitMethod(method)
	if err != nil {
		d.emitErrorAsResponse(id, err, respond)
		return
	}

	svc, ok := d.registry.Lookup(serviceName)
	if !ok {
		d.emitErrorAsResponse(id, rpcerror.New(rpcerror.MethodNotFound, nil, map[string]any{"service": serviceName}), respond)
		return
	}
	desc, err := svc.CallProcedureReturn(methodName)
	if err != nil {
		d.emitErrorAsResponse(id, err, respond)
		return
	}

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: id, Method: method, Params: m["params"]}

	d.run(func() {
		desc.InvokeReturn(req, func(result interface{}, err error) {
			if err != nil {
				d.emitErrorAsResponse(id, err, respond)
				return
			}
			resp, merr := successResponse(id, result)
			if merr != nil {
				d.emitErrorAsResponse(id, rpcerror.New(rpcerror.InternalError, merr, nil), respond)
				return
			}
			raw, merr := json.Marshal(resp)
			if merr != nil {
				return
			}
			respond(raw)
		})
	})
}

func (d *Dispatcher) emitErrorAsResponse(id json.RawMessage, err error, respond RespondFunc) {
	resp := errorResponse(id, rpcerror.ToWireError(err))
	raw, merr := json.Marshal(resp)
	if merr != nil {
		return
	}
	respond(raw)
}

func (d *Dispatcher) handleSingleNotify(m map[string]json.RawMessage) {
	_, hasParams := m["params"]
	wantMembers := 2
	if hasParams {
		wantMembers = 3
	}

	method, err := validateEnvelope(m, wantMembers)
	if err != nil {
		d.log.Warn("dropping malformed notification", "error", err)
		return
	}

	serviceName, methodName, err := splitMethod(method)
	if err != nil {
		d.log.Warn("dropping notification for unresolvable method", "method", method, "error", err)
		return
	}

	svc, ok := d.registry.Lookup(serviceName)
	if !ok {
		d.log.Warn("dropping notification for unknown service", "service", serviceName)
		return
	}
	desc, err := svc.CallProcedureNotify(methodName)
	if err != nil {
		d.log.Warn("dropping notification for unknown method", "service", serviceName, "method", methodName)
		return
	}

	note := &jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: method, Params: m["params"]}
	d.run(func() {
		if err := desc.InvokeNotify(note); err != nil {
			d.log.Warn("notification handler failed", "method", method, "error", err)
		}
	})
}

// splitMethod splits "service.method" at the first dot, failing
// METHOD_NOT_FOUND for an empty prefix or suffix.
func splitMethod(method string) (service, name string, err error) {
	service, name, found := strings.Cut(method, ".")
	if !found || service == "" || name == "" {
		return "", "", rpcerror.New(rpcerror.MethodNotFound, nil, map[string]any{"method": method})
	}
	return service, name, nil
}

func (d *Dispatcher) handleBatch(raw []byte, respond RespondFunc) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		d.emitTopError(rpcerror.ParseError, nil, respond)
		return
	}

	if len(elements) == 0 {
		d.emitTopError(rpcerror.InvalidRequest, nil, respond)
		return
	}

	// Every element produces a response except a well-formed notification
	// (an object with no "id"); malformed elements produce an
	// INVALID_REQUEST response of their own.
	totalProducers := 0
	for _, el := range elements {
		var probe interface{}
		if err := json.Unmarshal(el, &probe); err != nil {
			totalProducers++
			continue
		}
		m, ok := probe.(map[string]interface{})
		if !ok {
			totalProducers++
			continue
		}
		if _, hasID := m["id"]; hasID {
			totalProducers++
		}
	}

	if totalProducers == 0 {
		return
	}

	agg := aggregator.New(totalProducers, func(responses []json.RawMessage) {
		if len(responses) == 0 {
			return
		}
		raw, err := json.Marshal(responses)
		if err != nil {
			return
		}
		respond(raw)
	})

	for _, el := range elements {
		el := el
		var probe interface{}
		if err := json.Unmarshal(el, &probe); err != nil {
			agg.Add(marshalOrNil(errorResponse(nil, rpcerror.ToWireError(rpcerror.New(rpcerror.InvalidRequest, nil, nil)))))
			agg.Release()
			continue
		}

		m, ok := probe.(map[string]interface{})
		if !ok {
			agg.Add(marshalOrNil(errorResponse(nil, rpcerror.ToWireError(rpcerror.New(rpcerror.InvalidRequest, nil, nil)))))
			agg.Release()
			continue
		}

		if _, hasID := m["id"]; !hasID {
			// A well-formed notification was not counted among
			// totalProducers above: it contributes nothing to the
			// aggregator and must not touch its refcount.
			if fm, err := fields(el); err == nil {
				d.handleSingleNotify(fm)
			}
			continue
		}

		fm, err := fields(el)
		if err != nil {
			agg.Add(marshalOrNil(errorResponse(nil, rpcerror.ToWireError(rpcerror.New(rpcerror.InvalidRequest, nil, nil)))))
			agg.Release()
			continue
		}
		d.handleBatchElement(fm, agg)
	}
}

func marshalOrNil(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// handleBatchElement mirrors handleSingleRequest but appends its response
// to agg instead of calling respond directly. It releases agg exactly once:
// right away when the element fails validation or resolution, otherwise
// when the handler's done sink fires.
func (d *Dispatcher) handleBatchElement(m map[string]json.RawMessage, agg *aggregator.Aggregator) {
	_, hasParams := m["params"]
	wantMembers := 3
	if hasParams {
		wantMembers = 4
	}

	id := m["id"]
	if !validID(id) {
		agg.Add(marshalOrNil(errorResponse(id, rpcerror.ToWireError(rpcerror.New(rpcerror.InvalidRequest, nil, nil)))))
		agg.Release()
		return
	}

	method, err := validateEnvelope(m, wantMembers)
	if err != nil {
		agg.Add(marshalOrNil(errorResponse(id, rpcerror.ToWireError(err))))
		agg.Release()
		return
	}

	serviceName, methodName, err := splitMethod(method)
	if err != nil {
		agg.Add(marshalOrNil(errorResponse(id, rpcerror.ToWireError(err))))
		agg.Release()
		return
	}

	svc, ok := d.registry.Lookup(serviceName)
	if !ok {
		agg.Add(marshalOrNil(errorResponse(id, rpcerror.ToWireError(rpcerror.New(rpcerror.MethodNotFound, nil, nil)))))
		agg.Release()
		return
	}
	desc, err := svc.CallProcedureReturn(methodName)
	if err != nil {
		agg.Add(marshalOrNil(errorResponse(id, rpcerror.ToWireError(err))))
		agg.Release()
		return
	}

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: id, Method: method, Params: m["params"]}

	d.run(func() {
		desc.InvokeReturn(req, func(result interface{}, err error) {
			defer agg.Release()
			if err != nil {
				agg.Add(marshalOrNil(errorResponse(id, rpcerror.ToWireError(err))))
				return
			}
			resp, merr := successResponse(id, result)
			if merr != nil {
				agg.Add(marshalOrNil(errorResponse(id, rpcerror.ToWireError(rpcerror.New(rpcerror.InternalError, merr, nil)))))
				return
			}
			agg.Add(marshalOrNil(resp))
		})
	})
}
