// Package procedure implements the procedure descriptor (C3): a handler
// bound to an ordered parameter schema, validated against incoming
// requests before the handler ever runs.
package procedure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dkoosis/goarpc/internal/jsonrpc"
	"github.com/dkoosis/goarpc/internal/rpcerror"
)

// Type is the closed set of JSON value types a parameter may declare.
type Type int

const (
	TypeNull Type = iota
	TypeBool
	TypeNumber
	TypeString
	TypeArray
	TypeObject
)

func (t Type) jsonSchemaType() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default:
		return "null"
	}
}

// Param is one (name, type) pair in a procedure's parameter schema.
type Param struct {
	Name string
	Type Type
}

// DoneFunc is the single-shot completion sink a Return handler invokes
// exactly once with its result or a failure.
type DoneFunc func(result interface{}, err error)

// ReturnHandler handles a request expecting a response.
type ReturnHandler func(req *jsonrpc.Request, done DoneFunc)

// NotifyHandler handles a notification; it produces no response.
type NotifyHandler func(note *jsonrpc.Notification) error

// Kind distinguishes Return procedures (produce a response) from Notify
// procedures (fire and forget).
type Kind int

const (
	Return Kind = iota
	Notify
)

// Descriptor is a registered procedure: its kind, handler, and parameter
// schema, with the schema pre-compiled into a reusable validator.
type Descriptor struct {
	Kind    Kind
	Params  []Param
	doFn    ReturnHandler
	notifyFn NotifyHandler

	arraySchema  *jsonschema.Schema
	objectSchema *jsonschema.Schema
}

var schemaSeq int64

// NewReturn builds a Return-kind descriptor. Duplicate or empty param
// names are rejected at build time, matching the spec's "programmer
// error, checked at registration" requirement.
func NewReturn(handler ReturnHandler, params ...Param) (*Descriptor, error) {
	if handler == nil {
		return nil, fmt.Errorf("procedure: nil Return handler")
	}
	d, err := newDescriptor(Return, params)
	if err != nil {
		return nil, err
	}
	d.doFn = handler
	return d, nil
}

// NewNotify builds a Notify-kind descriptor.
func NewNotify(handler NotifyHandler, params ...Param) (*Descriptor, error) {
	if handler == nil {
		return nil, fmt.Errorf("procedure: nil Notify handler")
	}
	d, err := newDescriptor(Notify, params)
	if err != nil {
		return nil, err
	}
	d.notifyFn = handler
	return d, nil
}

func newDescriptor(kind Kind, params []Param) (*Descriptor, error) {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("procedure: param name must not be empty")
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("procedure: duplicate param name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	d := &Descriptor{Kind: kind, Params: append([]Param(nil), params...)}
	if len(params) > 0 {
		arr, obj, err := compileSchemas(params)
		if err != nil {
			return nil, err
		}
		d.arraySchema, d.objectSchema = arr, obj
	}
	return d, nil
}

// compileSchemas builds two JSON Schema documents from the param list: one
// for array-positional args, one for object-keyed args, and compiles both
// with santhosh-tekuri/jsonschema so per-field type checking never has to
// be hand-rolled.
func compileSchemas(params []Param) (array, object *jsonschema.Schema, err error) {
	items := make([]map[string]any, len(params))
	properties := make(map[string]any, len(params))
	required := make([]string, len(params))
	for i, p := range params {
		items[i] = map[string]any{"type": p.Type.jsonSchemaType()}
		properties[p.Name] = map[string]any{"type": p.Type.jsonSchemaType()}
		required[i] = p.Name
	}

	arraySchemaDoc := map[string]any{
		"type":     "array",
		"items":    items,
		"minItems": len(params),
		"maxItems": len(params),
	}
	objectSchemaDoc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}

	array, err = compileOne(arraySchemaDoc)
	if err != nil {
		return nil, nil, err
	}
	object, err = compileOne(objectSchemaDoc)
	if err != nil {
		return nil, nil, err
	}
	return array, object, nil
}

func compileOne(doc map[string]any) (*jsonschema.Schema, error) {
	id := fmt.Sprintf("mem://goarpc/procedure/%d", atomic.AddInt64(&schemaSeq, 1))
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("procedure: marshaling schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(id, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("procedure: compiling schema: %w", err)
	}
	return c.Compile(id)
}

// Validate checks req's params against the descriptor's schema, per
// spec §4.2. A nil/absent params field is valid only when the descriptor
// takes no parameters.
func (d *Descriptor) Validate(params json.RawMessage) error {
	if params == nil {
		if len(d.Params) == 0 {
			return nil
		}
		return rpcerror.New(rpcerror.InvalidParams, nil, map[string]any{"reason": "missing params"})
	}

	var generic interface{}
	if err := json.Unmarshal(params, &generic); err != nil {
		return rpcerror.New(rpcerror.InvalidParams, err, nil)
	}

	switch v := generic.(type) {
	case []interface{}:
		if len(v) == 0 {
			return rpcerror.New(rpcerror.InvalidParams, nil, map[string]any{"reason": "empty params array"})
		}
		if len(v) != len(d.Params) {
			return rpcerror.New(rpcerror.InvalidParams, nil, map[string]any{
				"reason": "param count mismatch", "want": len(d.Params), "got": len(v),
			})
		}
		if err := d.arraySchema.Validate(generic); err != nil {
			return rpcerror.New(rpcerror.InvalidParams, err, nil)
		}
		return nil

	case map[string]interface{}:
		if len(v) == 0 {
			return rpcerror.New(rpcerror.InvalidParams, nil, map[string]any{"reason": "empty params object"})
		}
		if len(v) != len(d.Params) {
			return rpcerror.New(rpcerror.InvalidParams, nil, map[string]any{
				"reason": "param count mismatch", "want": len(d.Params), "got": len(v),
			})
		}
		if err := d.objectSchema.Validate(generic); err != nil {
			return rpcerror.New(rpcerror.InvalidParams, err, nil)
		}
		return nil

	default:
		return rpcerror.New(rpcerror.InvalidParams, nil, map[string]any{"reason": "params is neither array nor object"})
	}
}

// InvokeReturn validates req's params and, if valid, runs the Return
// handler, forwarding done. If validation fails, done is invoked directly
// with the validation error instead of ever running the handler.
func (d *Descriptor) InvokeReturn(req *jsonrpc.Request, done DoneFunc) {
	if d.Kind != Return {
		done(nil, fmt.Errorf("procedure: InvokeReturn called on a Notify descriptor"))
		return
	}
	if err := d.Validate(req.Params); err != nil {
		done(nil, err)
		return
	}
	d.doFn(req, done)
}

// InvokeNotify validates note's params and, if valid, runs the Notify
// handler. No response is ever produced; the caller should log a
// validation failure at WARN per the spec's propagation policy.
func (d *Descriptor) InvokeNotify(note *jsonrpc.Notification) error {
	if d.Kind != Notify {
		return fmt.Errorf("procedure: InvokeNotify called on a Return descriptor")
	}
	if err := d.Validate(note.Params); err != nil {
		return err
	}
	return d.notifyFn(note)
}

// MethodSuffixValid reports whether name is a syntactically valid method
// suffix (non-empty, and the reserved "rpc" prefix check happens one level
// up in the registry/dispatch layer, which owns the "<service>.<method>"
// split).
func MethodSuffixValid(name string) bool {
	return strings.TrimSpace(name) != ""
}
