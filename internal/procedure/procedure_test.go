package procedure

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/goarpc/internal/jsonrpc"
)

func addDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	d, err := NewReturn(func(req *jsonrpc.Request, done DoneFunc) {
		var args []float64
		require.NoError(t, req.ParseParams(&args))
		done(args[0]+args[1], nil)
	}, Param{Name: "lhs", Type: TypeNumber}, Param{Name: "rhs", Type: TypeNumber})
	require.NoError(t, err)
	return d
}

func TestValidateArrayParamsOK(t *testing.T) {
	d := addDescriptor(t)
	err := d.Validate(json.RawMessage(`[1,2]`))
	assert.NoError(t, err)
}

func TestValidateObjectParamsOK(t *testing.T) {
	d := addDescriptor(t)
	err := d.Validate(json.RawMessage(`{"lhs":1,"rhs":2}`))
	assert.NoError(t, err)
}

func TestValidateArityMismatch(t *testing.T) {
	d := addDescriptor(t)
	err := d.Validate(json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func TestValidateTypeMismatch(t *testing.T) {
	d := addDescriptor(t)
	err := d.Validate(json.RawMessage(`["a","b"]`))
	assert.Error(t, err)
}

func TestValidateMissingObjectKey(t *testing.T) {
	d := addDescriptor(t)
	err := d.Validate(json.RawMessage(`{"lhs":1,"other":2}`))
	assert.Error(t, err)
}

func TestValidateEmptyParamsWhenNoneExpected(t *testing.T) {
	d, err := NewReturn(func(req *jsonrpc.Request, done DoneFunc) { done(nil, nil) })
	require.NoError(t, err)

	assert.NoError(t, d.Validate(nil))
	assert.Error(t, d.Validate(json.RawMessage(`[]`)), "an explicit empty params is invalid even with no declared params")
}

func TestValidateMissingParamsWhenExpected(t *testing.T) {
	d := addDescriptor(t)
	err := d.Validate(nil)
	assert.Error(t, err)
}

func TestNewReturnRejectsDuplicateParamNames(t *testing.T) {
	_, err := NewReturn(func(req *jsonrpc.Request, done DoneFunc) {}, Param{Name: "x", Type: TypeNumber}, Param{Name: "x", Type: TypeString})
	assert.Error(t, err)
}

func TestNewReturnRejectsEmptyParamName(t *testing.T) {
	_, err := NewReturn(func(req *jsonrpc.Request, done DoneFunc) {}, Param{Name: "", Type: TypeNumber})
	assert.Error(t, err)
}

func TestInvokeReturnRunsHandlerOnValidParams(t *testing.T) {
	d := addDescriptor(t)
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "Arith.Add", Params: json.RawMessage(`[3,4]`)}

	var gotResult interface{}
	var gotErr error
	d.InvokeReturn(req, func(result interface{}, err error) {
		gotResult, gotErr = result, err
	})

	require.NoError(t, gotErr)
	assert.Equal(t, float64(7), gotResult)
}

func TestInvokeReturnSkipsHandlerOnInvalidParams(t *testing.T) {
	called := false
	d, err := NewReturn(func(req *jsonrpc.Request, done DoneFunc) {
		called = true
		done(nil, nil)
	}, Param{Name: "x", Type: TypeNumber})
	require.NoError(t, err)

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "X", Params: json.RawMessage(`["not a number"]`)}

	var gotErr error
	d.InvokeReturn(req, func(result interface{}, err error) { gotErr = err })

	assert.Error(t, gotErr)
	assert.False(t, called)
}
