package jsonrpc

import (
	"testing"

	"github.com/dkoosis/goarpc/internal/rpcerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestMarshalsIDAndParams(t *testing.T) {
	req, err := NewRequest(int64(5), "Arith.Add", []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, Version, req.JSONRPC)
	assert.JSONEq(t, "5", string(req.ID))
	assert.JSONEq(t, "[1,2]", string(req.Params))
}

func TestNewNotificationHasNoID(t *testing.T) {
	note, err := NewNotification("Arith.Log", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Arith.Log", note.Method)
	assert.JSONEq(t, `"hi"`, string(note.Params))
}

func TestParseParamsOnRequest(t *testing.T) {
	req, err := NewRequest(nil, "Arith.Add", []float64{3, 4})
	require.NoError(t, err)

	var args []float64
	require.NoError(t, req.ParseParams(&args))
	assert.Equal(t, []float64{3, 4}, args)
}

func TestParseParamsNilIsNoOp(t *testing.T) {
	req := &Request{Method: "Arith.NoArgs"}
	var dst []float64
	assert.NoError(t, req.ParseParams(&dst))
	assert.Nil(t, dst)
}

func TestNewErrorFromWireCarriesData(t *testing.T) {
	we := rpcerror.WireError{
		Code:    -32602,
		Message: "Invalid params",
		Data:    map[string]any{"reason": "bad arity"},
	}

	e := NewErrorFromWire(we)
	assert.Equal(t, -32602, e.Code)
	assert.Equal(t, "Invalid params", e.Message)
	assert.Contains(t, string(e.Data), "bad arity")
}
