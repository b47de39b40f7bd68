package rpcerror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableCodesMatchSpec(t *testing.T) {
	assert.Equal(t, -32700, ParseError.Code())
	assert.Equal(t, -32600, InvalidRequest.Code())
	assert.Equal(t, -32601, MethodNotFound.Code())
	assert.Equal(t, -32602, InvalidParams.Code())
	assert.Equal(t, -32603, InternalError.Code())
}

func TestFromCodeRoundTrips(t *testing.T) {
	for _, k := range []Kind{ParseError, InvalidRequest, MethodNotFound, InvalidParams, InternalError} {
		got, ok := FromCode(k.Code())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}

	_, ok := FromCode(-32000)
	assert.False(t, ok, "implementer-defined server error range is not a standard Kind")
}

func TestToWireErrorOmitsDataWhenEmpty(t *testing.T) {
	err := New(MethodNotFound, nil, nil)
	we := ToWireError(err)
	assert.Equal(t, -32601, we.Code)
	assert.Equal(t, "Method not found", we.Message)
	assert.Nil(t, we.Data)
}

func TestToWireErrorRedactsSensitiveDetail(t *testing.T) {
	err := New(InvalidParams, nil, map[string]any{
		"param":  "amount",
		"token":  "sh-secret-value",
		"secret": "also-secret",
	})

	we := ToWireError(err)
	assert.Equal(t, "amount", we.Data["param"])
	_, hasToken := we.Data["token"]
	_, hasSecret := we.Data["secret"]
	assert.False(t, hasToken)
	assert.False(t, hasSecret)
}

func TestToWireErrorUnrecognizedErrorBecomesInternal(t *testing.T) {
	we := ToWireError(assertErr{})
	assert.Equal(t, InternalError.Code(), we.Code)
	assert.Equal(t, InternalError.Message(), we.Message)
	assert.Nil(t, we.Data)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestKindOfDefaultsToInternal(t *testing.T) {
	kind, ok := KindOf(assertErr{})
	assert.False(t, ok)
	assert.Equal(t, InternalError, kind)
}
