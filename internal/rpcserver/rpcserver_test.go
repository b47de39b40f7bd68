package rpcserver

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/goarpc/internal/jsonrpc"
	"github.com/dkoosis/goarpc/internal/procedure"
	"github.com/dkoosis/goarpc/internal/rpcservice"
)

func arithRegistry(t *testing.T) *rpcservice.Registry {
	t.Helper()
	add, err := procedure.NewReturn(func(req *jsonrpc.Request, done procedure.DoneFunc) {
		var args []float64
		require.NoError(t, req.ParseParams(&args))
		done(args[0]+args[1], nil)
	}, procedure.Param{Name: "lhs", Type: procedure.TypeNumber}, procedure.Param{Name: "rhs", Type: procedure.TypeNumber})
	require.NoError(t, err)

	sub, err := procedure.NewReturn(func(req *jsonrpc.Request, done procedure.DoneFunc) {
		var args []float64
		require.NoError(t, req.ParseParams(&args))
		done(args[0]-args[1], nil)
	}, procedure.Param{Name: "lhs", Type: procedure.TypeNumber}, procedure.Param{Name: "rhs", Type: procedure.TypeNumber})
	require.NoError(t, err)

	var logged []string
	var mu sync.Mutex
	logNote, err := procedure.NewNotify(func(note *jsonrpc.Notification) error {
		var msg string
		if err := note.ParseParams(&msg); err != nil {
			return err
		}
		mu.Lock()
		logged = append(logged, msg)
		mu.Unlock()
		return nil
	}, procedure.Param{Name: "msg", Type: procedure.TypeString})
	require.NoError(t, err)

	svc := rpcservice.NewService("Arith")
	require.NoError(t, svc.AddReturn("Add", add))
	require.NoError(t, svc.AddReturn("Sub", sub))
	require.NoError(t, svc.AddNotify("Log", logNote))

	reg := rpcservice.NewRegistry()
	require.NoError(t, reg.AddService(svc))
	return reg
}

func collect(dispatcher *Dispatcher, body string) []json.RawMessage {
	var responses []json.RawMessage
	var shutdownCalled bool
	dispatcher.Handle([]byte(body), func(b []byte) {
		responses = append(responses, b)
	}, func() { shutdownCalled = true })
	_ = shutdownCalled
	return responses
}

func TestAddHappyPath(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	responses := collect(d, `{"jsonrpc":"2.0","method":"Arith.Add","params":[3,4],"id":0}`)

	require.Len(t, responses, 1)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	assert.Nil(t, resp.Error)
	var result float64
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, float64(7), result)
}

func TestUnknownMethod(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	responses := collect(d, `{"jsonrpc":"2.0","method":"Arith.Pow","params":[1,2],"id":5}`)

	require.Len(t, responses, 1)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestBadParamsArity(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	responses := collect(d, `{"jsonrpc":"2.0","method":"Arith.Add","params":[1],"id":1}`)

	require.Len(t, responses, 1)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestParseErrorClosesConnection(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	var responses []json.RawMessage
	var shutdownCalled bool
	d.Handle([]byte(`{`), func(b []byte) { responses = append(responses, b) }, func() { shutdownCalled = true })

	require.Len(t, responses, 1)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
	assert.True(t, shutdownCalled)
}

func TestNotificationProducesNoResponse(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	responses := collect(d, `{"jsonrpc":"2.0","method":"Arith.Log","params":["hi"]}`)
	assert.Empty(t, responses)
}

func TestBatchMixed(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	batch := `[
		{"jsonrpc":"2.0","method":"Arith.Add","params":[1,2],"id":1},
		{"jsonrpc":"2.0","method":"Arith.Log","params":["x"]},
		{"jsonrpc":"2.0","method":"Arith.Sub","params":[5,2],"id":2}
	]`
	responses := collect(d, batch)
	require.Len(t, responses, 1)

	var batchResp []jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &batchResp))
	require.Len(t, batchResp, 2)

	byID := map[string]float64{}
	for _, r := range batchResp {
		var id float64
		require.NoError(t, json.Unmarshal(r.ID, &id))
		var result float64
		require.NoError(t, json.Unmarshal(r.Result, &result))
		byID[jsonNum(id)] = result
	}
	assert.Equal(t, float64(3), byID["1"])
	assert.Equal(t, float64(3), byID["2"])
}

func jsonNum(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestEmptyBatchIsInvalidRequest(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	responses := collect(d, `[]`)

	require.Len(t, responses, 1)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestBatchOfAllNotificationsProducesNoResponse(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	batch := `[
		{"jsonrpc":"2.0","method":"Arith.Log","params":["a"]},
		{"jsonrpc":"2.0","method":"Arith.Log","params":["b"]}
	]`
	responses := collect(d, batch)
	assert.Empty(t, responses)
}

func TestBatchPerElementErrorsDoNotAbortRemaining(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	batch := `[
		1,
		{"jsonrpc":"2.0","method":"Arith.Add","params":[1,2],"id":1}
	]`
	responses := collect(d, batch)
	require.Len(t, responses, 1)

	var batchResp []jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &batchResp))
	require.Len(t, batchResp, 2)
}

func TestReservedMethodPrefixRejected(t *testing.T) {
	d := New(arithRegistry(t), nil, nil)
	responses := collect(d, `{"jsonrpc":"2.0","method":"rpc.introspect","id":1}`)

	require.Len(t, responses, 1)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}
