package rpcclient

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  [][]byte
	onSend func([]byte)
}

func (f *fakeSender) Send(frame []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	cb := f.onSend
	f.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
	return nil
}

func (f *fakeSender) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func TestSendCallAssignsMonotonicIDs(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	for i := 0; i < 3; i++ {
		err := c.SendCall(context.Background(), "Arith.Add", []float64{1, 2}, func(json.RawMessage, bool, bool) {})
		require.NoError(t, err)
	}

	var req struct{ ID int64 `json:"id"` }
	require.NoError(t, json.Unmarshal(sender.sent[0], &req))
	assert.EqualValues(t, 0, req.ID)
	require.NoError(t, json.Unmarshal(sender.sent[1], &req))
	assert.EqualValues(t, 1, req.ID)
	require.NoError(t, json.Unmarshal(sender.sent[2], &req))
	assert.EqualValues(t, 2, req.ID)
}

func TestResultDeliveredToCallback(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	var gotValue json.RawMessage
	var gotIsErr, gotIsTimeout bool
	require.NoError(t, c.SendCall(context.Background(), "Arith.Add", []float64{3, 4}, func(v json.RawMessage, isErr, isTimeout bool) {
		gotValue, gotIsErr, gotIsTimeout = v, isErr, isTimeout
	}))

	c.HandleMessage([]byte(`{"jsonrpc":"2.0","id":0,"result":7}`))

	assert.Equal(t, json.RawMessage("7"), gotValue)
	assert.False(t, gotIsErr)
	assert.False(t, gotIsTimeout)
}

func TestErrorDeliveredToCallback(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	var gotIsErr bool
	require.NoError(t, c.SendCall(context.Background(), "Arith.Pow", nil, func(v json.RawMessage, isErr, isTimeout bool) {
		gotIsErr = isErr
	}))

	c.HandleMessage([]byte(`{"jsonrpc":"2.0","id":0,"error":{"code":-32601,"message":"Method not found"}}`))
	assert.True(t, gotIsErr)
}

func TestNonObjectErrorDropsCallRatherThanFiring(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	fireCount := 0
	require.NoError(t, c.SendCall(context.Background(), "Arith.Add", nil, func(json.RawMessage, bool, bool) {
		fireCount++
	}))

	c.HandleMessage([]byte(`{"jsonrpc":"2.0","id":0,"error":"boom"}`))

	assert.Equal(t, 0, fireCount)
	assert.Len(t, c.pending, 0)
}

func TestCallbackNeverFiresMoreThanOnce(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	fireCount := 0
	require.NoError(t, c.SendCall(context.Background(), "Arith.Add", nil, func(json.RawMessage, bool, bool) {
		fireCount++
	}))

	c.HandleMessage([]byte(`{"jsonrpc":"2.0","id":0,"result":1}`))
	c.HandleMessage([]byte(`{"jsonrpc":"2.0","id":0,"result":1}`)) // duplicate / late response

	assert.Equal(t, 1, fireCount)
}

func TestTimeoutFiresAfterDeadline(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	done := make(chan struct{})
	var isTimeout bool
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, c.SendCall(ctx, "Arith.Add", nil, func(v json.RawMessage, isErr, to bool) {
		isTimeout = to
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
	assert.True(t, isTimeout)
}

func TestLateResponseAfterTimeoutIsDropped(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	fireCount := 0
	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, c.SendCall(ctx, "Arith.Add", nil, func(json.RawMessage, bool, bool) {
		fireCount++
		close(done)
	}))

	<-done
	c.HandleMessage([]byte(`{"jsonrpc":"2.0","id":0,"result":1}`))

	assert.Equal(t, 1, fireCount)
}

func TestCloseFailsAllPendingCalls(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	var results []bool
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		require.NoError(t, c.SendCall(context.Background(), "Arith.Add", nil, func(v json.RawMessage, isErr, isTimeout bool) {
			mu.Lock()
			results = append(results, isErr && !isTimeout && v == nil)
			mu.Unlock()
		}))
	}

	c.Close()

	require.Len(t, results, 3)
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestSendNotifyDoesNotRegisterPendingCall(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, nil)

	require.NoError(t, c.SendNotify("Arith.Log", "hello"))
	assert.Len(t, c.pending, 0)
}
