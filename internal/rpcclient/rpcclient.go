// Package rpcclient implements the client correlation core (C6): id
// assignment, a pending-call table, and routing of inbound responses (or
// timeout/transport-closed signals) back to the caller that issued them.
package rpcclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkoosis/goarpc/internal/jsonrpc"
	"github.com/dkoosis/goarpc/internal/logging"
)

// Callback receives a call's outcome exactly once: a successful result, an
// error object, or a timeout/transport-closed signal (isTimeout or a nil
// value with isError true and isTimeout false, respectively).
type Callback func(value json.RawMessage, isError bool, isTimeout bool)

// Sender delivers one unframed JSON body to the underlying connection.
// Framing (internal/framing) happens one layer below the client core, inside
// the Sender.
type Sender interface {
	Send(frame []byte) error
}

type pendingEntry struct {
	callback Callback
	timer    *time.Timer
}

// Client assigns monotonically increasing ids to outbound calls and
// correlates inbound responses back to their callbacks. One Client
// instance is not safe for concurrent SendCall from multiple goroutines —
// the spec requires senders on one client to not be concurrent — but
// HandleMessage may run concurrently with SendCall (it arrives off a
// reader goroutine).
type Client struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingEntry
	sender  Sender
	log     logging.Logger
}

// New creates a Client that writes outbound frames through sender.
func New(sender Sender, log logging.Logger) *Client {
	if log == nil {
		log = logging.GetNoopLogger()
	}
	return &Client{
		pending: make(map[int64]*pendingEntry),
		sender:  sender,
		log:     log,
	}
}

// SendCall assigns the next id, records callback, and hands the request
// body to the Sender. If ctx carries a deadline, callback fires with (nil, true,
// true) on expiry and the pending entry is removed; a response that
// arrives afterward is dropped silently.
func (c *Client) SendCall(ctx context.Context, method string, params interface{}, callback Callback) error {
	req, err := jsonrpc.NewRequest(nil, method, params)
	if err != nil {
		return err
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	req.ID = idJSON(id)

	entry := &pendingEntry{callback: callback}
	c.pending[id] = entry
	c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		entry.timer = time.AfterFunc(time.Until(deadline), func() { c.timeout(id) })
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)
		return err
	}

	if err := c.sender.Send(body); err != nil {
		c.removePending(id)
		return err
	}
	return nil
}

// SendNotify writes a framed notification without touching the pending
// table.
func (c *Client) SendNotify(method string, params interface{}) error {
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return c.sender.Send(body)
}

func idJSON(id int64) json.RawMessage {
	raw, _ := json.Marshal(id)
	return raw
}

func (c *Client) removePending(id int64) *pendingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.pending[id]
	delete(c.pending, id)
	return entry
}

func (c *Client) timeout(id int64) {
	entry := c.removePending(id)
	if entry == nil {
		// Response arrived and erased the entry before the timer fired.
		return
	}
	entry.callback(nil, true, true)
}

// HandleMessage processes one decoded, unframed response body. A parse
// failure is logged and no callback fires (the spec treats this as
// internal: the id, if any, could not even be recovered).
func (c *Client) HandleMessage(body []byte) {
	var top interface{}
	if err := json.Unmarshal(body, &top); err != nil {
		c.log.Warn("rpcclient: unparseable response body", "error", err)
		return
	}

	switch top.(type) {
	case map[string]interface{}:
		c.handleSingleResponse(body)
	case []interface{}:
		c.handleBatchResponse(body)
	default:
		c.log.Warn("rpcclient: response body is neither object nor array")
	}
}

func (c *Client) handleBatchResponse(body []byte) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		c.log.Warn("rpcclient: malformed batch response", "error", err)
		return
	}
	if len(elements) == 0 {
		c.log.Warn("rpcclient: empty batch response")
		return
	}
	for _, el := range elements {
		c.handleSingleResponse(el)
	}
}

func (c *Client) handleSingleResponse(body []byte) {
	var fieldsMap map[string]json.RawMessage
	if err := json.Unmarshal(body, &fieldsMap); err != nil {
		c.log.Warn("rpcclient: malformed response object", "error", err)
		return
	}

	if len(fieldsMap) != 3 {
		c.log.Warn("rpcclient: response has unexpected member count", "count", len(fieldsMap))
		c.dropByRecoverableID(fieldsMap)
		return
	}

	var version string
	if raw, ok := fieldsMap["jsonrpc"]; !ok || json.Unmarshal(raw, &version) != nil || version != jsonrpc.Version {
		c.log.Warn("rpcclient: response has bad jsonrpc version")
		c.dropByRecoverableID(fieldsMap)
		return
	}

	idRaw, hasID := fieldsMap["id"]
	var id int64
	if !hasID || json.Unmarshal(idRaw, &id) != nil {
		c.log.Warn("rpcclient: response id missing or not an integer")
		return
	}

	resultRaw, hasResult := fieldsMap["result"]
	errorRaw, hasError := fieldsMap["error"]
	if hasResult == hasError {
		c.log.Warn("rpcclient: response must carry exactly one of result/error", "id", id)
		c.removePending(id)
		return
	}
	if hasError && !isJSONObject(errorRaw) {
		c.log.Warn("rpcclient: response error must be an object", "id", id)
		c.removePending(id)
		return
	}

	entry := c.removePending(id)
	if entry == nil {
		c.log.Warn("rpcclient: no pending call for response id", "id", id)
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}

	if hasResult {
		entry.callback(resultRaw, false, false)
		return
	}
	entry.callback(errorRaw, true, false)
}

// isJSONObject reports whether raw decodes to a JSON object, per the
// requirement that a response's error member, when present, must be an
// object.
func isJSONObject(raw json.RawMessage) bool {
	var v interface{}
	if json.Unmarshal(raw, &v) != nil {
		return false
	}
	_, ok := v.(map[string]interface{})
	return ok
}

// dropByRecoverableID erases the pending entry for a malformed response if
// its id can still be recovered, degrading the call silently to a
// notify — the callback never fires.
func (c *Client) dropByRecoverableID(fieldsMap map[string]json.RawMessage) {
	idRaw, ok := fieldsMap["id"]
	if !ok {
		return
	}
	var id int64
	if json.Unmarshal(idRaw, &id) != nil {
		return
	}
	if entry := c.removePending(id); entry != nil && entry.timer != nil {
		entry.timer.Stop()
	}
}

// Close fails every still-pending call with the closed-transport variant
// (nil, true, false) and clears the pending table. Call this when the
// underlying connection is lost.
func (c *Client) Close() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingEntry)
	c.mu.Unlock()

	for _, entry := range pending {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.callback(nil, true, false)
	}
}
