// Package aggregator implements the response aggregator (C7): a
// thread-safe accumulator for batch replies, grounded on the refcounted
// shared_ptr<ThreadSafeDate>/destructor pattern the reference server uses
// to fire its completion sink exactly once. Go has no destructors, so the
// refcount is explicit: New is given the number of producers, each producer
// must Release() exactly once, and the sink fires on the Release that drops
// the count to zero.
package aggregator

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Sink receives the assembled batch once every producer has released its
// reference. It is invoked at most once.
type Sink func(responses []json.RawMessage)

// Aggregator accumulates responses from concurrently dispatched batch
// elements and fires its Sink exactly once when the last reference is
// released.
type Aggregator struct {
	mu        sync.Mutex
	responses []json.RawMessage

	refcount int64
	sink     Sink
	fired    int32
}

// New creates an Aggregator that starts with producers references and fires
// sink once all of them have been released. Callers count every dispatched
// element up front and call Release() exactly once per counted element.
func New(producers int, sink Sink) *Aggregator {
	return &Aggregator{
		refcount: int64(producers),
		sink:     sink,
	}
}

// Add appends one response to the accumulated array. Safe to call from any
// goroutine; addResponse in the source acquires the same mutex for the
// same reason.
func (a *Aggregator) Add(resp json.RawMessage) {
	a.mu.Lock()
	a.responses = append(a.responses, resp)
	a.mu.Unlock()
}

// Release drops one reference. When the refcount reaches zero, the sink
// fires exactly once with the accumulated responses in arrival order —
// order is unspecified by the protocol; clients match by id.
func (a *Aggregator) Release() {
	if atomic.AddInt64(&a.refcount, -1) != 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&a.fired, 0, 1) {
		return
	}

	a.mu.Lock()
	responses := a.responses
	a.mu.Unlock()

	a.sink(responses)
}
