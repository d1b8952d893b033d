// Package correlate issues identifiers for the two asynchronous exchanges
// this client runs over UDP: node IDs naming synths created on scsynth, and
// request IDs pairing interpreter questions with their eventual answers.
package correlate

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout reports that no answer arrived within the wait window. Callers
// treat it differently from a delivered failure: the request may still have
// succeeded on the other side.
var ErrTimeout = errors.New("request timed out")

// nodeIDFloor is the bottom of the ID range reserved for this client, above
// anything scsynth allocates internally.
const nodeIDFloor = 1_000_000

// Result is the answer to one interpreter request.
type Result struct {
	OK     bool
	Output string
}

// Engine hands out monotonically increasing node and request IDs and tracks
// pending requests until their answers arrive or time out.
//
// A pending request is a buffered cap-1 channel: it is both the wait
// primitive and the single result slot, so an answer can be delivered
// without blocking the dispatch goroutine and at most one result ever
// exists per request ID.
type Engine struct {
	nodeMu sync.Mutex
	nodeID int64

	reqMu   sync.Mutex
	reqID   int64
	pending map[int64]chan Result
}

// NewEngine seeds the node-ID counter from the wall clock so IDs do not
// collide across process restarts: the low 20 bits of the current
// millisecond count, shifted into the reserved high range.
func NewEngine(now time.Time) *Engine {
	ms := now.UnixMilli()
	return &Engine{
		nodeID:  nodeIDFloor + (ms&0xFFFFF)*1000,
		pending: make(map[int64]chan Result),
	}
}

// NextNodeID returns the next node ID. Thread-safe, strictly increasing,
// always greater than 1,000,000. IDs are never reused; scsynth owns the
// lifecycle of the node itself.
func (e *Engine) NextNodeID() int64 {
	e.nodeMu.Lock()
	defer e.nodeMu.Unlock()
	e.nodeID++
	return e.nodeID
}

// Issue allocates the next request ID and registers a wait channel for it.
func (e *Engine) Issue() (int64, <-chan Result) {
	e.reqMu.Lock()
	defer e.reqMu.Unlock()
	e.reqID++
	id := e.reqID
	ch := make(chan Result, 1)
	e.pending[id] = ch
	return id, ch
}

// Await blocks until the answer for id arrives on ch or timeout elapses.
// On timeout the pending entry is removed so a late answer is discarded
// instead of accumulating.
func (e *Engine) Await(id int64, ch <-chan Result, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		e.reqMu.Lock()
		delete(e.pending, id)
		e.reqMu.Unlock()
		return Result{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// Deliver hands an answer to the waiter for id. Answers with no pending
// waiter (timed out, cancelled, or never issued) are discarded and Deliver
// reports false; nothing is stored for them, which caps memory growth from
// late or duplicate replies.
func (e *Engine) Deliver(id int64, ok bool, output string) bool {
	e.reqMu.Lock()
	ch, found := e.pending[id]
	if found {
		delete(e.pending, id)
	}
	e.reqMu.Unlock()
	if !found {
		return false
	}
	ch <- Result{OK: ok, Output: output}
	return true
}

// Cancel removes a pending request that will never be answered, e.g. when
// the outbound send itself failed.
func (e *Engine) Cancel(id int64) {
	e.reqMu.Lock()
	delete(e.pending, id)
	e.reqMu.Unlock()
}

// Pending reports the number of outstanding requests.
func (e *Engine) Pending() int {
	e.reqMu.Lock()
	defer e.reqMu.Unlock()
	return len(e.pending)
}
