package keylessmux

import (
	"context"
	"sync"
)

// queuedRequest pairs a submitted request with a single-use handoff
// channel. The writer goroutine sends the pendingTable entry it created
// for this request on entryCh once the request has been fully written,
// transferring ownership of "how this request's outcome is delivered"
// from the queue to the table: before entryCh fires the request is
// live only in the queue, after it fires only in the table, so the two
// collections never both own it at once. A request abandoned before
// being written (queue drained on failure, or never popped before
// shutdown) has entryCh closed without a value instead.
type queuedRequest[Req Request, Resp Response] struct {
	req     Req
	entryCh chan *responseEntry[Resp]
}

// requestQueue is a bounded, closeable, multi-producer single-consumer
// queue backed by a mutex-guarded slice rather than a bare channel: a
// channel send/receive and a check of "is it closed" are two separate
// operations, and driving both through independent channels (one for
// items, one for close) lets a send and a close race each other — a
// push can land in the buffer in the same instant the queue is marked
// closed, and nothing then reads it back out. Putting the buffer and
// the closed flag under one lock makes close atomic with respect to
// every push and pop: once close returns, no push will ever again see
// closed == false. This is the mutex+deque fallback spec.md §9 calls
// out as sufficient — "the lock-free variant is a performance
// optimization, not a correctness requirement".
//
// Blocking waiters (a push waiting for room, a pop waiting for an item)
// park on a notify channel that is closed and replaced under the lock
// every time the buffer or the closed flag changes, waking every
// waiter to re-check its condition. This is the channel-swap substitute
// for a sync.Cond that still composes with context cancellation.
type requestQueue[Req Request, Resp Response] struct {
	mu     sync.Mutex
	buf    []queuedRequest[Req, Resp]
	cap    int
	closed bool
	notify chan struct{}
}

func newRequestQueue[Req Request, Resp Response](capacity int) *requestQueue[Req, Resp] {
	return &requestQueue[Req, Resp]{
		cap:    capacity,
		notify: make(chan struct{}),
	}
}

// wakeLocked must be called with mu held after any state change that
// could unblock a push or pop waiter.
func (q *requestQueue[Req, Resp]) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// close marks the queue closed. Idempotent.
func (q *requestQueue[Req, Resp]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.wakeLocked()
	}
}

func (q *requestQueue[Req, Resp]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// tryPush attempts a non-blocking push. accepted reports whether item
// was buffered; closedNow reports whether the queue was already closed
// (in which case accepted is always false).
func (q *requestQueue[Req, Resp]) tryPush(item queuedRequest[Req, Resp]) (accepted, closedNow bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, true
	}
	if len(q.buf) >= q.cap {
		return false, false
	}
	q.buf = append(q.buf, item)
	q.wakeLocked()
	return true, false
}

// push blocks until item is accepted, the queue is closed, or ctx is
// done. A blocked push is exactly the back-pressure mechanism: waking
// every parked waiter on each pop is the "substitute a general wake of
// all waiting producers" alternative spec.md §9 calls out as equally
// defensible to the original's single specific-producer rewake.
func (q *requestQueue[Req, Resp]) push(ctx context.Context, item queuedRequest[Req, Resp]) (closed bool, err error) {
	for {
		accepted, closedNow := q.tryPush(item)
		if accepted {
			return false, nil
		}
		if closedNow {
			return true, nil
		}

		q.mu.Lock()
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// tryPop attempts a non-blocking pop. ok reports whether item was
// populated; closedEmpty reports the queue is closed with nothing left
// buffered (in which case ok is always false).
func (q *requestQueue[Req, Resp]) tryPop() (item queuedRequest[Req, Resp], ok, closedEmpty bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) > 0 {
		item = q.buf[0]
		q.buf[0] = queuedRequest[Req, Resp]{}
		q.buf = q.buf[1:]
		q.wakeLocked()
		return item, true, false
	}
	if q.closed {
		return item, false, true
	}
	return item, false, false
}

// pop blocks until an item is available or the queue is closed with
// nothing left buffered.
func (q *requestQueue[Req, Resp]) pop() (item queuedRequest[Req, Resp], closed bool) {
	for {
		item, ok, closedEmpty := q.tryPop()
		if ok {
			return item, false
		}
		if closedEmpty {
			return item, true
		}

		q.mu.Lock()
		ch := q.notify
		q.mu.Unlock()
		<-ch
	}
}

// drainAll empties any items still buffered, invoking fn on each. Used
// on the fatal shutdown and shutdown-drain paths.
func (q *requestQueue[Req, Resp]) drainAll(fn func(queuedRequest[Req, Resp])) {
	q.mu.Lock()
	items := q.buf
	q.buf = nil
	q.wakeLocked()
	q.mu.Unlock()
	for _, item := range items {
		fn(item)
	}
}
