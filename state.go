package keylessmux

import (
	"sync"
	"time"
)

// responseEntry bridges a written-but-unanswered request and its
// awaiting caller. ch carries the response payload; closing ch without
// a prior send is the "woken with no payload" outcome (timeout,
// shutdown drain). Sending on ch before closing it satisfies
// store-before-wake.
type responseEntry[Resp Response] struct {
	ch      chan Resp
	created time.Time
}

func newResponseEntry[Resp Response]() *responseEntry[Resp] {
	return &responseEntry[Resp]{
		ch:      make(chan Resp, 1),
		created: time.Now(),
	}
}

// deliver stores resp and wakes the waiting caller. Must be called at
// most once per entry.
func (e *responseEntry[Resp]) deliver(resp Resp) {
	e.ch <- resp
	close(e.ch)
}

// abandon wakes the waiting caller with no payload. Must be called at
// most once per entry, and never after deliver.
func (e *responseEntry[Resp]) abandon() {
	close(e.ch)
}

// pendingTable is the mutex-guarded correlation-id -> responseEntry map
// shared by the writer (insert), reader (lookup+remove+deliver), and
// janitor (scan+remove+abandon).
type pendingTable[Resp Response] struct {
	mu      sync.Mutex
	entries map[uint32]*responseEntry[Resp]
}

func newPendingTable[Resp Response]() *pendingTable[Resp] {
	return &pendingTable[Resp]{entries: make(map[uint32]*responseEntry[Resp])}
}

// insert registers a fresh entry for id, returning it so the caller can
// be handed its channel to await on.
func (t *pendingTable[Resp]) insert(id uint32) *responseEntry[Resp] {
	e := newResponseEntry[Resp]()
	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()
	return e
}

// deliverTo looks up id, removes it if present, and delivers resp to
// it. Reports whether an entry was found.
func (t *pendingTable[Resp]) deliverTo(id uint32, resp Resp) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.deliver(resp)
	return true
}

// evictExpired removes and abandons every entry older than maxAge,
// returning the number evicted.
func (t *pendingTable[Resp]) evictExpired(maxAge time.Duration) int {
	now := time.Now()
	t.mu.Lock()
	var stale []*responseEntry[Resp]
	for id, e := range t.entries {
		if now.Sub(e.created) > maxAge {
			stale = append(stale, e)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()
	for _, e := range stale {
		e.abandon()
	}
	return len(stale)
}

// drainAll removes and abandons every remaining entry. Used on fatal
// shutdown paths.
func (t *pendingTable[Resp]) drainAll() {
	t.mu.Lock()
	all := t.entries
	t.entries = make(map[uint32]*responseEntry[Resp])
	t.mu.Unlock()
	for _, e := range all {
		e.abandon()
	}
}

// errorSlot holds at most one terminal error. Write-once-effective: the
// first setIfEmpty wins, later calls are no-ops.
type errorSlot struct {
	mu  sync.Mutex
	err error
}

func (s *errorSlot) setIfEmpty(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *errorSlot) get() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
