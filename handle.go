package keylessmux

import "context"

// Handle is a cheap, cloneable reference to a session. Submitting
// requests, checking closed state, and reading the terminal error are
// all safe to call concurrently from any number of cloned handles.
type Handle[Req Request, Resp Response] struct {
	s *session[Req, Resp]
}

// Clone returns a new handle referencing the same session, incrementing
// its reference count.
func (h *Handle[Req, Resp]) Clone() *Handle[Req, Resp] {
	h.s.refCount.Add(1)
	return &Handle[Req, Resp]{s: h.s}
}

// Close releases this handle. Once every clone has been closed, the
// request queue is closed, triggering the writer's graceful-shutdown
// path.
func (h *Handle[Req, Resp]) Close() {
	if h.s.refCount.Add(-1) == 0 {
		h.s.queue.close()
	}
}

// IsClosed reports whether the request queue is closed, whether from a
// fatal error or because every handle has been closed.
func (h *Handle[Req, Resp]) IsClosed() bool {
	return h.s.queue.isClosed()
}

// Error returns the session's terminal error, if any. A nil result does
// not mean the session is healthy — it may simply not have failed yet,
// or callers may be observing ordinary timeouts or shutdown, neither of
// which is an error.
func (h *Handle[Req, Resp]) Error() error {
	return h.s.errs.get()
}

// Submit stamps req with a fresh correlation id and enqueues it for
// writing, returning a Submission the caller waits on for the outcome.
// Submit blocks only long enough to enqueue the request; it never waits
// for a response.
func (h *Handle[Req, Resp]) Submit(ctx context.Context, req Req) (*Submission[Resp], error) {
	id := h.s.nextID.Add(1) - 1
	req.SetID(id)

	item := queuedRequest[Req, Resp]{
		req:     req,
		entryCh: make(chan *responseEntry[Resp], 1),
	}
	closed, err := h.s.queue.push(ctx, item)
	if err != nil {
		return nil, err
	}
	if closed {
		close(item.entryCh)
	}
	return &Submission[Resp]{entryCh: item.entryCh}, nil
}

// Submission is a single-use handle to the outcome of one submitted
// request.
type Submission[Resp Response] struct {
	entryCh chan *responseEntry[Resp]
}

// Wait blocks until the request is matched with a response, abandoned
// (queue closed before being written, evicted by the janitor, or
// drained on shutdown/failure), or ctx is done.
//
// ok is true only when resp is a genuine match. A false ok is
// indistinguishable from a timeout by design: callers must consult
// Handle.Error to learn whether the session failed.
func (s *Submission[Resp]) Wait(ctx context.Context) (resp Resp, ok bool, err error) {
	select {
	case entry, chOk := <-s.entryCh:
		if !chOk || entry == nil {
			return resp, false, nil
		}
		select {
		case r, rOk := <-entry.ch:
			if !rOk {
				return resp, false, nil
			}
			return r, true, nil
		case <-ctx.Done():
			return resp, false, ctx.Err()
		}
	case <-ctx.Done():
		return resp, false, ctx.Err()
	}
}
