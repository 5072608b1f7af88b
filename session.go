package keylessmux

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	sbufio "github.com/sagernet/sing/common/bufio"

	"github.com/rs/zerolog"
)

// session is the shared state referenced by the writer, reader, and
// janitor goroutines and by every cloned Handle. Exactly one instance
// exists per call to StartTransfer.
type session[Req Request, Resp Response] struct {
	queue *requestQueue[Req, Resp]
	table *pendingTable[Resp]
	errs  errorSlot

	nextID   atomic.Uint32
	refCount atomic.Int32

	cfg Config
	log zerolog.Logger

	writerReady chan struct{}
	ioDone      sync.WaitGroup
	done        chan struct{}
}

// StartTransfer constructs a multiplexed session over r/w and spawns
// its writer, reader, and janitor goroutines. It blocks until the
// writer has published its readiness, so the returned handle can never
// race an unscheduled writer goroutine.
func StartTransfer[Req Request, Resp Response](r io.Reader, w io.Writer, cfg Config, decode Decoder[Resp]) *Handle[Req, Resp] {
	cfg = cfg.withDefaults()

	s := &session[Req, Resp]{
		queue:       newRequestQueue[Req, Resp](cfg.QueueCapacity),
		table:       newPendingTable[Resp](),
		cfg:         cfg,
		log:         resolveLogger(cfg).With().Str("component", "keylessmux.session").Logger(),
		writerReady: make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.refCount.Store(1)
	s.ioDone.Add(2)

	go s.writerLoop(w)
	go s.readerLoop(r, decode)
	go func() {
		s.ioDone.Wait()
		close(s.done)
	}()
	go s.janitorLoop()

	<-s.writerReady
	return &Handle[Req, Resp]{s: s}
}

// writerLoop drains the request queue, writes each request, and
// registers a pending-response entry on success.
func (s *session[Req, Resp]) writerLoop(w io.Writer) {
	defer s.ioDone.Done()
	close(s.writerReady)

	bw, vectorised := sbufio.CreateVectorisedWriter(w)
	var vec [][]byte
	if vectorised {
		vec = make([][]byte, 1)
	}

	for {
		item, closed := s.queue.pop()
		if closed {
			s.writerShutdown(w)
			return
		}

		buf := item.req.Bytes()
		var err error
		if vectorised {
			vec[0] = buf
			_, err = sbufio.WriteVectorised(bw, vec)
		} else {
			err = writeFull(w, buf)
		}
		if err != nil {
			s.writerFailed(item, err, w)
			return
		}

		entry := s.table.insert(item.req.ID())
		item.entryCh <- entry
		close(item.entryCh)
	}
}

// writeFull loops on short writes. io.Writer's contract already
// forbids returning n < len(p) with a nil error, but the loop costs
// nothing and matches how this codebase writes elsewhere.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// writerShutdown implements the graceful-shutdown path: the queue is
// closed (all handles dropped or a failure elsewhere), so we give
// outstanding responses one request-timeout grace period to arrive at
// the reader before shutting down the write half.
func (s *session[Req, Resp]) writerShutdown(w io.Writer) {
	s.log.Info().Msg("queue closed, entering shutdown grace period")
	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()
	<-timer.C
	tryCloseWrite(w)
}

// writerFailed is the writer's fatal-error path: it closes the queue,
// wakes the in-flight item, drains everything else, and publishes the
// error.
func (s *session[Req, Resp]) writerFailed(item queuedRequest[Req, Resp], err error, w io.Writer) {
	s.log.Error().Err(err).Msg("write failed, closing session")
	s.queue.close()
	close(item.entryCh)
	s.drainAbandoned()
	s.errs.setIfEmpty(&WriteError{Err: err})
	tryCloseWrite(w)
}

// readerLoop reads framed responses and routes them to their
// originating caller by correlation id.
func (s *session[Req, Resp]) readerLoop(r io.Reader, decode Decoder[Resp]) {
	defer s.ioDone.Done()

	var scratch []byte
	ctx := context.Background()
	for {
		resp, err := decode(ctx, r, &scratch)
		if err != nil {
			s.log.Error().Err(err).Msg("response read failed, closing session")
			s.queue.close()
			s.errs.setIfEmpty(&ResponseError{Err: err})
			s.drainAbandoned()
			return
		}
		s.table.deliverTo(resp.ID(), resp)
	}
}

// janitorLoop evicts pending-response entries older than RequestTimeout
// on a fixed tick, independent of caller polling behavior.
func (s *session[Req, Resp]) janitorLoop() {
	ticker := time.NewTicker(s.cfg.RequestTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.table.evictExpired(s.cfg.RequestTimeout); n > 0 {
				s.log.Debug().Int("evicted", n).Msg("evicted expired pending responses")
			}
		case <-s.done:
			return
		}
	}
}

// drainAbandoned wakes every caller still waiting, whether its request
// is sitting in the queue (never written) or already in the pending
// table (written, awaiting a response that will never come).
func (s *session[Req, Resp]) drainAbandoned() {
	s.table.drainAll()
	s.queue.drainAll(func(item queuedRequest[Req, Resp]) {
		close(item.entryCh)
	})
}

// tryCloseWrite best-effort half-closes the write side of w, if it
// supports it.
func tryCloseWrite(w io.Writer) {
	switch wc := w.(type) {
	case interface{ CloseWrite() error }:
		_ = wc.CloseWrite()
	case io.Closer:
		_ = wc.Close()
	}
}
