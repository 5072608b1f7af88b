// Package keylessmux implements an asynchronous request/response
// multiplexer over a single full-duplex byte stream. Many concurrent
// callers submit logical requests; one writer goroutine serializes them
// onto the stream, one reader goroutine demultiplexes framed responses
// back to their originating caller by correlation id, and one janitor
// goroutine evicts requests that never receive an answer.
package keylessmux

import (
	"context"
	"io"
)

// Request is the boundary a caller's request type must satisfy. The
// multiplexer never inspects a request's internal structure beyond its
// correlation id and its serialized form.
type Request interface {
	// SetID stamps the request with the correlation id the multiplexer
	// assigned it. Called exactly once, before the request is written.
	SetID(id uint32)
	// ID returns the correlation id previously set by SetID.
	ID() uint32
	// Bytes returns the fully-serialized on-wire form of the request.
	Bytes() []byte
}

// Response is the boundary a caller's response type must satisfy.
type Response interface {
	// ID returns the correlation id recovered while parsing the frame.
	ID() uint32
}

// Decoder reads exactly one framed response from r, reusing scratch as
// a growable read buffer across calls to avoid repeated allocation.
type Decoder[Resp Response] func(ctx context.Context, r io.Reader, scratch *[]byte) (Resp, error)
