package keylessmux

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderSize is id(4) + payload length(4).
const frameHeaderSize = 8

// KeylessRequest is a minimal length-prefixed request frame: a 4-byte
// big-endian correlation id followed by a 4-byte big-endian payload
// length and the payload itself. It stands in for the production
// Cloudflare keyless wire format, whose exact framing is out of scope.
type KeylessRequest struct {
	id      uint32
	payload []byte
}

// NewKeylessRequest wraps an opaque payload for submission. The
// correlation id is assigned later by the multiplexer.
func NewKeylessRequest(payload []byte) *KeylessRequest {
	return &KeylessRequest{payload: payload}
}

func (r *KeylessRequest) SetID(id uint32) { r.id = id }
func (r *KeylessRequest) ID() uint32      { return r.id }

// Bytes serializes the request. The returned slice is freshly allocated
// on each call since the multiplexer may retain a reference to it until
// the write completes.
func (r *KeylessRequest) Bytes() []byte {
	buf := make([]byte, frameHeaderSize+len(r.payload))
	binary.BigEndian.PutUint32(buf[0:4], r.id)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(r.payload)))
	copy(buf[frameHeaderSize:], r.payload)
	return buf
}

// KeylessResponse is the response counterpart of KeylessRequest.
type KeylessResponse struct {
	id      uint32
	Payload []byte
}

func (r KeylessResponse) ID() uint32 { return r.id }

// ReadKeylessResponse reads exactly one KeylessRequest-framed response
// from r. scratch is reused as a read buffer across calls; callers
// should pass the same *[]byte on every call for a given reader.
func ReadKeylessResponse(ctx context.Context, r io.Reader, scratch *[]byte) (KeylessResponse, error) {
	if cap(*scratch) < frameHeaderSize {
		*scratch = make([]byte, frameHeaderSize)
	}
	hdr := (*scratch)[:frameHeaderSize]
	if _, err := io.ReadFull(r, hdr); err != nil {
		return KeylessResponse{}, fmt.Errorf("reading frame header: %w", err)
	}
	id := binary.BigEndian.Uint32(hdr[0:4])
	n := binary.BigEndian.Uint32(hdr[4:8])

	const maxPayload = 1 << 24
	if n > maxPayload {
		return KeylessResponse{}, fmt.Errorf("frame payload too large: %d bytes", n)
	}

	if cap(*scratch) < int(n) {
		*scratch = make([]byte, n)
	}
	payload := (*scratch)[:n]
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return KeylessResponse{}, fmt.Errorf("reading frame payload: %w", err)
		}
	}

	out := make([]byte, n)
	copy(out, payload)
	return KeylessResponse{id: id, Payload: out}, nil
}
