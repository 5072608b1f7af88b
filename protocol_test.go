package keylessmux

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeylessRequestBytesRoundTrip(t *testing.T) {
	req := NewKeylessRequest([]byte("hello"))
	req.SetID(42)

	require.Equal(t, uint32(42), req.ID())

	buf := req.Bytes()
	require.Len(t, buf, frameHeaderSize+len("hello"))

	var scratch []byte
	resp, err := ReadKeylessResponse(context.Background(), bytes.NewReader(buf), &scratch)
	require.NoError(t, err)
	require.Equal(t, uint32(42), resp.ID())
	require.Equal(t, []byte("hello"), resp.Payload)
}

func TestReadKeylessResponseEmptyPayload(t *testing.T) {
	req := NewKeylessRequest(nil)
	req.SetID(7)

	var scratch []byte
	resp, err := ReadKeylessResponse(context.Background(), bytes.NewReader(req.Bytes()), &scratch)
	require.NoError(t, err)
	require.Equal(t, uint32(7), resp.ID())
	require.Empty(t, resp.Payload)
}

func TestReadKeylessResponseScratchReuse(t *testing.T) {
	var scratch []byte

	req1 := NewKeylessRequest(bytes.Repeat([]byte("a"), 4))
	req1.SetID(1)
	resp1, err := ReadKeylessResponse(context.Background(), bytes.NewReader(req1.Bytes()), &scratch)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte("a"), 4), resp1.Payload)

	req2 := NewKeylessRequest(bytes.Repeat([]byte("b"), 64))
	req2.SetID(2)
	resp2, err := ReadKeylessResponse(context.Background(), bytes.NewReader(req2.Bytes()), &scratch)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte("b"), 64), resp2.Payload)
}

func TestReadKeylessResponseTruncated(t *testing.T) {
	req := NewKeylessRequest([]byte("payload"))
	req.SetID(1)
	buf := req.Bytes()

	var scratch []byte
	_, err := ReadKeylessResponse(context.Background(), bytes.NewReader(buf[:frameHeaderSize+2]), &scratch)
	require.Error(t, err)
}

func TestReadKeylessResponseOversizedPayload(t *testing.T) {
	hdr := make([]byte, frameHeaderSize)
	// Claim an absurd payload length without supplying it.
	hdr[4] = 0xFF
	hdr[5] = 0xFF
	hdr[6] = 0xFF
	hdr[7] = 0xFF

	var scratch []byte
	_, err := ReadKeylessResponse(context.Background(), bytes.NewReader(hdr), &scratch)
	require.Error(t, err)
}
