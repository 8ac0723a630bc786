package chunker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readerFor(msg []byte) ReadFunc {
	return func(offset int, out []byte) bool {
		if offset < 0 || offset+len(out) > len(msg) {
			return false
		}
		copy(out, msg[offset:offset+len(out)])
		return true
	}
}

func TestSingleChunkRoundTrip(t *testing.T) {
	msg := []byte("hello world")
	buf := make([]byte, SingleChunkMessageLength(len(msg)))

	n, more, ok := Next(buf, len(msg), 0, false, readerFor(msg))
	require.True(t, ok)
	assert.False(t, more)
	assert.Equal(t, len(buf), n)

	frame, consumed, err := DecodeFrame(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, n, consumed)
	assert.False(t, frame.Continuation)
	assert.Equal(t, msg, frame.Payload)
}

func TestMultiChunkDrainsEntireMessage(t *testing.T) {
	msg := make([]byte, 500)
	for i := range msg {
		msg[i] = byte(i)
	}
	buf := make([]byte, MinChunkBufLen+10) // small MTU forces several chunks

	var reassembler Reassembler
	offset := 0
	calls := 0
	for {
		calls++
		n, more, ok := Next(buf, len(msg), offset, true, readerFor(msg))
		require.True(t, ok)
		complete, err := reassembler.Feed(buf[:n])
		require.NoError(t, err)
		offset += n - overhead
		if !more {
			assert.True(t, complete)
			break
		}
		assert.False(t, complete)
		if calls > 1000 {
			t.Fatal("did not converge")
		}
	}

	assert.Equal(t, msg, reassembler.Message())
}

func TestNextFailsWhenBufferBelowMinimum(t *testing.T) {
	buf := make([]byte, MinChunkBufLen-1)
	_, _, ok := Next(buf, 10, 0, true, readerFor(make([]byte, 10)))
	assert.False(t, ok)
}

func TestNextFailsWhenSingleChunkRequiredButBufferTooSmall(t *testing.T) {
	msg := make([]byte, 100)
	buf := make([]byte, MinChunkBufLen)
	_, _, ok := Next(buf, len(msg), 0, false, readerFor(msg))
	assert.False(t, ok, "multi_chunk=false must fail rather than silently truncate")
}

func TestDecodeFrameDetectsCRCMismatch(t *testing.T) {
	msg := []byte("abc")
	buf := make([]byte, SingleChunkMessageLength(len(msg)))
	n, _, ok := Next(buf, len(msg), 0, false, readerFor(msg))
	require.True(t, ok)

	corrupted := append([]byte(nil), buf[:n]...)
	corrupted[3] ^= 0xFF

	_, _, err := DecodeFrame(corrupted)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

func TestDecodeFrameRejectsTruncatedInput(t *testing.T) {
	msg := []byte("abcdef")
	buf := make([]byte, SingleChunkMessageLength(len(msg)))
	n, _, ok := Next(buf, len(msg), 0, false, readerFor(msg))
	require.True(t, ok)

	_, _, err := DecodeFrame(buf[:n-1])
	assert.Error(t, err)
}

// FuzzChunkRoundTrip drives spec §8's chunk round-trip property: for any
// message and any (valid) buffer size, concatenated chunker output must
// reassemble to the original message using nothing but the framing.
func FuzzChunkRoundTrip(f *testing.F) {
	f.Add([]byte("content split into several chunks to verify reassembly"), 12)
	f.Add(make([]byte, 300), MinChunkBufLen)

	f.Fuzz(func(t *testing.T, msg []byte, bufLen int) {
		if bufLen < MinChunkBufLen || bufLen > 4096 || len(msg) > 1<<16 {
			t.Skip()
		}

		buf := make([]byte, bufLen)
		var reassembler Reassembler
		offset := 0
		for {
			n, more, ok := Next(buf, len(msg), offset, true, readerFor(msg))
			if !ok {
				t.Fatalf("Next failed at offset %d", offset)
			}
			complete, err := reassembler.Feed(buf[:n])
			if err != nil {
				t.Fatalf("Feed at offset %d: %v", offset, err)
			}
			offset += n - overhead
			if !more {
				if !complete {
					t.Fatal("final chunk did not complete the message")
				}
				break
			}
		}

		got := reassembler.Message()
		if !bytes.Equal(msg, got) {
			t.Fatalf("round trip mismatch: %d bytes in, %d bytes out", len(msg), len(got))
		}
	})
}

func TestMinChunkBufLenAcceptsAtLeastTwoPayloadBytes(t *testing.T) {
	msg := []byte{1, 2}
	buf := make([]byte, MinChunkBufLen)
	n, more, ok := Next(buf, len(msg), 0, false, readerFor(msg))
	require.True(t, ok)
	assert.False(t, more)
	assert.Equal(t, MinChunkBufLen, n)
}
