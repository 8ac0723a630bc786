// Package chunker implements §4.6: splitting one framed message into one
// or more self-delimiting, CRC-verifiable chunks, and (via Reassembler)
// the inverse operation used by the inspector CLI and by tests that want
// to round-trip a capture.
//
// Framing (concrete per SPEC_FULL §3.6, since spec.md leaves the layout
// implementation-defined): 1-byte flags (bit0 = "more chunks follow"),
// 2-byte little-endian payload length, the payload itself, then a 4-byte
// CRC32 (IEEE) trailer covering flags+length+payload. Grounded on
// jeffswenson-pebble/record/record.go's checksum+length+type block
// framing, adapted from its fixed block size to an arbitrary per-call
// MTU.
package chunker

import (
	"encoding/binary"
	"fmt"

	"github.com/faultline/devicesdk/internal/crc"
)

// MinChunkBufLen is the smallest caller buffer an implementation must
// accept, per spec §4.6: 1 (flags) + 2 (length) + 4 (CRC) overhead plus
// at least 2 payload bytes.
const MinChunkBufLen = 9

const overhead = 1 + 2 + 4 // flags + length + crc trailer

// FrameOverhead is the number of non-payload bytes in every chunk frame
// (flags + length + CRC trailer), exposed so callers can translate
// between a chunk's wire length and the payload bytes it advanced.
const FrameOverhead = overhead

const continuationBit = 0x01

// ReadFunc streams len(out) bytes of the source message starting at
// offset, as supplied by the packetizer over whichever source is
// currently being drained.
type ReadFunc func(offset int, out []byte) bool

// SingleChunkMessageLength returns the total framed length a message of
// totalSize bytes would occupy if sent as exactly one chunk, for
// transports that need to announce content-length up front.
func SingleChunkMessageLength(totalSize int) int {
	return overhead + totalSize
}

// Next writes one framed chunk of the message described by (totalSize,
// read) into buf, starting at byte offset within the unframed message.
// Returns the number of bytes written to buf, whether more chunks remain
// after this one, and whether the call succeeded.
//
// If the remaining message would not fit in a single chunk and
// multiChunk is false, the call fails: the caller's buffer is too small
// for single-chunk transport and the message cannot be split further in
// that mode.
func Next(buf []byte, totalSize, offset int, multiChunk bool, read ReadFunc) (n int, more bool, ok bool) {
	if len(buf) < MinChunkBufLen {
		return 0, false, false
	}
	if offset < 0 || offset > totalSize {
		return 0, false, false
	}

	payloadCap := len(buf) - overhead
	remaining := totalSize - offset
	take := remaining
	if take > payloadCap {
		take = payloadCap
	}

	continuation := remaining > take
	if continuation && !multiChunk {
		return 0, false, false
	}

	var flags byte
	if continuation {
		flags |= continuationBit
	}

	buf[0] = flags
	binary.LittleEndian.PutUint16(buf[1:3], uint16(take))
	if !read(offset, buf[3:3+take]) {
		return 0, false, false
	}

	var c crc.State
	c = c.Update(buf[:3+take])
	binary.LittleEndian.PutUint32(buf[3+take:3+take+4], uint32(c))

	return 3 + take + 4, continuation, true
}

// Frame is one decoded chunk, as produced by DecodeFrame.
type Frame struct {
	Payload      []byte
	Continuation bool
}

// ErrCRCMismatch indicates a chunk's trailer did not match its computed
// CRC, i.e. the frame bytes changed after Next produced them. A source
// read failure upstream does not cause it: the packetizer fills the
// unreadable bytes with a sentinel before Next computes the CRC.
var ErrCRCMismatch = fmt.Errorf("chunker: CRC mismatch")

// DecodeFrame parses exactly one chunk from the front of buf, returning
// the frame and the number of bytes consumed.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < overhead {
		return Frame{}, 0, fmt.Errorf("chunker: buffer shorter than minimum frame overhead")
	}
	flags := buf[0]
	length := int(binary.LittleEndian.Uint16(buf[1:3]))
	total := 3 + length + 4
	if len(buf) < total {
		return Frame{}, 0, fmt.Errorf("chunker: truncated frame: need %d bytes, have %d", total, len(buf))
	}

	var c crc.State
	c = c.Update(buf[:3+length])
	want := binary.LittleEndian.Uint32(buf[3+length : total])
	if uint32(c) != want {
		return Frame{}, total, ErrCRCMismatch
	}

	payload := make([]byte, length)
	copy(payload, buf[3:3+length])
	return Frame{Payload: payload, Continuation: flags&continuationBit != 0}, total, nil
}

// Reassembler accumulates decoded chunk payloads across calls until a
// non-continuation chunk completes the message.
type Reassembler struct {
	buf  []byte
	done bool
}

// Feed decodes one frame from chunk and appends its payload. Reports
// whether the message is now complete.
func (r *Reassembler) Feed(chunk []byte) (complete bool, err error) {
	frame, _, err := DecodeFrame(chunk)
	if err != nil {
		return false, err
	}
	r.buf = append(r.buf, frame.Payload...)
	r.done = !frame.Continuation
	return r.done, nil
}

// Message returns the reassembled message bytes once Feed has reported
// completion.
func (r *Reassembler) Message() []byte {
	return r.buf
}

// Reset clears accumulated state for reuse across messages.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.done = false
}
