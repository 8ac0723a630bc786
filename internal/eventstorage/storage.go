// Package eventstorage implements the transactional, variable-length
// record ring described in spec §4.2: a single writer state machine whose
// reader is exposed as a Data Source (has_message/read/mark_sent).
//
// Grounded on jeffswenson-pebble/record/record.go's length-prefixed chunk
// framing (each stored record is {length, payload}, a record.Reader walks
// committed chunks from the head) adapted from the teacher's
// internal/ctrl single-open-transaction exclusivity pattern (only one
// control command in flight at a time, mirrored here as only one write
// transaction open at a time).
package eventstorage

import (
	"encoding/binary"

	"github.com/faultline/devicesdk/internal/ring"
)

const headerSize = 2 // uint16 length prefix

// Storage is a ring buffer plus a single in-progress write cursor.
type Storage struct {
	ring *ring.Buffer

	writing         bool
	reservedPayload int
	writtenLen      int
}

// New allocates a Storage backed by a ring of the given capacity.
func New(capacity int) *Storage {
	return &Storage{ring: ring.New(capacity)}
}

// Reset empties the storage and aborts any in-progress write. Test-only.
func (s *Storage) Reset() {
	s.ring.Reset()
	s.writing = false
	s.reservedPayload = 0
	s.writtenLen = 0
}

// BeginWrite opens a new write transaction and returns the space available
// for the payload (excluding the 2-byte length header). Returns 0 without
// side effects if a write is already open, or if not even the header
// would fit.
func (s *Storage) BeginWrite() int {
	if s.writing {
		return 0
	}
	free := s.ring.WriteSize()
	if free < headerSize {
		return 0
	}
	payloadCap := free - headerSize
	reserved := make([]byte, headerSize+payloadCap)
	if !s.ring.Write(reserved) {
		return 0
	}
	s.writing = true
	s.reservedPayload = payloadCap
	s.writtenLen = 0
	return payloadCap
}

// Append appends p to the in-progress transaction. Bytes beyond the space
// reserved by BeginWrite are silently dropped. No-op if no write is open.
func (s *Storage) Append(p []byte) {
	if !s.writing || len(p) == 0 {
		return
	}
	room := s.reservedPayload - s.writtenLen
	if room <= 0 {
		return
	}
	n := len(p)
	if n > room {
		n = room
	}
	offsetFromEnd := s.reservedPayload - s.writtenLen
	s.ring.WriteAtOffsetFromEnd(offsetFromEnd, p[:n])
	s.writtenLen += n
}

// FinishWrite commits the in-progress transaction (writing its length
// header and releasing any unused reserved tail back to free space) or
// discards it entirely when rollback is true. Idempotent when no write is
// open.
func (s *Storage) FinishWrite(rollback bool) {
	if !s.writing {
		return
	}
	s.writing = false
	total := headerSize + s.reservedPayload

	if rollback {
		s.ring.Rewind(total)
		s.reservedPayload, s.writtenLen = 0, 0
		return
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(s.writtenLen))
	s.ring.WriteAtOffsetFromEnd(total, hdr[:])

	if unused := s.reservedPayload - s.writtenLen; unused > 0 {
		s.ring.Rewind(unused)
	}
	s.reservedPayload, s.writtenLen = 0, 0
}

// committedLen returns the number of ring bytes that belong to fully
// committed records, excluding any in-progress reservation.
func (s *Storage) committedLen() int {
	n := s.ring.Len()
	if s.writing {
		n -= headerSize + s.reservedPayload
	}
	return n
}

// HasMessage reports whether at least one committed record exists and, if
// so, its payload length. Idempotent and side-effect free.
func (s *Storage) HasMessage() (size int, ok bool) {
	avail := s.committedLen()
	if avail < headerSize {
		return 0, false
	}
	var hdr [headerSize]byte
	if !s.ring.Read(0, hdr[:]) {
		return 0, false
	}
	length := int(binary.LittleEndian.Uint16(hdr[:]))
	if avail < headerSize+length {
		return 0, false
	}
	return length, true
}

// Read copies out the payload bytes [offset, offset+len(out)) of the head
// record. Returns false if there is no head record or the range is out
// of bounds.
func (s *Storage) Read(offset int, out []byte) bool {
	size, ok := s.HasMessage()
	if !ok {
		return false
	}
	if offset < 0 || offset+len(out) > size {
		return false
	}
	return s.ring.Read(headerSize+offset, out)
}

// MarkSent discards the head record, if any.
func (s *Storage) MarkSent() {
	size, ok := s.HasMessage()
	if !ok {
		return
	}
	s.ring.Consume(headerSize + size)
}
