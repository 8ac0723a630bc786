// Package logbuffer implements the typed, level-filtered log ring with
// per-entry read/sent bits described in spec §4.3: eviction under
// pressure, a freeze flag that blocks eviction during a snapshot, and a
// dropped-message counter surfaced as a synthetic warning on read.
//
// Grounded on the teacher's internal/queue buffer-lifecycle pattern
// (fixed backing storage, explicit Reset for tests) and on
// jeffswenson-pebble/record/record.go's walk-the-ring-and-decode-headers
// shape, adapted to mutate entry headers in place instead of only
// streaming them out.
package logbuffer

import (
	"encoding/binary"
	"fmt"

	"github.com/faultline/devicesdk/internal/platform"
	"github.com/faultline/devicesdk/internal/ring"
)

// MaxLineSaveLen is the largest body (text, or text+timestamp) a single
// entry can hold; the wire length field is one byte.
const MaxLineSaveLen = 255

const entryHeaderSize = 2 // hdr byte + len byte
const timestampSize = 4

// Level is the log level ordering used by both the save-time filter and
// entry headers. The original implementation's enum ordering
// (Debug < Info < Warning < Error) is adopted verbatim since spec.md
// leaves the concrete level set unspecified.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// RecordType distinguishes preformatted text entries from compact CBOR
// entries.
type RecordType int

const (
	RecordPreformatted RecordType = iota
	RecordCompact
)

const (
	hdrLevelMask     = 0x07
	hdrRecordTypeBit = 0x08
	hdrTimestampBit  = 0x10
	hdrSentBit       = 0x40
	hdrReadBit       = 0x80
)

// Header is the decoded form of an entry's hdr byte.
type Header struct {
	Level       Level
	RecordType  RecordType
	Timestamped bool
	Sent        bool
	Read        bool
}

func decodeHeader(b byte) Header {
	return Header{
		Level:       Level(b & hdrLevelMask),
		RecordType:  RecordType((b >> 3) & 0x01),
		Timestamped: b&hdrTimestampBit != 0,
		Sent:        b&hdrSentBit != 0,
		Read:        b&hdrReadBit != 0,
	}
}

func (h Header) encode() byte {
	var b byte
	b |= byte(h.Level) & hdrLevelMask
	if h.RecordType == RecordCompact {
		b |= hdrRecordTypeBit
	}
	if h.Timestamped {
		b |= hdrTimestampBit
	}
	if h.Sent {
		b |= hdrSentBit
	}
	if h.Read {
		b |= hdrReadBit
	}
	return b
}

// Entry is a fully decoded log entry returned by Read.
type Entry struct {
	Header      Header
	UnixSeconds int64
	Text        []byte
	Synthetic   bool // true for the synthetic "messages dropped" warning
}

// SavedCallback is invoked after a successful Save (the weak
// "saved-callback hook" of §4.3 step 6).
type SavedCallback func(Entry)

// LogBuffer is a ring of log entries plus read-tracking state.
type LogBuffer struct {
	ring            *ring.Buffer
	readOffset      int
	droppedMsgCount int
	freeze          bool
	minSaveLevel    Level
	initialized     bool

	SavedCallback SavedCallback
}

// New allocates an initialized LogBuffer backed by a ring of the given
// capacity, with the default minimum save level (Info).
func New(capacity int) *LogBuffer {
	return &LogBuffer{
		ring:         ring.New(capacity),
		minSaveLevel: LevelInfo,
		initialized:  true,
	}
}

// Reset empties the buffer and clears all read/eviction state. Test-only.
func (lb *LogBuffer) Reset() {
	lb.ring.Reset()
	lb.readOffset = 0
	lb.droppedMsgCount = 0
	lb.freeze = false
}

// SetMinSaveLevel sets the level filter; entries below it are dropped at
// save time.
func (lb *LogBuffer) SetMinSaveLevel(level Level) {
	lb.minSaveLevel = level
}

// DroppedCount returns the number of entries lost since the last
// synthetic dropped-count warning was consumed by Read.
func (lb *LogBuffer) DroppedCount() int {
	return lb.droppedMsgCount
}

// Len returns the number of committed bytes currently held; used by the
// log data source to record a snapshot's end offset.
func (lb *LogBuffer) Len() int {
	return lb.ring.Len()
}

// Freeze blocks eviction of any entry until Unfreeze is called.
func (lb *LogBuffer) Freeze() {
	lb.freeze = true
}

// Unfreeze lifts a freeze set by Freeze.
func (lb *LogBuffer) Unfreeze() {
	lb.freeze = false
}

// Frozen reports whether eviction is currently blocked.
func (lb *LogBuffer) Frozen() bool {
	return lb.freeze
}

// Save writes one entry. body is truncated to MaxLineSaveLen bytes (minus
// 4 if timestamped). Returns false if the entry was dropped (buffer not
// initialized, below the level filter, frozen with insufficient space, or
// too large to ever fit).
func (lb *LogBuffer) Save(level Level, recordType RecordType, body []byte, timestamped bool, unixSeconds int64) bool {
	if !lb.initialized || level < lb.minSaveLevel {
		return false
	}

	maxText := MaxLineSaveLen
	if timestamped {
		maxText -= timestampSize
	}
	text := body
	if len(text) > maxText {
		text = text[:maxText]
	}

	bodyLen := len(text)
	if timestamped {
		bodyLen += timestampSize
	}
	required := entryHeaderSize + bodyLen

	if lb.ring.WriteSize() < required {
		if lb.freeze {
			lb.droppedMsgCount++
			return false
		}
		lb.evictUntil(required)
		if lb.ring.WriteSize() < required {
			// Cannot ever fit (required exceeds total capacity).
			return false
		}
	}

	hdr := Header{Level: level, RecordType: recordType, Timestamped: timestamped}
	buf := make([]byte, 0, required)
	buf = append(buf, hdr.encode(), byte(bodyLen))
	if timestamped {
		var ts [timestampSize]byte
		binary.LittleEndian.PutUint32(ts[:], uint32(unixSeconds))
		buf = append(buf, ts[:]...)
	}
	buf = append(buf, text...)
	lb.ring.Write(buf)

	entry := Entry{Header: hdr, UnixSeconds: unixSeconds, Text: text}
	if lb.SavedCallback != nil {
		lb.SavedCallback(entry)
	}
	return true
}

// evictUntil evicts head entries until at least `required` bytes of free
// space exist or the ring is empty.
func (lb *LogBuffer) evictUntil(required int) {
	for lb.ring.WriteSize() < required && lb.ring.Len() >= entryHeaderSize {
		var hb [entryHeaderSize]byte
		if !lb.ring.Read(0, hb[:]) {
			return
		}
		h := decodeHeader(hb[0])
		bodyLen := int(hb[1])
		total := entryHeaderSize + bodyLen

		if h.Read {
			lb.readOffset -= total
			if lb.readOffset < 0 {
				lb.readOffset = 0
			}
		} else {
			lb.droppedMsgCount++
		}
		lb.ring.Consume(total)
	}
}

// Read returns the next entry to deliver: first any pending
// dropped-message warning (resetting the counter), then the next entry
// whose read bit is unset (marking it read in place and advancing
// readOffset). The returned Header is the entry's header as it was before
// the read bit was set. Returns false when there is nothing left to
// deliver.
func (lb *LogBuffer) Read(out *Entry) bool {
	if lb.droppedMsgCount > 0 {
		n := lb.droppedMsgCount
		lb.droppedMsgCount = 0
		msg := fmt.Sprintf("... %d messages dropped ...", n)
		if len(msg) > MaxLineSaveLen {
			msg = msg[:MaxLineSaveLen]
		}
		*out = Entry{
			Header:    Header{Level: LevelWarning, RecordType: RecordPreformatted},
			Text:      []byte(msg),
			Synthetic: true,
		}
		return true
	}

	pos := lb.readOffset
	for pos+entryHeaderSize <= lb.ring.Len() {
		var hb [entryHeaderSize]byte
		if !lb.ring.Read(pos, hb[:]) {
			return false
		}
		h := decodeHeader(hb[0])
		bodyLen := int(hb[1])
		total := entryHeaderSize + bodyLen

		if !h.Read {
			textOff := pos + entryHeaderSize
			var ts int64
			if h.Timestamped {
				var tb [timestampSize]byte
				lb.ring.Read(textOff, tb[:])
				ts = int64(binary.LittleEndian.Uint32(tb[:]))
				textOff += timestampSize
				bodyLen -= timestampSize
			}
			text := make([]byte, bodyLen)
			lb.ring.Read(textOff, text)

			delivered := h
			h.Read = true
			lb.setHeaderAt(pos, h)
			lb.readOffset = pos + total

			*out = Entry{Header: delivered, UnixSeconds: ts, Text: text}
			return true
		}
		pos += total
	}
	return false
}

// setHeaderAt patches a single entry's header byte in place.
func (lb *LogBuffer) setHeaderAt(pos int, h Header) {
	b := [1]byte{h.encode()}
	offsetFromEnd := lb.ring.Len() - pos
	lb.ring.WriteAtOffsetFromEnd(offsetFromEnd, b[:])
}

// ForEachInRange walks committed entries within the byte range [start,
// end) — normally a snapshot captured by the log data source — invoking
// fn with each entry's position and decoded view. Entries appended after
// end (while the snapshot is frozen) are not visited.
func (lb *LogBuffer) ForEachInRange(start, end int, fn func(pos int, h Header, unixSeconds int64, text []byte)) {
	pos := start
	for pos+entryHeaderSize <= end {
		var hb [entryHeaderSize]byte
		if !lb.ring.Read(pos, hb[:]) {
			return
		}
		h := decodeHeader(hb[0])
		bodyLen := int(hb[1])
		textOff := pos + entryHeaderSize
		var ts int64
		if h.Timestamped {
			var tb [timestampSize]byte
			lb.ring.Read(textOff, tb[:])
			ts = int64(binary.LittleEndian.Uint32(tb[:]))
			textOff += timestampSize
			bodyLen -= timestampSize
		}
		text := make([]byte, bodyLen)
		lb.ring.Read(textOff, text)
		fn(pos, h, ts, text)
		pos += entryHeaderSize + int(hb[1])
	}
}

// MarkSentInRange sets the sent bit on every entry within [start, end).
// Used by the log data source when its snapshot is acknowledged.
func (lb *LogBuffer) MarkSentInRange(start, end int) {
	pos := start
	for pos+entryHeaderSize <= end {
		var hb [entryHeaderSize]byte
		if !lb.ring.Read(pos, hb[:]) {
			return
		}
		h := decodeHeader(hb[0])
		h.Sent = true
		lb.setHeaderAt(pos, h)
		pos += entryHeaderSize + int(hb[1])
	}
}

// FirstUnsentOffset returns the byte offset of the first committed entry
// whose sent bit is clear, or Len() if every committed entry has already
// been sent. Sent entries form a contiguous prefix from offset 0 (every
// trigger/mark-sent cycle sends a contiguous range starting where the
// previous one left off), so a linear scan from the head always lands on
// the correct boundary. Used by the log data source to snapshot only the
// unsent suffix instead of re-including already-sent entries still
// resident in the ring.
func (lb *LogBuffer) FirstUnsentOffset() int {
	pos := 0
	for pos+entryHeaderSize <= lb.ring.Len() {
		var hb [entryHeaderSize]byte
		if !lb.ring.Read(pos, hb[:]) {
			return pos
		}
		h := decodeHeader(hb[0])
		if !h.Sent {
			return pos
		}
		pos += entryHeaderSize + int(hb[1])
	}
	return pos
}

// HasUnsent reports whether any committed entry in [0, Len()) has its
// sent bit clear, used by the log data source to decide whether
// triggering a collection is worthwhile.
func (lb *LogBuffer) HasUnsent() bool {
	found := false
	lb.ForEachInRange(0, lb.ring.Len(), func(_ int, h Header, _ int64, _ []byte) {
		if !h.Sent {
			found = true
		}
	})
	return found
}

// ExportUnsent drains every not-yet-read entry through sink, formatting
// compact entries as base64 wrapped in "ML:...:" and preformatted entries
// as raw passthrough text, matching the original implementation's export
// path.
func (lb *LogBuffer) ExportUnsent(sink platform.RawLogSink) {
	for {
		var e Entry
		if !lb.Read(&e) {
			return
		}
		sink.LogRaw(formatExport(e))
	}
}
