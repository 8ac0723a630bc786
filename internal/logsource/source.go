// Package logsource implements the Log Data Source of spec §4.4: it
// snapshots the currently-unsent entries of a log buffer, freezes the
// buffer against eviction for the duration, and encodes that snapshot
// once, serving every Read call from the cached bytes so chunked reads
// stay coherent even though the chunker may call Read many times across
// several packetizer drains.
package logsource

import (
	"github.com/faultline/devicesdk/internal/codec"
	"github.com/faultline/devicesdk/internal/logbuffer"
	"github.com/faultline/devicesdk/internal/platform"
)

// State is the Log Data Source's Idle/Triggered state machine (§4.4).
type State int

const (
	StateIdle State = iota
	StateTriggered
)

// Source is the Data Source adapter over a LogBuffer.
type Source struct {
	lb         *logbuffer.LogBuffer
	deviceInfo platform.DeviceInfoProvider
	timeSource platform.TimeSource

	state      State
	start, end int
	encoded    []byte // cached encoding of the current snapshot, nil until first HasMessage
}

// New returns a Source over lb using the given platform collaborators.
func New(lb *logbuffer.LogBuffer, deviceInfo platform.DeviceInfoProvider, timeSource platform.TimeSource) *Source {
	return &Source{lb: lb, deviceInfo: deviceInfo, timeSource: timeSource}
}

// TriggerCollection captures a snapshot of all entries with sent==0 and
// freezes the log buffer against eviction until MarkSent. A no-op if
// every committed entry already has sent==1.
//
// start is the first unsent entry's offset, not 0: entries sent by a
// prior trigger/mark-sent cycle stay resident in the ring (mark-sent only
// flips a bit, it doesn't evict), so snapshotting from the head would
// silently re-include and re-transmit already-delivered entries.
func (s *Source) TriggerCollection() {
	if s.state == StateTriggered {
		return
	}
	if !s.lb.HasUnsent() {
		return
	}
	s.lb.Freeze()
	s.start = s.lb.FirstUnsentOffset()
	s.end = s.lb.Len()
	s.state = StateTriggered
	s.encoded = nil
}

// HasMessage reports whether a snapshot is active and, if so, its total
// encoded size.
func (s *Source) HasMessage() (size int, ok bool) {
	if s.state != StateTriggered {
		return 0, false
	}
	if s.encoded == nil {
		s.encoded = s.encode()
	}
	return len(s.encoded), true
}

// Read copies the snapshot's encoded bytes at [offset, offset+len(out)).
func (s *Source) Read(offset int, out []byte) bool {
	size, ok := s.HasMessage()
	if !ok {
		return false
	}
	if offset < 0 || offset+len(out) > size {
		return false
	}
	copy(out, s.encoded[offset:offset+len(out)])
	return true
}

// MarkSent flips the sent bit on every snapshotted entry (making them
// evictable again), unfreezes the log buffer, and returns to Idle.
func (s *Source) MarkSent() {
	if s.state != StateTriggered {
		return
	}
	s.lb.MarkSentInRange(s.start, s.end)
	s.lb.Unfreeze()
	s.state = StateIdle
	s.encoded = nil
}

// encode builds the tagged CBOR container for the snapshotted range: a
// flat array of log entries plus event metadata. The event type (plain
// vs timestamped) is chosen by whether any snapshotted entry carries a
// timestamp, per §4.4.
func (s *Source) encode() []byte {
	var plain []codec.LogEntryPlain
	var stamped []codec.LogEntryTimestamped
	anyTimestamped := false

	s.lb.ForEachInRange(s.start, s.end, func(_ int, h logbuffer.Header, unixSeconds int64, text []byte) {
		if h.Timestamped {
			anyTimestamped = true
		}
		stamped = append(stamped, codec.LogEntryTimestamped{
			UnixTime: unixSeconds,
			Level:    int(h.Level),
			Text:     string(text),
		})
		plain = append(plain, codec.LogEntryPlain{
			Level: int(h.Level),
			Text:  string(text),
		})
	})

	info := codec.LogInfo{}
	eventType := codec.EventTypeLogPlain
	if anyTimestamped {
		eventType = codec.EventTypeLogTimestamped
		info.TimestampedEntries = stamped
	} else {
		info.PlainEntries = plain
	}

	dev := s.deviceInfo.DeviceInfo()
	captureTime := int64(0)
	if t := s.timeSource.Now(); t.Kind == platform.TimeCurrent {
		captureTime = t.UnixSeconds
	}

	event := codec.Event{
		Type:        eventType,
		Schema:      codec.SchemaVersion,
		Serial:      dev.Serial,
		SWType:      dev.SWType,
		SWVersion:   dev.SWVersion,
		HWVersion:   dev.HWVersion,
		CaptureTime: captureTime,
		Info:        info,
	}

	data, err := codec.Marshal(event)
	if err != nil {
		// Encoding a closed, self-contained struct cannot fail in practice;
		// an empty message is safer than panicking inside a drain loop.
		return nil
	}
	return data
}
