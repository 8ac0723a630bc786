// Package devicesdk is the device-side half of a fault/telemetry
// reporting pipeline: fixed-capacity producer-side storage (coredumps,
// heartbeat events, logs, custom data recordings) drained through a
// packetizer into a chunked, CRC-verified transport-agnostic byte
// stream. Sdk is the facade a host integration constructs once at boot
// and calls into from both producer contexts (tasks, interrupt handlers)
// and the drain loop.
//
// Mirrors the teacher's root ublk package, which holds Device/Error/
// Metrics/MockBackend as the one public entry point over its internal
// packages; here Sdk plays that role over internal/eventstorage,
// internal/logbuffer, internal/logsource, internal/cdr,
// internal/packetizer, and internal/heapstats.
package devicesdk

import (
	"errors"

	"go.uber.org/multierr"

	"github.com/faultline/devicesdk/internal/cdr"
	"github.com/faultline/devicesdk/internal/codec"
	"github.com/faultline/devicesdk/internal/eventstorage"
	"github.com/faultline/devicesdk/internal/heapstats"
	"github.com/faultline/devicesdk/internal/logbuffer"
	"github.com/faultline/devicesdk/internal/logsource"
	"github.com/faultline/devicesdk/internal/packetizer"
	"github.com/faultline/devicesdk/internal/platform"
)

// Config sizes every fixed-capacity component when New builds the Sdk.
// There is no dynamic resizing afterwards, matching the teacher's fixed-topology
// DeviceParams style.
type Config struct {
	CoredumpStorageCapacity  int
	HeartbeatStorageCapacity int
	LogBufferCapacity        int
	HeapStatsCapacity        int
	CDRProducers             []cdr.Producer
	MinLogLevel              logbuffer.Level
	Observer                 Observer // optional; defaults to NoOpObserver
}

// DefaultConfig returns reasonable fixed sizes for a small embedded
// target.
func DefaultConfig() Config {
	return Config{
		CoredumpStorageCapacity:  2048,
		HeartbeatStorageCapacity: 512,
		LogBufferCapacity:        1024,
		HeapStatsCapacity:        64,
		MinLogLevel:              logbuffer.LevelInfo,
	}
}

// Sdk is the facade over the whole device-side pipeline.
type Sdk struct {
	collab platform.Collaborators
	cfg    Config

	coredump  *eventstorage.Storage
	heartbeat *eventstorage.Storage
	logs      *logbuffer.LogBuffer
	logSrc    *logsource.Source
	cdr       *cdr.Registry
	heap      *heapstats.Tracker
	pkt       *packetizer.Packetizer

	observer Observer

	activeKind   packetizer.SourceKind
	drainStartMs uint64
	chunkCount   uint64
}

// New constructs an Sdk from a host's platform collaborators and a
// Config. Call Reset instead of constructing a new Sdk to re-initialize
// in place (matching the teacher's Device lifecycle of explicit Reset
// for tests rather than reconstruction). Returns an aggregated
// *Error (code CodeInvalidInput) if collab is missing a required
// capability; every offending field is reported at once instead of
// stopping at the first one.
func New(collab platform.Collaborators, cfg Config) (*Sdk, error) {
	if err := validateCollaborators(collab); err != nil {
		return nil, WrapError("New", err)
	}
	return buildSdk(collab, cfg), nil
}

// validateCollaborators checks that every required platform capability
// (§6) is present, aggregating every missing one with multierr rather
// than failing on the first nil field, the way the teacher's backend
// construction validates its device parameters up front instead of
// surfacing them one nil-pointer-dereference at a time deep in the
// drain loop.
func validateCollaborators(collab platform.Collaborators) error {
	var err error
	if collab.Lock == nil {
		err = multierr.Append(err, errors.New("platform.Lock is required"))
	}
	if collab.Time == nil {
		err = multierr.Append(err, errors.New("platform.TimeSource is required"))
	}
	if collab.DeviceInfo == nil {
		err = multierr.Append(err, errors.New("platform.DeviceInfoProvider is required"))
	}
	if collab.LogSink == nil {
		err = multierr.Append(err, errors.New("platform.RawLogSink is required"))
	}
	if collab.BootClock == nil {
		err = multierr.Append(err, errors.New("platform.BootClock is required"))
	}
	return err
}

// buildSdk constructs an Sdk from already-validated collaborators. Split
// out of New so Reset can rebuild in place without re-validating
// collaborators it already holds.
func buildSdk(collab platform.Collaborators, cfg Config) *Sdk {
	s := &Sdk{collab: collab, cfg: cfg}
	s.observer = cfg.Observer
	if s.observer == nil {
		s.observer = NoOpObserver{}
	}

	s.coredump = eventstorage.New(cfg.CoredumpStorageCapacity)
	s.heartbeat = eventstorage.New(cfg.HeartbeatStorageCapacity)
	s.logs = logbuffer.New(cfg.LogBufferCapacity)
	s.logs.SetMinSaveLevel(cfg.MinLogLevel)
	s.logSrc = logsource.New(s.logs, collab.DeviceInfo, collab.Time)
	s.cdr = cdr.NewRegistry(cfg.CDRProducers)
	s.heap = heapstats.New(cfg.HeapStatsCapacity)

	s.pkt = packetizer.New(s.coredump, s.heartbeat, s.logSrc, cdrSourceAdapter{s.cdr})
	s.pkt.SetScrubObserver(s.observer)
	return s
}

// cdrSourceAdapter adapts cdr.Registry's MarkRead to the packetizer's
// DataSource.MarkSent shape; the two mean the same thing (release the
// currently active recording) but spec §4.5 names the CDR operation
// mark_read while §4.7 names the packetizer's uniformly mark_sent.
type cdrSourceAdapter struct {
	registry *cdr.Registry
}

func (a cdrSourceAdapter) HasMessage() (int, bool)          { return a.registry.HasMessage() }
func (a cdrSourceAdapter) Read(offset int, out []byte) bool { return a.registry.Read(offset, out) }
func (a cdrSourceAdapter) MarkSent()                        { a.registry.MarkRead() }

// Reset re-initializes every component in place, discarding all buffered
// data. Test-only; a running device never calls this in production.
// collab was already validated by the New call that produced s, so
// Reset rebuilds directly rather than re-validating it.
func (s *Sdk) Reset() {
	*s = *buildSdk(s.collab, s.cfg)
}

// SaveCoredumpEvent encodes and stores a coredump event. Acquires the
// platform lock for the duration of the structural mutation.
func (s *Sdk) SaveCoredumpEvent(event codec.Event) bool {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	return s.saveCoredumpEventNoLock(event)
}

func (s *Sdk) saveCoredumpEventNoLock(event codec.Event) bool {
	return saveEvent(s.coredump, event)
}

// SaveHeartbeatEvent encodes and stores a heartbeat event.
func (s *Sdk) SaveHeartbeatEvent(event codec.Event) bool {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	return s.saveHeartbeatEventNoLock(event)
}

func (s *Sdk) saveHeartbeatEventNoLock(event codec.Event) bool {
	return saveEvent(s.heartbeat, event)
}

func saveEvent(store *eventstorage.Storage, event codec.Event) bool {
	data, err := codec.Marshal(event)
	if err != nil {
		return false
	}
	room := store.BeginWrite()
	if room == 0 {
		return false
	}
	store.Append(data)
	store.FinishWrite(len(data) > room)
	return len(data) <= room
}

// Log saves one log entry. Acquires the platform lock for the duration
// of the structural mutation; callers already holding the lock should
// use LogNoLock.
func (s *Sdk) Log(level logbuffer.Level, recordType logbuffer.RecordType, body []byte, timestamped bool, unixSeconds int64) bool {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	return s.LogNoLock(level, recordType, body, timestamped, unixSeconds)
}

// LogNoLock is Log's body without acquiring the platform lock, for
// callers already inside a locked region.
func (s *Sdk) LogNoLock(level logbuffer.Level, recordType logbuffer.RecordType, body []byte, timestamped bool, unixSeconds int64) bool {
	before := s.logs.DroppedCount()
	ok := s.logs.Save(level, recordType, body, timestamped, unixSeconds)
	if dropped := s.logs.DroppedCount() - before; dropped > 0 {
		s.observer.ObserveLogDropped(uint64(dropped))
	}
	return ok
}

// HeartbeatTick is the collaborator hook a host integration calls on its
// own heartbeat timer: it flips the heartbeat event source's "has data"
// readiness the way memfault_metrics_reliability.c schedules periodic
// heartbeat capture, without implementing the heartbeat metric content
// itself (an out-of-scope collaborator).
func (s *Sdk) HeartbeatTick(event codec.Event) bool {
	return s.SaveHeartbeatEvent(event)
}

// HeapTrackAlloc records a tracked allocation. Deliberately does not
// acquire the platform lock: the heap tracker may be invoked from fault
// context, where taking any lock is forbidden, so it operates on its own
// pool and relies on the host's allocator hooks already being serialized.
func (s *Sdk) HeapTrackAlloc(lr, ptr uintptr, size uint32) {
	s.heap.Add(lr, ptr, size)
}

// HeapTrackFree records a tracked free. Lock-free for the same reason as
// HeapTrackAlloc.
func (s *Sdk) HeapTrackFree(ptr uintptr) {
	s.heap.Remove(ptr)
}

// HeapStats returns the heap tracker for read-only inspection (snapshot
// export, post-mortem walk).
func (s *Sdk) HeapStats() *heapstats.Tracker {
	return s.heap
}

// DataAvailable reports whether the packetizer has (or could
// immediately obtain) a message to send.
func (s *Sdk) DataAvailable() bool {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	return s.pkt.DataAvailable()
}

// beginNoLock runs Begin's body and records produced/drain-start
// bookkeeping for a freshly activated message. Caller must hold the lock.
func (s *Sdk) beginNoLock() (packetizer.Meta, bool) {
	meta, ok := s.pkt.Begin()
	if !ok {
		return meta, false
	}
	s.activeKind = meta.Source
	if !meta.SendInProgress {
		s.observer.ObserveProduced(sourceLabelFor(meta.Source))
		s.drainStartMs = s.collab.BootClock.SinceBootMs()
		s.chunkCount = 0
	}
	return meta, true
}

// Begin activates the next available message for drain.
func (s *Sdk) Begin() (packetizer.Meta, bool) {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	return s.beginNoLock()
}

// getNextNoLock runs GetNext's body, recording drain latency and chunk
// count against the active source when the message completes. Caller
// must hold the lock.
func (s *Sdk) getNextNoLock(buf []byte) (int, packetizer.GetNextResult) {
	n, result := s.pkt.GetNext(buf)
	if result != packetizer.NoMoreData {
		s.chunkCount++
	}
	if result == packetizer.EndOfChunk {
		elapsedMs := s.collab.BootClock.SinceBootMs() - s.drainStartMs
		s.observer.ObserveSent(sourceLabelFor(s.activeKind), elapsedMs*1_000_000, s.chunkCount)
	}
	return n, result
}

// GetNext pulls the next chunk of the active message into buf and
// reports how many bytes of buf it filled.
func (s *Sdk) GetNext(buf []byte) (int, packetizer.GetNextResult) {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	return s.getNextNoLock(buf)
}

// GetChunk is the single-chunk convenience wrapper: Begin if needed, then
// one chunk, always in single-chunk mode.
func (s *Sdk) GetChunk(buf []byte) (int, packetizer.GetNextResult, bool) {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()

	if _, ok := s.beginNoLock(); !ok {
		return 0, packetizer.NoMoreData, false
	}

	s.pkt.SetMultiChunk(false)
	n, result := s.getNextNoLock(buf)
	s.pkt.SetMultiChunk(true)
	return n, result, true
}

// Abort drops the in-progress message without marking it sent.
func (s *Sdk) Abort() {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	s.pkt.Abort()
}

// SetRLEPolicy installs (or, with nil, removes) the packetizer's
// optional run-length-encoding policy; wrapping is opaque to callers
// beyond the header bit the receiver already understands.
func (s *Sdk) SetRLEPolicy(policy packetizer.RLEPolicy) {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	s.pkt.SetRLEPolicy(policy)
}

// SetActiveSources restricts the packetizer's poll order to a subset.
func (s *Sdk) SetActiveSources(mask packetizer.SourceMask) {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	s.pkt.SetActiveSources(mask)
}

// ExportLogs drains every unread log entry through the platform's raw
// log sink: compact entries base64-wrapped in ML markers, preformatted
// entries passed through verbatim.
func (s *Sdk) ExportLogs() {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	s.logs.ExportUnsent(s.collab.LogSink)
}

// TriggerLogCollection forces the log data source to snapshot unsent
// entries, making them available to the packetizer's log source slot
// ahead of the next Begin.
func (s *Sdk) TriggerLogCollection() {
	s.collab.Lock.Lock()
	defer s.collab.Lock.Unlock()
	s.logSrc.TriggerCollection()
}

func sourceLabelFor(kind packetizer.SourceKind) SourceLabel {
	switch kind {
	case packetizer.SourceCoredump:
		return SourceLabelCoredump
	case packetizer.SourceHeartbeat:
		return SourceLabelHeartbeat
	case packetizer.SourceCDR:
		return SourceLabelCDR
	default:
		return SourceLabelLog
	}
}
