package devicesdk

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets are the drain-latency histogram buckets in nanoseconds,
// covering begin()-to-final-mark_sent() duration from 1us to 10s.
// Carried over verbatim from the teacher's bucket spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// sourceMetrics is the per-source counter set (one instance per packetizer
// source kind: coredump, heartbeat, log, CDR).
type sourceMetrics struct {
	MessagesProduced atomic.Uint64
	MessagesSent     atomic.Uint64
	ChunksSent       atomic.Uint64
}

// Metrics tracks operational statistics for the device pipeline: adapted
// from the teacher's Metrics/MetricsSnapshot/Observer trio, with the
// block-device I/O counters replaced by this domain's per-source message
// and chunk counts, dropped-log bookkeeping, and scrub-on-read-failure
// counts.
type Metrics struct {
	Coredump  sourceMetrics
	Heartbeat sourceMetrics
	Log       sourceMetrics
	CDR       sourceMetrics

	LogDropped     atomic.Uint64 // log entries evicted unread or dropped while the buffer was frozen
	ChunksScrubbed atomic.Uint64 // chunks whose source read failed and were sentinel-filled

	TotalDrainLatencyNs atomic.Uint64
	DrainCount          atomic.Uint64
	LatencyHistogram    [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a new, zeroed Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordProduced records that a source produced a new message.
func (m *Metrics) RecordProduced(kind SourceLabel) {
	m.sourceFor(kind).MessagesProduced.Add(1)
}

// RecordSent records a full-message drain (begin-to-mark_sent) and its
// latency, and rolls the latency into the histogram.
func (m *Metrics) RecordSent(kind SourceLabel, latencyNs uint64, chunkCount uint64) {
	sm := m.sourceFor(kind)
	sm.MessagesSent.Add(1)
	sm.ChunksSent.Add(chunkCount)
	m.TotalDrainLatencyNs.Add(latencyNs)
	m.DrainCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogram[i].Add(1)
		}
	}
}

// RecordLogDropped records log entries evicted unread or dropped while
// the log buffer was frozen.
func (m *Metrics) RecordLogDropped(n uint64) {
	m.LogDropped.Add(n)
}

// RecordChunkScrubbed records a chunk whose source read failed and was
// filled with the sentinel pattern instead of aborting the drain.
func (m *Metrics) RecordChunkScrubbed() {
	m.ChunksScrubbed.Add(1)
}

// SourceLabel identifies which packetizer source a metric belongs to.
type SourceLabel int

const (
	SourceLabelCoredump SourceLabel = iota
	SourceLabelHeartbeat
	SourceLabelLog
	SourceLabelCDR
)

func (m *Metrics) sourceFor(kind SourceLabel) *sourceMetrics {
	switch kind {
	case SourceLabelCoredump:
		return &m.Coredump
	case SourceLabelHeartbeat:
		return &m.Heartbeat
	case SourceLabelCDR:
		return &m.CDR
	default:
		return &m.Log
	}
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics for
// inspection or export.
type MetricsSnapshot struct {
	Coredump, Heartbeat, Log, CDR struct {
		MessagesProduced, MessagesSent, ChunksSent uint64
	}

	LogDropped     uint64
	ChunksScrubbed uint64
	AvgDrainNs     uint64
	UptimeNs       uint64
}

func snapshotSource(sm *sourceMetrics) (out struct{ MessagesProduced, MessagesSent, ChunksSent uint64 }) {
	out.MessagesProduced = sm.MessagesProduced.Load()
	out.MessagesSent = sm.MessagesSent.Load()
	out.ChunksSent = sm.ChunksSent.Load()
	return out
}

// Snapshot creates a point-in-time snapshot of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot
	snap.Coredump = snapshotSource(&m.Coredump)
	snap.Heartbeat = snapshotSource(&m.Heartbeat)
	snap.Log = snapshotSource(&m.Log)
	snap.CDR = snapshotSource(&m.CDR)
	snap.LogDropped = m.LogDropped.Load()
	snap.ChunksScrubbed = m.ChunksScrubbed.Load()

	if count := m.DrainCount.Load(); count > 0 {
		snap.AvgDrainNs = m.TotalDrainLatencyNs.Load() / count
	}
	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())
	return snap
}

// Observer allows pluggable metrics collection, mirroring the teacher's
// Observer/NoOpObserver pattern so a host integration can route counters
// to its own telemetry system instead of (or in addition to) Metrics.
type Observer interface {
	ObserveProduced(kind SourceLabel)
	ObserveSent(kind SourceLabel, latencyNs uint64, chunkCount uint64)
	ObserveLogDropped(n uint64)
	ObserveChunkScrubbed()
}

// NoOpObserver discards everything.
type NoOpObserver struct{}

func (NoOpObserver) ObserveProduced(SourceLabel)             {}
func (NoOpObserver) ObserveSent(SourceLabel, uint64, uint64) {}
func (NoOpObserver) ObserveLogDropped(uint64)                {}
func (NoOpObserver) ObserveChunkScrubbed()                   {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveProduced(kind SourceLabel) { o.metrics.RecordProduced(kind) }
func (o *MetricsObserver) ObserveSent(kind SourceLabel, latencyNs, chunkCount uint64) {
	o.metrics.RecordSent(kind, latencyNs, chunkCount)
}
func (o *MetricsObserver) ObserveLogDropped(n uint64) { o.metrics.RecordLogDropped(n) }
func (o *MetricsObserver) ObserveChunkScrubbed()      { o.metrics.RecordChunkScrubbed() }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
