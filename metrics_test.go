package devicesdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshotStartsZero(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	assert.Zero(t, snap.Log.MessagesProduced)
	assert.Zero(t, snap.LogDropped)
}

func TestRecordProducedAndSent(t *testing.T) {
	m := NewMetrics()
	m.RecordProduced(SourceLabelLog)
	m.RecordSent(SourceLabelLog, 5_000_000, 3)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Log.MessagesProduced)
	assert.Equal(t, uint64(1), snap.Log.MessagesSent)
	assert.Equal(t, uint64(3), snap.Log.ChunksSent)
}

func TestRecordSentTracksAverageLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordSent(SourceLabelCoredump, 1_000_000, 1)
	m.RecordSent(SourceLabelCoredump, 3_000_000, 1)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2_000_000), snap.AvgDrainNs)
}

func TestRecordLogDroppedAndScrubbed(t *testing.T) {
	m := NewMetrics()
	m.RecordLogDropped(4)
	m.RecordChunkScrubbed()
	m.RecordChunkScrubbed()

	snap := m.Snapshot()
	assert.Equal(t, uint64(4), snap.LogDropped)
	assert.Equal(t, uint64(2), snap.ChunksScrubbed)
}

func TestMetricsObserverRoutesToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveProduced(SourceLabelCDR)
	obs.ObserveSent(SourceLabelCDR, 2_000_000, 1)
	obs.ObserveLogDropped(1)
	obs.ObserveChunkScrubbed()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.CDR.MessagesProduced)
	assert.Equal(t, uint64(1), snap.CDR.MessagesSent)
	assert.Equal(t, uint64(1), snap.LogDropped)
	assert.Equal(t, uint64(1), snap.ChunksScrubbed)
}

func TestNoOpObserverDoesNothing(t *testing.T) {
	var obs Observer = NoOpObserver{}
	assert.NotPanics(t, func() {
		obs.ObserveProduced(SourceLabelLog)
		obs.ObserveSent(SourceLabelLog, 1, 1)
		obs.ObserveLogDropped(1)
		obs.ObserveChunkScrubbed()
	})
}
