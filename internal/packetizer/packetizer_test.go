package packetizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/devicesdk/internal/chunker"
	"github.com/faultline/devicesdk/internal/rle"
)

type fakeSource struct {
	payload   []byte
	available bool
	markSent  int
	failAt    int // offset at which Read starts failing, -1 disables
}

func newFakeSource(data string) *fakeSource {
	return &fakeSource{payload: []byte(data), available: true, failAt: -1}
}

func (f *fakeSource) HasMessage() (int, bool) {
	if !f.available {
		return 0, false
	}
	return len(f.payload), true
}

func (f *fakeSource) Read(offset int, out []byte) bool {
	if f.failAt >= 0 && offset+len(out) > f.failAt {
		return false
	}
	if offset < 0 || offset+len(out) > len(f.payload) {
		return false
	}
	copy(out, f.payload[offset:offset+len(out)])
	return true
}

func (f *fakeSource) MarkSent() {
	f.markSent++
	f.available = false
}

func drainAll(t *testing.T, p *Packetizer, bufLen int) []byte {
	t.Helper()
	var all []byte
	meta, ok := p.Begin()
	require.True(t, ok)
	buf := make([]byte, bufLen)
	for {
		n, result := p.GetNext(buf)
		require.NotEqual(t, NoMoreData, result)

		frame, consumed, err := chunker.DecodeFrame(buf[:n])
		require.NoError(t, err)
		require.Equal(t, n, consumed, "GetNext's byte count must match the frame's own length")
		all = append(all, frame.Payload...)
		_ = meta
		if result == EndOfChunk {
			break
		}
	}
	return all
}

func TestPollOrderPicksFirstSourceWithData(t *testing.T) {
	heartbeat := newFakeSource("hb")
	log := newFakeSource("log-data")
	p := New(nil, heartbeat, log, nil)

	meta, ok := p.Begin()
	require.True(t, ok)
	assert.Equal(t, SourceHeartbeat, meta.Source)
}

func TestBeginFailsWhenNothingAvailable(t *testing.T) {
	p := New(nil, nil, nil, nil)
	_, ok := p.Begin()
	assert.False(t, ok)
}

func TestHeaderByteEncodesSourceKind(t *testing.T) {
	coredump := newFakeSource("core")
	p := New(coredump, nil, nil, nil)

	got := drainAll(t, p, chunker.SingleChunkMessageLength(5)+1)
	require.NotEmpty(t, got)
	assert.Equal(t, byte(0x01), got[0]&0x7F, "coredump is wire source kind 1")
	assert.Equal(t, "core", string(got[1:]))
}

// TestHeaderByteWireValuesAreOneBased pins the header byte's low nibble
// to spec.md §3/§6's literal wire values (1=coredump, 2=heartbeat,
// 3=log, 4=CDR), not SourceKind's own 0-based iota -- cmd/devicesdk-inspect
// decodes against these literal values, so a self-referential comparison
// against SourceCoredump etc. would pass even if the encoding were
// shifted by one.
func TestHeaderByteWireValuesAreOneBased(t *testing.T) {
	cases := []struct {
		name    string
		build   func(payload string) *Packetizer
		wireLow byte
	}{
		{"coredump", func(s string) *Packetizer { return New(newFakeSource(s), nil, nil, nil) }, 1},
		{"heartbeat", func(s string) *Packetizer { return New(nil, newFakeSource(s), nil, nil) }, 2},
		{"log", func(s string) *Packetizer { return New(nil, nil, newFakeSource(s), nil) }, 3},
		{"cdr", func(s string) *Packetizer { return New(nil, nil, nil, newFakeSource(s)) }, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.build("x")
			got := drainAll(t, p, chunker.SingleChunkMessageLength(1)+1)
			require.NotEmpty(t, got)
			assert.Equal(t, tc.wireLow, got[0]&0x0F)
		})
	}
}

func TestGetNextMarksSentOnFinalChunk(t *testing.T) {
	log := newFakeSource("entire message")
	p := New(nil, nil, log, nil)

	drainAll(t, p, chunker.SingleChunkMessageLength(len(log.payload))+1)
	assert.Equal(t, 1, log.markSent)
}

func TestMultiChunkDrainReassemblesFullHeaderedMessage(t *testing.T) {
	log := newFakeSource(string(make([]byte, 300)))
	p := New(nil, nil, log, nil)

	got := drainAll(t, p, chunker.MinChunkBufLen+5)
	assert.Equal(t, 1+len(log.payload), len(got))
}

func TestAbortDoesNotMarkSentAndReoffersMessage(t *testing.T) {
	log := newFakeSource("resend me")
	p := New(nil, nil, log, nil)

	_, ok := p.Begin()
	require.True(t, ok)
	buf := make([]byte, chunker.MinChunkBufLen)
	p.GetNext(buf)

	p.Abort()
	assert.Equal(t, 0, log.markSent)

	meta, ok := p.Begin()
	require.True(t, ok)
	assert.Equal(t, SourceLog, meta.Source)
	assert.False(t, meta.SendInProgress, "abort must reset readOffset so the message restarts from zero")
}

func TestGetNextBelowMinBufReturnsNoMoreDataWithoutCorruptingState(t *testing.T) {
	log := newFakeSource("x")
	p := New(nil, nil, log, nil)
	p.Begin()

	tooSmall := make([]byte, chunker.MinChunkBufLen-1)
	n, result := p.GetNext(tooSmall)
	assert.Equal(t, NoMoreData, result)
	assert.Zero(t, n)

	ok := func() bool { _, ok := p.Begin(); return ok }()
	assert.True(t, ok, "state must remain usable after an undersized GetNext call")
}

func TestSourceReadFailureFillsSentinelInsteadOfAborting(t *testing.T) {
	log := newFakeSource("abcdefgh")
	log.failAt = 3
	p := New(nil, nil, log, nil)

	buf := make([]byte, chunker.SingleChunkMessageLength(len(log.payload))+1)
	p.Begin()
	_, result := p.GetNext(buf)
	assert.NotEqual(t, NoMoreData, result, "a source read failure must not abort the drain")
}

type countingScrubObserver struct{ count int }

func (o *countingScrubObserver) ObserveChunkScrubbed() { o.count++ }

func TestSourceReadFailureNotifiesScrubObserver(t *testing.T) {
	log := newFakeSource("abcdefgh")
	log.failAt = 3
	p := New(nil, nil, log, nil)
	obs := &countingScrubObserver{}
	p.SetScrubObserver(obs)

	buf := make([]byte, chunker.SingleChunkMessageLength(len(log.payload))+1)
	p.Begin()
	p.GetNext(buf)

	assert.Equal(t, 1, obs.count)
}

func TestSetActiveSourcesAbortsInProgressMessage(t *testing.T) {
	log := newFakeSource(string(make([]byte, 300)))
	p := New(nil, nil, log, nil)

	p.Begin()
	buf := make([]byte, chunker.MinChunkBufLen+5)
	_, result := p.GetNext(buf)
	require.Equal(t, MoreDataForChunk, result)

	p.SetActiveSources(AllSources &^ (1 << SourceLog))
	assert.Equal(t, 0, log.markSent)

	_, ok := p.Begin()
	assert.False(t, ok, "log source excluded by the new mask must not be offered")
}

func TestDataAvailableTrueWhenMessageActive(t *testing.T) {
	log := newFakeSource("x")
	p := New(nil, nil, log, nil)
	p.Begin()
	log.available = false // source itself now has nothing, but a message is mid-flight
	assert.True(t, p.DataAvailable())
}

type alwaysWrapPolicy struct{}

func (alwaysWrapPolicy) ShouldWrap(int) bool { return true }

func TestRLEPolicySetsHeaderBitAndDecodesBack(t *testing.T) {
	log := newFakeSource("aaaaaaaaaaaaaaaaaaaabbbb")
	p := New(nil, nil, log, nil)
	p.SetRLEPolicy(alwaysWrapPolicy{})

	meta, ok := p.Begin()
	require.True(t, ok)
	require.Less(t, meta.SingleChunkMessageLength, 1+len(log.payload),
		"a run-heavy payload must shrink under RLE")

	got := drainAll(t, p, chunker.SingleChunkMessageLength(meta.SingleChunkMessageLength))
	require.NotEmpty(t, got)
	assert.NotZero(t, got[0]&0x80, "RLE flag must be set in the packetizer header")
	assert.Equal(t, log.payload, rle.Decode(got[1:]))
}

func TestGetChunkAlwaysSingleChunk(t *testing.T) {
	log := newFakeSource(string(make([]byte, 300)))
	p := New(nil, nil, log, nil)

	buf := make([]byte, chunker.SingleChunkMessageLength(len(log.payload))+1)
	n, result, ok := p.GetChunk(buf)
	require.True(t, ok)
	assert.Equal(t, EndOfChunk, result)
	assert.Equal(t, chunker.SingleChunkMessageLength(len(log.payload)+1), n)
}
