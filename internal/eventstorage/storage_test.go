package eventstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioA is the event-storage single-event scenario from spec §8.
func TestScenarioA(t *testing.T) {
	s := New(11)

	require.Equal(t, 9, s.BeginWrite())
	require.Equal(t, 0, s.BeginWrite(), "second BeginWrite while open must return 0")

	s.Append([]byte{1, 2, 3, 4})
	s.FinishWrite(false)

	size, ok := s.HasMessage()
	require.True(t, ok)
	require.Equal(t, 4, size)

	out := make([]byte, 4)
	require.True(t, s.Read(0, out))
	assert.Equal(t, []byte{1, 2, 3, 4}, out)

	s.MarkSent()

	_, ok = s.HasMessage()
	assert.False(t, ok)
}

func TestRollbackLeavesReaderUnchanged(t *testing.T) {
	s := New(32)

	s.BeginWrite()
	s.Append([]byte("first"))
	s.FinishWrite(false)

	before, ok := s.HasMessage()
	require.True(t, ok)

	s.BeginWrite()
	s.Append([]byte("second, discarded"))
	s.FinishWrite(true)

	after, ok := s.HasMessage()
	require.True(t, ok)
	assert.Equal(t, before, after)

	out := make([]byte, after)
	require.True(t, s.Read(0, out))
	assert.Equal(t, "first", string(out))
}

func TestAppendBeyondReservedSpaceIsDropped(t *testing.T) {
	s := New(10)
	room := s.BeginWrite()
	s.Append(make([]byte, room+10))
	s.FinishWrite(false)

	size, ok := s.HasMessage()
	require.True(t, ok)
	assert.Equal(t, room, size)
}

func TestFinishWriteIdempotentWithoutOpenTransaction(t *testing.T) {
	s := New(16)
	assert.NotPanics(t, func() {
		s.FinishWrite(false)
		s.FinishWrite(true)
	})
	_, ok := s.HasMessage()
	assert.False(t, ok)
}

func TestMultipleRecordsFIFO(t *testing.T) {
	s := New(64)

	for _, word := range []string{"one", "two", "three"} {
		s.BeginWrite()
		s.Append([]byte(word))
		s.FinishWrite(false)
	}

	for _, want := range []string{"one", "two", "three"} {
		size, ok := s.HasMessage()
		require.True(t, ok)
		out := make([]byte, size)
		require.True(t, s.Read(0, out))
		assert.Equal(t, want, string(out))
		s.MarkSent()
	}

	_, ok := s.HasMessage()
	assert.False(t, ok)
}

func TestBeginWriteTooSmallForHeader(t *testing.T) {
	s := New(1)
	assert.Equal(t, 0, s.BeginWrite())
}
