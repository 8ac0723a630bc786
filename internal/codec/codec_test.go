package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	ev := Event{
		Type:        EventTypeHeartbeat,
		Schema:      SchemaVersion,
		Serial:      "DEV123",
		SWType:      "main",
		SWVersion:   "1.2.3",
		HWVersion:   "rev-b",
		CaptureTime: 1700000000,
		Info: LogInfo{
			PlainEntries: []LogEntryPlain{{Level: 1, Text: "hello"}},
		},
	}

	data, err := Marshal(ev)
	require.NoError(t, err)

	var got Event
	require.NoError(t, Unmarshal(data, &got))

	require.Equal(t, ev.Type, got.Type)
	require.Equal(t, ev.Schema, got.Schema)
	require.Equal(t, ev.Serial, got.Serial)
	require.Equal(t, ev.CaptureTime, got.CaptureTime)
}

func TestCDRMetadataRoundTrip(t *testing.T) {
	meta := CDRMetadata{
		StartTimeUnix: 1700000000,
		DurationMs:    5000,
		MimeTypes:     []string{"application/vnd.custom+bin", "application/octet-stream"},
		Reason:        TruncateReason("manual trigger"),
		DataLength:    128,
	}

	data, err := Marshal(meta)
	require.NoError(t, err)

	var got CDRMetadata
	require.NoError(t, Unmarshal(data, &got))

	if diff := cmp.Diff(meta, got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestTruncateReason(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	got := TruncateReason(string(long))
	require.Len(t, got, MaxCDRReasonLen)
}

func TestLogEntryArrayEncoding(t *testing.T) {
	entries := []LogEntryTimestamped{{UnixTime: 42, Level: 2, Text: "boot"}}
	data, err := Marshal(entries)
	require.NoError(t, err)

	var got []LogEntryTimestamped
	require.NoError(t, Unmarshal(data, &got))
	require.Equal(t, entries, got)
}
