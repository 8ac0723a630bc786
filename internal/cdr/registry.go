// Package cdr implements the custom data recording registry of spec
// §4.5: a fixed, statically-configured slice of producers is polled in
// registration order on drain, the first producer reporting data
// becomes the active source for the remainder of that drain, and its
// metadata is serialized once up front so reads can be served from a
// single `encoded_metadata || raw_recording_bytes` view with the offset
// translated across the boundary.
//
// Grounded on the teacher's fixed-topology configuration style
// (Device.NumQueues set once at AddDevice time, never resized) applied
// here to producers: NewRegistry takes a closed slice, not a live
// registration API.
package cdr

import "github.com/faultline/devicesdk/internal/codec"

// Meta describes one available recording, as reported by a producer's
// HasCDR call.
type Meta struct {
	StartTimeUnix int64
	DurationMs    uint32
	MimeTypes     []string
	Reason        string
	DataLength    uint32
}

// Producer is the narrow interface a CDR source implements (§4.5).
// While a producer's recording is active (between HasCDR reporting data
// and the matching MarkRead), it must not change its reported size or
// content.
type Producer interface {
	// HasCDR reports whether a recording is ready, filling meta when true.
	HasCDR() (meta Meta, ok bool)
	// ReadData copies len(out) bytes starting at offset from the raw
	// recording. Returns false if the range is out of bounds.
	ReadData(offset int, out []byte) bool
	// MarkRead releases the producer's recording, making it eligible to
	// report a new one on a future HasCDR poll.
	MarkRead()
}

// Registry polls a fixed set of producers in registration order and
// exposes the first one with data as a single byte-addressable source.
type Registry struct {
	producers []Producer

	active      Producer
	meta        Meta
	encodedMeta []byte
}

// NewRegistry returns a Registry over a fixed, closed set of producers.
func NewRegistry(producers []Producer) *Registry {
	return &Registry{producers: producers}
}

// HasMessage polls producers in order if none is currently active, and
// reports the combined size of encoded_metadata||raw_recording_bytes
// for whichever producer is active.
func (r *Registry) HasMessage() (size int, ok bool) {
	if r.active == nil {
		for _, p := range r.producers {
			if meta, has := p.HasCDR(); has {
				r.activate(p, meta)
				break
			}
		}
	}
	if r.active == nil {
		return 0, false
	}
	return len(r.encodedMeta) + int(r.meta.DataLength), true
}

func (r *Registry) activate(p Producer, meta Meta) {
	r.active = p
	r.meta = meta
	encoded, err := codec.Marshal(codec.CDRMetadata{
		StartTimeUnix: meta.StartTimeUnix,
		DurationMs:    meta.DurationMs,
		MimeTypes:     meta.MimeTypes,
		Reason:        codec.TruncateReason(meta.Reason),
		DataLength:    meta.DataLength,
	})
	if err != nil {
		encoded = nil
	}
	r.encodedMeta = encoded
}

// Read copies bytes from the combined metadata+payload view, translating
// offset across the metadata/payload boundary as needed.
func (r *Registry) Read(offset int, out []byte) bool {
	size, ok := r.HasMessage()
	if !ok || offset < 0 || offset+len(out) > size {
		return false
	}

	metaLen := len(r.encodedMeta)
	n := 0
	if offset < metaLen {
		fromMeta := metaLen - offset
		if fromMeta > len(out) {
			fromMeta = len(out)
		}
		copy(out[:fromMeta], r.encodedMeta[offset:offset+fromMeta])
		n = fromMeta
	}
	if n < len(out) {
		payloadOffset := offset + n - metaLen
		if !r.active.ReadData(payloadOffset, out[n:]) {
			return false
		}
	}
	return true
}

// MarkRead releases the currently active producer and resets the
// registry so the next HasMessage call polls from the start again.
func (r *Registry) MarkRead() {
	if r.active == nil {
		return
	}
	r.active.MarkRead()
	r.active = nil
	r.encodedMeta = nil
	r.meta = Meta{}
}
