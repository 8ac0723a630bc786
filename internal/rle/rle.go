// Package rle implements the optional run-length encoder the packetizer
// may wrap around an active source's content. Encode and Decode are
// one-shot functions over a whole byte slice; Encoder is the streaming
// form, which accumulates its encoded output internally until Finish.
package rle

// Encoder accumulates run-length-encoded output from successive input
// slices. It is a single-pass, stateful encoder: call Write repeatedly
// with the source bytes in order, then Finish to flush the trailing run.
//
// Encoding: each run is emitted as {count byte (1..255), value byte}.
// Runs longer than 255 are split into multiple (count, value) pairs.
type Encoder struct {
	pending    byte
	pendingLen int
	hasPending bool
	out        []byte
}

// NewEncoder returns a fresh Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Write folds p into the encoder, appending any fully-decided runs to the
// internal output buffer. Returns the encoder for chaining.
func (e *Encoder) Write(p []byte) *Encoder {
	for _, b := range p {
		switch {
		case !e.hasPending:
			e.pending, e.pendingLen, e.hasPending = b, 1, true
		case b == e.pending && e.pendingLen < 255:
			e.pendingLen++
		default:
			e.flushRun()
			e.pending, e.pendingLen, e.hasPending = b, 1, true
		}
	}
	return e
}

func (e *Encoder) flushRun() {
	if !e.hasPending {
		return
	}
	e.out = append(e.out, byte(e.pendingLen), e.pending)
}

// Finish flushes any pending run and returns the complete encoded output.
// The Encoder must not be reused after Finish.
func (e *Encoder) Finish() []byte {
	e.flushRun()
	e.hasPending = false
	return e.out
}

// Encode is a convenience one-shot wrapper around Encoder for callers that
// already hold the entire message in memory (used by tests and by sources
// small enough to not need streaming).
func Encode(p []byte) []byte {
	return NewEncoder().Write(p).Finish()
}

// Decode reverses Encode. Returns an error-free best-effort decode; malformed
// (odd-length) input is truncated at the last complete pair, matching the
// packetizer's policy of never corrupting state on bad input.
func Decode(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i+1 < len(p); i += 2 {
		count := int(p[i])
		value := p[i+1]
		for j := 0; j < count; j++ {
			out = append(out, value)
		}
	}
	return out
}
