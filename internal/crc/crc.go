// Package crc implements the running CRC used to verify chunk framing.
//
// chunker.Next computes one CRC per chunk frame, over that frame's flags,
// length and payload bytes. The state is exposed as a pure value that each
// Update call folds in, with no internal buffering, so a CRC can also be
// built up from successive slices.
//
// jeffswenson-pebble's record package frames each on-disk chunk with a
// checksum over chunk-type-plus-payload (github.com/cockroachdb/pebble's
// internal/crc32c, not importable standalone -- see DESIGN.md) computed in
// one shot per chunk. We need the same "checksum over a framed chunk"
// shape but must be able to fold it incrementally, so we reach for the
// standard library's hash/crc32 (IEEE polynomial) instead of vendoring an
// unexported pack dependency.
package crc

import "hash/crc32"

// State is an in-progress CRC32 (IEEE) accumulation.
type State uint32

// New returns the initial state for a fresh CRC computation.
func New() State {
	return State(0)
}

// Update folds p into state and returns the new state. Calling Update
// repeatedly with successive slices of a message is equivalent to calling
// it once with the concatenation.
func (s State) Update(p []byte) State {
	return State(crc32.Update(uint32(s), crc32.IEEETable, p))
}

// Value returns the finished CRC32 value for the accumulated state.
func (s State) Value() uint32 {
	return uint32(s)
}

// Checksum computes the CRC32 of p in one call; equivalent to
// New().Update(p).Value().
func Checksum(p []byte) uint32 {
	return crc32.ChecksumIEEE(p)
}
