// Package packetizer implements §4.7: a fixed poll-order multiplexer over
// the four data sources, the 1-byte source-header injection, optional RLE
// wrapping, and delegation to the chunker for framing. State naming
// (Idle/Active) mirrors the teacher's per-tag state enum
// (TagStateInFlightFetch / TagStateOwned / TagStateInFlightCommit)
// applied here to one packetizer-wide "is a message in flight" flag.
package packetizer

import (
	"github.com/faultline/devicesdk/internal/chunker"
	"github.com/faultline/devicesdk/internal/logging"
	"github.com/faultline/devicesdk/internal/rle"
)

// SourceKind identifies one of the four fixed data sources.
type SourceKind int

const (
	SourceCoredump SourceKind = iota
	SourceHeartbeat
	SourceLog
	SourceCDR
	numSources
)

// PollOrder is the fixed, compile-time poll order from spec §4.7.
var PollOrder = [numSources]SourceKind{SourceCoredump, SourceHeartbeat, SourceLog, SourceCDR}

// SourceMask selects which of the four sources Begin is allowed to poll.
type SourceMask uint8

// AllSources is the default mask: every source is eligible.
const AllSources SourceMask = 1<<SourceCoredump | 1<<SourceHeartbeat | 1<<SourceLog | 1<<SourceCDR

func (m SourceMask) includes(k SourceKind) bool { return m&(1<<uint(k)) != 0 }

// DataSource is the common shape every packetizer source implements
// (event storage's coredump/heartbeat stores, the log data source, and a
// thin adapter over the CDR registry).
type DataSource interface {
	HasMessage() (size int, ok bool)
	Read(offset int, out []byte) bool
	MarkSent()
}

// GetNextResult is the outcome of one GetNext call.
type GetNextResult int

const (
	NoMoreData GetNextResult = iota
	EndOfChunk
	MoreDataForChunk
)

// Meta is populated by Begin on a successful activation.
type Meta struct {
	Source                   SourceKind
	SingleChunkMessageLength int
	SendInProgress           bool
}

// sentinelByte fills regions a source failed to read back, so a receiver
// sees a recognizable pattern instead of stale buffer contents.
const sentinelByte = 0xEF

type state int

const (
	stateIdle state = iota
	stateActive
)

// RLEPolicy decides, per activation, whether the active source's content
// should be RLE-wrapped before framing. Optional; a nil policy disables
// RLE entirely.
type RLEPolicy interface {
	ShouldWrap(payloadSize int) bool
}

// ScrubObserver is notified whenever a source read failure forces the
// packetizer to fill a chunk region with the sentinel pattern instead of
// aborting the drain. Optional; a nil observer just skips the callback.
type ScrubObserver interface {
	ObserveChunkScrubbed()
}

// Packetizer multiplexes the four fixed data sources into one chunked
// byte stream.
type Packetizer struct {
	sources [numSources]DataSource
	mask    SourceMask
	rle     RLEPolicy
	logger  *logging.Logger
	scrub   ScrubObserver
	multi   bool

	state       state
	activeKind  SourceKind
	payloadSize int // active source's raw message size, pre-header, pre-RLE
	framedSize  int // payload size after optional RLE wrap, plus 1 header byte
	readOffset  int
	rleActive   bool
	rleBuf      []byte
}

// New returns a Packetizer over the four fixed sources (any of which may
// be nil to mean "not wired"), with every source eligible to poll.
func New(coredump, heartbeat, log, cdr DataSource) *Packetizer {
	p := &Packetizer{mask: AllSources, multi: true, logger: logging.Default()}
	p.sources[SourceCoredump] = coredump
	p.sources[SourceHeartbeat] = heartbeat
	p.sources[SourceLog] = log
	p.sources[SourceCDR] = cdr
	return p
}

// SetRLEPolicy installs (or, with nil, removes) the optional RLE wrapping
// policy.
func (p *Packetizer) SetRLEPolicy(policy RLEPolicy) {
	p.rle = policy
}

// SetScrubObserver installs (or, with nil, removes) the callback invoked
// whenever a source read failure is scrubbed with the sentinel pattern.
func (p *Packetizer) SetScrubObserver(observer ScrubObserver) {
	p.scrub = observer
}

// SetMultiChunk configures whether GetNext may split one logical message
// across several chunks (default true). get_chunk always forces
// single-chunk mode regardless of this setting.
func (p *Packetizer) SetMultiChunk(multi bool) {
	p.multi = multi
}

// SetActiveSources restricts polling to a subset of sources. Changing the
// mask aborts any in-progress message, per §4.7.
func (p *Packetizer) SetActiveSources(mask SourceMask) {
	if mask != p.mask {
		p.Abort()
	}
	p.mask = mask
}

// DataAvailable reports whether a message is already active, or whether
// polling would find one. Performs no state change beyond whatever the
// underlying sources' idempotent HasMessage calls do.
func (p *Packetizer) DataAvailable() bool {
	if p.state == stateActive {
		return true
	}
	for _, kind := range PollOrder {
		if !p.mask.includes(kind) {
			continue
		}
		src := p.sources[kind]
		if src == nil {
			continue
		}
		if _, ok := src.HasMessage(); ok {
			return true
		}
	}
	return false
}

// Begin activates the next available message. If a message is already
// active, it returns that message's metadata unchanged (supporting
// resumption after a transport reset) without re-polling.
func (p *Packetizer) Begin() (Meta, bool) {
	if p.state == stateActive {
		return p.currentMeta(), true
	}

	for _, kind := range PollOrder {
		if !p.mask.includes(kind) {
			continue
		}
		src := p.sources[kind]
		if src == nil {
			continue
		}
		size, ok := src.HasMessage()
		if !ok {
			continue
		}
		p.activate(kind, size)
		return p.currentMeta(), true
	}
	return Meta{}, false
}

func (p *Packetizer) activate(kind SourceKind, size int) {
	p.activeKind = kind
	p.payloadSize = size
	p.readOffset = 0
	p.rleActive = false
	p.rleBuf = nil

	if p.rle != nil && p.rle.ShouldWrap(size) {
		raw := make([]byte, size)
		if p.sources[kind].Read(0, raw) {
			p.rleBuf = rle.Encode(raw)
			p.rleActive = true
		}
	}

	framedPayload := size
	if p.rleActive {
		framedPayload = len(p.rleBuf)
	}
	p.framedSize = framedPayload + 1 // + source header byte
	p.state = stateActive
}

func (p *Packetizer) currentMeta() Meta {
	return Meta{
		Source:                   p.activeKind,
		SingleChunkMessageLength: p.framedSize,
		SendInProgress:           p.readOffset != 0,
	}
}

// headerByte encodes the wire packetizer header (§3/§6): the low 4 bits
// are the 1-based source kind (1=coredump, 2=heartbeat, 3=log, 4=CDR),
// not SourceKind's own 0-based iota, since SourceKind also indexes
// p.sources and SourceMask's bit positions internally.
func (p *Packetizer) headerByte() byte {
	b := byte(p.activeKind) + 1
	if p.rleActive {
		b |= 0x80
	}
	return b
}

// headerRead wraps the active source's payload (or its RLE-encoded form)
// with the 1-byte header injection described in §4.7: offset 0 yields
// the header byte, offset-1 forwards into the payload. Underlying read
// failures do not abort the drain -- the affected bytes are filled with
// a fixed sentinel pattern and logged.
func (p *Packetizer) headerRead(offset int, out []byte) bool {
	n := 0
	if offset == 0 && len(out) > 0 {
		out[0] = p.headerByte()
		n = 1
	}
	if n >= len(out) {
		return true
	}

	payloadOffset := offset + n - 1
	rest := out[n:]
	var ok bool
	if p.rleActive {
		ok = readSlice(p.rleBuf, payloadOffset, rest)
	} else {
		ok = p.sources[p.activeKind].Read(payloadOffset, rest)
	}
	if !ok {
		for i := range rest {
			rest[i] = sentinelByte
		}
		p.logger.Error("packetizer: source read failed, filling sentinel",
			"source", p.activeKind, "offset", payloadOffset, "len", len(rest))
		if p.scrub != nil {
			p.scrub.ObserveChunkScrubbed()
		}
	}
	return true
}

func readSlice(buf []byte, offset int, out []byte) bool {
	if offset < 0 || offset+len(out) > len(buf) {
		return false
	}
	copy(out, buf[offset:offset+len(out)])
	return true
}

// GetNext delegates to the chunker for one framed chunk of the active
// message, returning the number of bytes written into buf. Requires a
// prior successful Begin; without one, or with an undersized buffer, it
// returns (0, NoMoreData) and leaves state untouched.
func (p *Packetizer) GetNext(buf []byte) (int, GetNextResult) {
	if p.state != stateActive {
		return 0, NoMoreData
	}
	if len(buf) < chunker.MinChunkBufLen {
		p.logger.Error("packetizer: GetNext buffer below MinChunkBufLen", "len", len(buf))
		return 0, NoMoreData
	}

	n, more, ok := chunker.Next(buf, p.framedSize, p.readOffset, p.multi, p.headerRead)
	if !ok {
		return 0, NoMoreData
	}
	p.readOffset += n - chunker.FrameOverhead

	if !more {
		p.sources[p.activeKind].MarkSent()
		p.state = stateIdle
		return n, EndOfChunk
	}
	return n, MoreDataForChunk
}

// Abort drops the active message without marking it sent; the same
// message is re-offered the next time Begin is called.
func (p *Packetizer) Abort() {
	p.state = stateIdle
	p.readOffset = 0
	p.rleActive = false
	p.rleBuf = nil
}

// GetChunk is a convenience wrapper: Begin if needed, then one GetNext
// call, always in single-chunk mode.
func (p *Packetizer) GetChunk(buf []byte) (int, GetNextResult, bool) {
	if p.state != stateActive {
		if _, ok := p.Begin(); !ok {
			return 0, NoMoreData, false
		}
	}
	saved := p.multi
	p.multi = false
	n, result := p.GetNext(buf)
	p.multi = saved
	return n, result, true
}
