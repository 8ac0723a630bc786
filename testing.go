package devicesdk

import (
	"sync"

	"github.com/faultline/devicesdk/internal/cdr"
	"github.com/faultline/devicesdk/internal/codec"
	"github.com/faultline/devicesdk/internal/platform"
)

// MockLock is an in-memory sync.Mutex-backed platform.Lock, carried over
// from the teacher's MockBackend call-tracking idiom: it counts lock
// acquisitions for assertions in concurrency tests.
type MockLock struct {
	mu        sync.Mutex
	lockCalls int
	trackMu   sync.Mutex
}

// NewMockLock returns a ready-to-use MockLock.
func NewMockLock() *MockLock { return &MockLock{} }

func (m *MockLock) Lock() {
	m.mu.Lock()
	m.trackMu.Lock()
	m.lockCalls++
	m.trackMu.Unlock()
}

func (m *MockLock) Unlock() { m.mu.Unlock() }

// LockCalls returns the number of times Lock has been called.
func (m *MockLock) LockCalls() int {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	return m.lockCalls
}

var _ platform.Lock = (*MockLock)(nil)

// MockTimeSource is a settable platform.TimeSource for deterministic
// tests: Now returns whatever was last set, or TimeUnknown if never set.
type MockTimeSource struct {
	mu  sync.Mutex
	now platform.Time
}

// NewMockTimeSource returns a MockTimeSource reporting TimeUnknown until
// SetNow is called.
func NewMockTimeSource() *MockTimeSource {
	return &MockTimeSource{now: platform.Time{Kind: platform.TimeUnknown}}
}

func (m *MockTimeSource) Now() platform.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow fixes the value future Now calls will return.
func (m *MockTimeSource) SetNow(unixSeconds int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = platform.Time{Kind: platform.TimeCurrent, UnixSeconds: unixSeconds}
}

var _ platform.TimeSource = (*MockTimeSource)(nil)

// MockDeviceInfo is a fixed platform.DeviceInfoProvider for tests.
type MockDeviceInfo struct {
	Info codec.DeviceInfo
}

// NewMockDeviceInfo returns a MockDeviceInfo with placeholder identity
// strings, overridable via the Info field.
func NewMockDeviceInfo() *MockDeviceInfo {
	return &MockDeviceInfo{Info: codec.DeviceInfo{
		Serial:    "TEST0001",
		SWType:    "test-app",
		SWVersion: "0.0.0-test",
		HWVersion: "test-rig",
	}}
}

func (m *MockDeviceInfo) DeviceInfo() codec.DeviceInfo { return m.Info }

var _ platform.DeviceInfoProvider = (*MockDeviceInfo)(nil)

// MockLogSink records every exported log line for assertions instead of
// forwarding it anywhere.
type MockLogSink struct {
	mu    sync.Mutex
	lines [][]byte
}

// NewMockLogSink returns an empty MockLogSink.
func NewMockLogSink() *MockLogSink { return &MockLogSink{} }

func (m *MockLogSink) LogRaw(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line := make([]byte, len(p))
	copy(line, p)
	m.lines = append(m.lines, line)
}

// Lines returns every line recorded so far.
func (m *MockLogSink) Lines() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.lines))
	copy(out, m.lines)
	return out
}

var _ platform.RawLogSink = (*MockLogSink)(nil)

// MockBootClock is a settable platform.BootClock for deterministic tests.
type MockBootClock struct {
	mu sync.Mutex
	ms uint64
}

// NewMockBootClock returns a MockBootClock starting at 0ms.
func NewMockBootClock() *MockBootClock { return &MockBootClock{} }

func (m *MockBootClock) SinceBootMs() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ms
}

// Advance moves the simulated clock forward by ms milliseconds.
func (m *MockBootClock) Advance(ms uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ms += ms
}

var _ platform.BootClock = (*MockBootClock)(nil)

// NewMockCollaborators bundles fresh mock implementations of every
// platform.Collaborators field, ready to pass to New in tests.
func NewMockCollaborators() platform.Collaborators {
	return platform.Collaborators{
		Lock:       NewMockLock(),
		Time:       NewMockTimeSource(),
		DeviceInfo: NewMockDeviceInfo(),
		LogSink:    NewMockLogSink(),
		BootClock:  NewMockBootClock(),
	}
}

// MockCDRProducer is an in-memory cdr.Producer for tests: set HasData
// and Payload, then let the registry drain it.
type MockCDRProducer struct {
	mu        sync.Mutex
	HasData   bool
	Meta      cdr.Meta
	Payload   []byte
	markReads int
}

func (p *MockCDRProducer) HasCDR() (cdr.Meta, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.HasData {
		return cdr.Meta{}, false
	}
	meta := p.Meta
	meta.DataLength = uint32(len(p.Payload))
	return meta, true
}

func (p *MockCDRProducer) ReadData(offset int, out []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if offset < 0 || offset+len(out) > len(p.Payload) {
		return false
	}
	copy(out, p.Payload[offset:offset+len(out)])
	return true
}

func (p *MockCDRProducer) MarkRead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HasData = false
	p.markReads++
}

// MarkReadCount returns the number of times MarkRead has been called.
func (p *MockCDRProducer) MarkReadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markReads
}

var _ cdr.Producer = (*MockCDRProducer)(nil)
