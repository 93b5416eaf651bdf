package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// MockPlatform is an in-memory Platform for tests and demos.
type MockPlatform struct {
	mu sync.Mutex

	devices      []Device
	labelsLocked bool
	denied       bool
	listErr      error
	openErrs     map[string]error
	block        chan struct{}

	accessRequests int
	waiters        int
	opened         int
	active         int
	maxActive      int
	streams        []*MockStream
}

// NewMockPlatform creates a platform exposing devices.
func NewMockPlatform(devices ...Device) *MockPlatform {
	return &MockPlatform{
		devices:  append([]Device(nil), devices...),
		openErrs: make(map[string]error),
	}
}

// SetLabelsLocked hides labels until RequestAccess succeeds.
func (m *MockPlatform) SetLabelsLocked(locked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labelsLocked = locked
}

// SetDenied makes RequestAccess and Open fail with ErrCameraAccessDenied.
func (m *MockPlatform) SetDenied(denied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied = denied
}

// SetListError makes ListDevices fail.
func (m *MockPlatform) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// SetOpenError makes Open fail for one device.
func (m *MockPlatform) SetOpenError(deviceID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.openErrs, deviceID)
		return
	}
	m.openErrs[deviceID] = err
}

// BlockOpen makes RequestAccess and Open wait, like an unanswered permission prompt, until the
// returned release function is called or the context ends.
func (m *MockPlatform) BlockOpen() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.block == ch {
				m.block = nil
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// AddDevice adds a device, ignoring duplicates.
func (m *MockPlatform) AddDevice(d Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.ID == d.ID {
			return
		}
	}
	m.devices = append(m.devices, d)
}

// RemoveDevice removes a device by ID.
func (m *MockPlatform) RemoveDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d.ID == id {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}

func (m *MockPlatform) ListDevices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	out := make([]Device, len(m.devices))
	for i, d := range m.devices {
		if m.labelsLocked {
			d.Label = ""
		}
		out[i] = d
	}
	return out, nil
}

func (m *MockPlatform) RequestAccess(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	m.accessRequests++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.denied {
		return nil, ErrCameraAccessDenied
	}
	if len(m.devices) == 0 {
		return nil, ErrCameraUnavailable
	}
	m.labelsLocked = false
	return m.newStreamLocked("access"), nil
}

func (m *MockPlatform) Open(ctx context.Context, deviceID string) (Stream, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.denied {
		return nil, ErrCameraAccessDenied
	}
	if err := m.openErrs[deviceID]; err != nil {
		return nil, err
	}

	found := false
	for _, d := range m.devices {
		if d.ID == deviceID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrCameraUnavailable, deviceID)
	}

	m.opened++
	return m.newStreamLocked(deviceID), nil
}

func (m *MockPlatform) wait(ctx context.Context) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()

	if block == nil {
		return nil
	}

	m.mu.Lock()
	m.waiters++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.waiters--
		m.mu.Unlock()
	}()

	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockPlatform) newStreamLocked(deviceID string) *MockStream {
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}

	s := &MockStream{
		DeviceID: deviceID,
		platform: m,
		frames:   make(chan image.Image, 16),
		done:     make(chan struct{}),
	}
	m.streams = append(m.streams, s)
	return s
}

func (m *MockPlatform) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
}

// AccessRequests returns how many times RequestAccess was called.
func (m *MockPlatform) AccessRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessRequests
}

// Waiting returns the number of calls blocked by BlockOpen.
func (m *MockPlatform) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters
}

// Opened returns how many device streams were opened successfully.
func (m *MockPlatform) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Active returns the number of streams not yet closed.
func (m *MockPlatform) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// MaxActive returns the highest number of simultaneously open streams.
func (m *MockPlatform) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// LastStream returns the most recently opened stream, or nil.
func (m *MockPlatform) LastStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// MockStream is a Stream fed by Push.
type MockStream struct {
	DeviceID string

	platform *MockPlatform
	frames   chan image.Image
	done     chan struct{}

	mu        sync.RWMutex
	ended     bool
	endOnce   sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
}

// Push delivers a frame. It returns false once the stream has ended or been closed.
func (s *MockStream) Push(img image.Image) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ended {
		return false
	}
	select {
	case s.frames <- img:
		return true
	case <-s.done:
		return false
	}
}

// End closes the frame channel as if the device went away. The handle stays held until Close.
func (s *MockStream) End() {
	s.endOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.ended = true
		close(s.frames)
		s.mu.Unlock()
	})
}

// Closed reports whether Close has been called.
func (s *MockStream) Closed() bool {
	return s.closed.Load()
}

func (s *MockStream) Frames() <-chan image.Image { return s.frames }

func (s *MockStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.End()
		s.platform.release()
	})
	return nil
}
