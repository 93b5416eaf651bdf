package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"devfest/internal/qr"
)

// ErrSessionNotFound is returned for operations on a scanner that was never started.
var ErrSessionNotFound = errors.New("scan session not found")

// HandlerFactory builds the callbacks for one scanner.
type HandlerFactory func(scannerID string) ScanHandler

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Session SessionConfig
	// WatchInterval is how often the device list is refreshed in the background. 0 disables it.
	WatchInterval time.Duration
}

// Manager owns the camera platform and one scan session per scanner id (a booth or a gate).
type Manager struct {
	platform Platform
	decoder  qr.Decoder
	handlers HandlerFactory
	cfg      ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	known    []Device

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a manager. handlers may be nil.
func NewManager(platform Platform, decoder qr.Decoder, handlers HandlerFactory, cfg ManagerConfig) *Manager {
	if handlers == nil {
		handlers = func(string) ScanHandler { return ScanHandlerFuncs{} }
	}
	return &Manager{
		platform: platform,
		decoder:  decoder,
		handlers: handlers,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
}

// Start lists devices once and starts the background device watch.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.refresh(ctx); err != nil {
		// cameras may be plugged in later
		log.Warn().Err(err).Msg("initial camera scan failed")
	}

	if m.cfg.WatchInterval > 0 {
		m.wg.Add(1)
		go m.watch(ctx)
	}
	return nil
}

// Stop ends the device watch and stops every session.
func (m *Manager) Stop(_ context.Context) error {
	m.mu.Lock()
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.wg.Wait()

	var errs []error
	for _, s := range sessions {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("scanner %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Devices enumerates cameras for a picker and returns the index Start would choose.
func (m *Manager) Devices(ctx context.Context) ([]Device, int, error) {
	devices, err := EnumerateDevices(ctx, m.platform)
	if err != nil {
		return nil, -1, err
	}
	m.setKnown(devices)
	return devices, PreferredIndex(devices), nil
}

// Known returns the device list from the last scan without touching the hardware.
func (m *Manager) Known() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Device(nil), m.known...)
}

// StartSession starts scanning for scannerID, creating the session on first use.
func (m *Manager) StartSession(ctx context.Context, scannerID string, preferred *int) (Snapshot, error) {
	s := m.session(scannerID, true)
	err := s.Start(ctx, preferred)
	return s.Snapshot(), err
}

// SwitchSession moves scannerID to its next camera.
func (m *Manager) SwitchSession(ctx context.Context, scannerID string) (Snapshot, error) {
	s := m.session(scannerID, false)
	if s == nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, scannerID)
	}
	err := s.SwitchCamera(ctx)
	return s.Snapshot(), err
}

// StopSession stops and forgets scannerID. Unknown ids are a no-op.
func (m *Manager) StopSession(scannerID string) error {
	m.mu.Lock()
	s, ok := m.sessions[scannerID]
	delete(m.sessions, scannerID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Stop()
}

// Snapshot returns the state of scannerID.
func (m *Manager) Snapshot(scannerID string) (Snapshot, bool) {
	s := m.session(scannerID, false)
	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Sessions returns the scanner ids with a session, sorted.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) session(scannerID string, create bool) *Session {
	m.mu.RLock()
	s, ok := m.sessions[scannerID]
	m.mu.RUnlock()
	if ok || !create {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[scannerID]; ok {
		return s
	}
	s = NewSession(scannerID, m.platform, m.decoder, m.handlers(scannerID), m.cfg.Session)
	m.sessions[scannerID] = s
	return s
}

// refresh lists devices without requesting access and logs hot-plug changes.
func (m *Manager) refresh(ctx context.Context) error {
	devices, err := m.platform.ListDevices(ctx)
	if err != nil {
		return err
	}
	m.setKnown(dedupe(devices))
	return nil
}

func (m *Manager) setKnown(devices []Device) {
	m.mu.Lock()
	previous := m.known
	m.known = append([]Device(nil), devices...)
	m.mu.Unlock()

	before := make(map[string]struct{}, len(previous))
	for _, d := range previous {
		before[d.ID] = struct{}{}
	}
	for _, d := range devices {
		if _, ok := before[d.ID]; ok {
			delete(before, d.ID)
			continue
		}
		log.Info().Str("device_id", d.ID).Str("label", d.Label).Msg("camera connected")
	}
	for id := range before {
		log.Info().Str("device_id", id).Msg("camera disconnected")
	}
}

func (m *Manager) watch(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("camera scan failed")
			}
		}
	}
}
