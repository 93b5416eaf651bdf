package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"devfest/internal/qr"
)

// ErrSessionStopped is returned by Start or SwitchCamera when Stop interrupted them.
var ErrSessionStopped = errors.New("scan session stopped")

// SessionConfig tunes a scan session.
type SessionConfig struct {
	// AccessTimeout bounds RequestAccess and Open. Expiry counts as denied access. 0 waits forever.
	AccessTimeout time.Duration
	// SettleDelay is waited between releasing one camera and opening the next.
	SettleDelay time.Duration
	// ScanCooldown merges repeated decodes of the same text into one scan event. 0 reports every frame.
	ScanCooldown time.Duration
	Clock        clock.Clock
}

// Session binds at most one camera stream to a decode loop.
//
// Start, SwitchCamera and Stop may be called from any goroutine. Handler callbacks run on the
// decode goroutine, in frame order.
type Session struct {
	id       string
	platform Platform
	decoder  qr.Decoder
	handler  ScanHandler
	cfg      SessionConfig
	clock    clock.Clock
	logger   zerolog.Logger

	mu            sync.Mutex
	state         State
	reason        string
	devices       []Device
	active        int
	gen           uint64
	cancelPending context.CancelFunc
	bind          *binding
	updatedAt     time.Time

	// hardware is held while a stream is released or opened, so two streams never overlap
	hardware chan struct{}
}

// binding is one open stream plus the goroutine decoding it.
type binding struct {
	stream Stream
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

// release stops the decode loop, waits for it and closes the stream.
func (b *binding) release() error {
	b.once.Do(func() {
		close(b.stop)
		<-b.done
		b.err = b.stream.Close()
	})
	return b.err
}

// NewSession creates an idle session.
func NewSession(id string, platform Platform, decoder qr.Decoder, handler ScanHandler, cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if handler == nil {
		handler = ScanHandlerFuncs{}
	}

	return &Session{
		id:        id,
		platform:  &accessGuard{platform: platform, timeout: cfg.AccessTimeout, clock: cfg.Clock},
		decoder:   decoder,
		handler:   handler,
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    log.With().Str("scanner_id", id).Logger(),
		state:     StateIdle,
		active:    -1,
		updatedAt: cfg.Clock.Now(),
		hardware:  make(chan struct{}, 1),
	}
}

// ID returns the scanner id the session was created for.
func (s *Session) ID() string { return s.id }

// Start enumerates cameras, opens one and starts decoding. A nil preferred index, or one out of
// range, selects the device with PreferredIndex. Start is a no-op while a start or switch is in
// flight or a stream is active.
func (s *Session) Start(ctx context.Context, preferred *int) error {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateStreaming, StateSwitching:
		s.mu.Unlock()
		return nil
	}
	gen, ctx, cancel := s.beginLocked(ctx, StateStarting)
	s.mu.Unlock()
	defer cancel()

	if err := s.acquireHardware(ctx); err != nil {
		return s.fail(gen, accessError(err))
	}
	defer s.releaseHardware()

	// a stream left over from an error must go before a new one opens
	if err := s.releaseBinding(gen); err != nil {
		return err
	}

	devices, err := EnumerateDevices(ctx, s.platform)
	if err != nil {
		return s.fail(gen, err)
	}

	index := PreferredIndex(devices)
	if preferred != nil && *preferred >= 0 && *preferred < len(devices) {
		index = *preferred
	}

	s.mu.Lock()
	if s.gen == gen {
		s.devices = devices
		s.active = index
	}
	s.mu.Unlock()

	stream, err := s.platform.Open(ctx, devices[index].ID)
	if err != nil {
		return s.fail(gen, accessError(err))
	}

	return s.attach(gen, stream, index)
}

// SwitchCamera moves to the next device in cyclic order. It is a no-op unless streaming with at
// least two devices. The current stream is fully released before the next one opens.
func (s *Session) SwitchCamera(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStreaming || len(s.devices) < 2 {
		s.mu.Unlock()
		return nil
	}
	next := (s.active + 1) % len(s.devices)
	nextID := s.devices[next].ID
	gen, ctx, cancel := s.beginLocked(ctx, StateSwitching)
	s.mu.Unlock()
	defer cancel()

	if err := s.acquireHardware(ctx); err != nil {
		return s.fail(gen, accessError(err))
	}
	defer s.releaseHardware()

	if err := s.releaseBinding(gen); err != nil {
		return err
	}

	if s.cfg.SettleDelay > 0 {
		select {
		case <-s.clock.After(s.cfg.SettleDelay):
		case <-ctx.Done():
			return s.fail(gen, accessError(ctx.Err()))
		}
	}

	s.mu.Lock()
	if s.gen == gen {
		s.active = next
	}
	s.mu.Unlock()

	stream, err := s.platform.Open(ctx, nextID)
	if err != nil {
		return s.fail(gen, accessError(err))
	}

	return s.attach(gen, stream, next)
}

// Stop cancels a pending start or switch, releases the camera and moves to Stopped. It is safe to
// call any number of times. It must not be called from a handler callback.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.cancelPending != nil {
		s.cancelPending()
		s.cancelPending = nil
	}
	s.gen++
	b := s.bind
	s.bind = nil
	s.setStateLocked(StateStopped, "")
	s.mu.Unlock()

	if b == nil {
		return nil
	}

	s.hardware <- struct{}{}
	defer s.releaseHardware()

	s.logger.Info().Msg("scan session stopped")
	return b.release()
}

// beginLocked starts a new generation for a start or switch. The returned context keeps the
// caller's values but not its cancellation: only Stop and the access timeout end it, so a
// caller that goes away does not leave the session in Error.
func (s *Session) beginLocked(ctx context.Context, state State) (uint64, context.Context, context.CancelFunc) {
	s.gen++
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelPending = cancel
	s.setStateLocked(state, "")
	return s.gen, ctx, cancel
}

// acquireHardware takes exclusive ownership of the camera for releasing and opening streams.
func (s *Session) acquireHardware(ctx context.Context) error {
	select {
	case s.hardware <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) releaseHardware() {
	<-s.hardware
}

// releaseBinding closes the current stream, if any, on behalf of generation gen.
func (s *Session) releaseBinding(gen uint64) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	old := s.bind
	s.bind = nil
	s.mu.Unlock()

	if old == nil {
		return nil
	}
	if err := old.release(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release previous stream")
	}
	return nil
}

// Snapshot returns the current state, devices and active index.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		State:       s.state,
		Devices:     append([]Device(nil), s.devices...),
		ActiveIndex: s.active,
		Reason:      s.reason,
		UpdatedAt:   s.updatedAt,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setStateLocked(state State, reason string) {
	s.state = state
	s.reason = reason
	s.updatedAt = s.clock.Now()
}

func (s *Session) attach(gen uint64, stream Stream, index int) error {
	b := &binding{
		stream: stream,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = stream.Close()
		return ErrSessionStopped
	}
	s.bind = b
	s.active = index
	s.cancelPending = nil
	s.setStateLocked(StateStreaming, "")
	deviceID := s.devices[index].ID
	go s.decodeLoop(gen, b)
	s.mu.Unlock()

	s.logger.Info().Str("device_id", deviceID).Int("active_index", index).Msg("camera streaming")
	return nil
}

// fail records a start or switch failure. Failures caused by Stop are not reported.
func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.cancelPending = nil
	s.setStateLocked(StateError, err.Error())
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("camera start failed")
	s.handler.OnError(accessMessage(err))
	return err
}

func (s *Session) decodeLoop(gen uint64, b *binding) {
	defer close(b.done)

	var (
		last   string
		lastAt time.Time
	)

	frames := b.stream.Frames()
	for {
		select {
		case <-b.stop:
			return
		case img, ok := <-frames:
			if !ok {
				s.streamEnded(gen)
				return
			}

			now := s.clock.Now()
			text, err := s.decoder.Decode(img)
			if errors.Is(err, qr.ErrNotFound) {
				continue
			}

			select {
			case <-b.stop:
				return
			default:
			}

			if err != nil {
				fault := fmt.Errorf("%w: %w", ErrDecodeEngineFault, err)
				s.logger.Warn().Err(fault).Msg("decode failed")
				s.handler.OnError(fault.Error())
				continue
			}

			if s.cfg.ScanCooldown > 0 && text == last && now.Sub(lastAt) < s.cfg.ScanCooldown {
				lastAt = now
				continue
			}
			last, lastAt = text, now

			s.handler.OnScan(text)
		}
	}
}

func (s *Session) streamEnded(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	err := fmt.Errorf("%w: stream ended", ErrCameraUnavailable)
	s.setStateLocked(StateError, err.Error())
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("camera stream lost")
	s.handler.OnError(accessMessage(err))
}

func accessMessage(err error) string {
	return "camera access denied or unavailable: " + err.Error()
}

// accessError classifies Open failures. Anything that is not already a camera error counts as
// denied access, including an expired access timeout.
func accessError(err error) error {
	if errors.Is(err, ErrCameraAccessDenied) || errors.Is(err, ErrCameraUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCameraAccessDenied, err)
}

// accessGuard applies the access timeout to the calls that may wait on a permission prompt.
type accessGuard struct {
	platform Platform
	timeout  time.Duration
	clock    clock.Clock
}

func (g *accessGuard) ListDevices(ctx context.Context) ([]Device, error) {
	return g.platform.ListDevices(ctx)
}

func (g *accessGuard) RequestAccess(ctx context.Context) (Stream, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	stream, err := g.platform.RequestAccess(ctx)
	return stream, g.timedOut(ctx, err)
}

func (g *accessGuard) Open(ctx context.Context, deviceID string) (Stream, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	stream, err := g.platform.Open(ctx, deviceID)
	return stream, g.timedOut(ctx, err)
}

func (g *accessGuard) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return g.clock.WithTimeout(ctx, g.timeout)
}

func (g *accessGuard) timedOut(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no answer within %s: %w", ErrCameraAccessDenied, g.timeout, context.DeadlineExceeded)
	}
	return err
}
