package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
)

// frameStream is the Stream shared by the hardware backends. A producer goroutine owns the
// frames channel and closes it on exit; Close cancels the producer, waits for it and runs cleanup.
type frameStream struct {
	deviceID string
	frames   chan image.Image
	ready    chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc

	readyOnce sync.Once
	closeOnce sync.Once
	cleanup   func() error
	closeErr  error

	mu      sync.Mutex
	exitErr error
	dropped int
}

// newFrameStream returns a stream and the context its producer must run under. The context is
// detached from any request context so the stream lives until Close.
func newFrameStream(deviceID string) (*frameStream, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &frameStream{
		deviceID: deviceID,
		frames:   make(chan image.Image, 2),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
	}, ctx
}

// run starts the producer. produce returns when ctx ends or the device stops delivering.
func (s *frameStream) run(ctx context.Context, produce func(ctx context.Context) error) {
	go func() {
		defer close(s.done)
		defer close(s.frames)

		err := produce(ctx)
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.exitErr = err
			s.mu.Unlock()
			log.Warn().Err(err).Str("device_id", s.deviceID).Msg("camera stream ended")
		}
	}()
}

// deliverJPEG decodes one MJPEG frame and hands it to the consumer. When the consumer lags the
// frame is dropped so decoding always works on a recent picture.
func (s *frameStream) deliverJPEG(data []byte) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("device_id", s.deviceID).Msg("skipping corrupt frame")
		return
	}
	s.deliver(img)
}

func (s *frameStream) deliver(img image.Image) {
	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case s.frames <- img:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// awaitFirstFrame blocks until the device produced a frame, the producer died or ctx ended.
func (s *frameStream) awaitFirstFrame(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		s.mu.Lock()
		err := s.exitErr
		s.mu.Unlock()
		if err == nil {
			err = errors.New("no frames")
		}
		return fmt.Errorf("%w: %s: %w", ErrCameraUnavailable, s.deviceID, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *frameStream) Frames() <-chan image.Image { return s.frames }

func (s *frameStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if s.cleanup != nil {
			s.closeErr = s.cleanup()
		}

		s.mu.Lock()
		dropped := s.dropped
		s.mu.Unlock()
		log.Debug().Str("device_id", s.deviceID).Int("dropped_frames", dropped).Msg("camera stream closed")
	})
	return s.closeErr
}

// checkAccess opens the device node to classify permission problems before a backend starts.
func checkAccess(device string) error {
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return classifyOpenError(device, err)
	}
	_ = file.Close()
	return nil
}

func classifyOpenError(device string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %s: %w", ErrCameraAccessDenied, device, err)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %s: %w", ErrCameraUnavailable, device, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrCameraUnavailable, device, err)
	}
}
