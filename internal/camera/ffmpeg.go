package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegPlatform captures through an ffmpeg child process reading V4L2 and emitting an MJPEG pipe.
type FFmpegPlatform struct {
	discovery Discovery
	settings  Settings
	binary    string
}

// NewFFmpegPlatform requires ffmpeg on PATH.
func NewFFmpegPlatform(settings Settings) (Platform, error) {
	binary, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %w", ErrCameraUnavailable, err)
	}
	return &FFmpegPlatform{
		discovery: NewLinuxDiscovery(settings.DeviceGlob),
		settings:  settings,
		binary:    binary,
	}, nil
}

func (p *FFmpegPlatform) ListDevices(ctx context.Context) ([]Device, error) {
	return p.discovery.ScanDevices(ctx)
}

// RequestAccess opens the first device. Device node permissions are the only gate on Linux.
func (p *FFmpegPlatform) RequestAccess(ctx context.Context) (Stream, error) {
	devices, err := p.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrCameraUnavailable
	}
	return p.Open(ctx, devices[0].ID)
}

func (p *FFmpegPlatform) Open(ctx context.Context, deviceID string) (Stream, error) {
	if err := checkAccess(deviceID); err != nil {
		return nil, err
	}

	stream, streamCtx := newFrameStream(deviceID)
	cmd := exec.CommandContext(streamCtx, p.binary, p.args(deviceID)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stream.cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stream.cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stream.cancel()
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %w", ErrCameraUnavailable, err)
	}

	go logStderr(deviceID, stderr)

	stream.run(streamCtx, func(ctx context.Context) error {
		readErr := readMJPEG(ctx, stdout, stream.deliverJPEG)
		waitErr := cmd.Wait()
		if readErr != nil {
			return readErr
		}
		return waitErr
	})

	if err := stream.awaitFirstFrame(ctx); err != nil {
		_ = stream.Close()
		return nil, err
	}

	log.Info().Str("device_id", deviceID).Msg("ffmpeg capture started")
	return stream, nil
}

func (p *FFmpegPlatform) args(device string) []string {
	args := []string{"-loglevel", "error", "-f", "v4l2"}
	if p.settings.Width > 0 && p.settings.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", p.settings.Width, p.settings.Height))
	}
	if p.settings.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(p.settings.FPS))
	}
	return append(args,
		"-i", device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

func logStderr(device string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug().Str("device_id", device).Str("ffmpeg", scanner.Text()).Msg("ffmpeg output")
	}
}

// readMJPEG splits a concatenated JPEG byte stream into frames.
func readMJPEG(ctx context.Context, r io.Reader, onFrame func([]byte)) error {
	buf := make([]byte, 256*1024)
	var pending []byte

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var frames [][]byte
			frames, pending = splitJPEG(pending)
			for _, f := range frames {
				onFrame(f)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame read error: %w", err)
		}
	}
}

// splitJPEG returns the complete SOI..EOI frames in data and the unconsumed tail. Bytes before
// the first SOI are discarded.
func splitJPEG(data []byte) (frames [][]byte, rest []byte) {
	for {
		start := bytes.Index(data, jpegSOI)
		if start == -1 {
			// keep a trailing 0xFF: it may be the first half of the next SOI
			if len(data) > 0 && data[len(data)-1] == jpegSOI[0] {
				return frames, []byte{jpegSOI[0]}
			}
			return frames, nil
		}
		data = data[start:]

		end := bytes.Index(data[len(jpegSOI):], jpegEOI)
		if end == -1 {
			return frames, append([]byte(nil), data...)
		}
		end += len(jpegSOI) + len(jpegEOI)

		frame := make([]byte, end)
		copy(frame, data[:end])
		frames = append(frames, frame)
		data = data[end:]
	}
}
