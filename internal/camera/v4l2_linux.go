//go:build linux

package camera

import (
	"context"
	"fmt"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Platform captures MJPEG frames directly through the V4L2 API.
type V4L2Platform struct {
	discovery Discovery
	settings  Settings
}

// NewV4L2Platform creates a platform that inspects nodes through the driver capability ioctls.
func NewV4L2Platform(settings Settings) (Platform, error) {
	return &V4L2Platform{
		discovery: NewLinuxDiscovery(settings.DeviceGlob).WithInspector(capabilityInspect),
		settings:  settings,
	}, nil
}

// capabilityInspect reads the node's own capabilities and format list without configuring it, so
// metadata nodes that device.Open would reject are still identified.
func capabilityInspect(_ context.Context, path string) (NodeInfo, bool) {
	fd, err := v4l2.OpenDevice(path, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return NodeInfo{}, false
	}
	defer func() { _ = v4l2.CloseDevice(fd) }()

	caps, err := v4l2.GetCapability(fd)
	if err != nil {
		return NodeInfo{}, false
	}

	info := NodeInfo{
		Card:    strings.TrimRight(caps.Card, "\x00"),
		BusInfo: strings.TrimRight(caps.BusInfo, "\x00"),
		Capture: nodeCaps(caps)&v4l2.CapVideoCapture != 0,
	}
	if !info.Capture {
		return info, true
	}

	descs, err := v4l2.GetAllFormatDescriptions(fd)
	if err != nil {
		log.Debug().Err(err).Str("device_id", path).Msg("failed to list formats")
		return info, true
	}
	for _, desc := range descs {
		if desc.PixelFormat == v4l2.PixelFmtMJPEG || desc.PixelFormat == v4l2.PixelFmtYUYV {
			info.Color = true
			break
		}
	}
	return info, true
}

// nodeCaps prefers the per-node capabilities. The device-wide set also lists the capabilities of
// sibling nodes such as the metadata node of a UVC camera.
func nodeCaps(caps v4l2.Capability) uint32 {
	if caps.Capabilities&v4l2.CapDeviceCapabilities != 0 {
		return caps.DeviceCapabilities
	}
	return caps.Capabilities
}

func (p *V4L2Platform) ListDevices(ctx context.Context) ([]Device, error) {
	return p.discovery.ScanDevices(ctx)
}

func (p *V4L2Platform) RequestAccess(ctx context.Context) (Stream, error) {
	devices, err := p.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrCameraUnavailable
	}
	return p.Open(ctx, devices[0].ID)
}

func (p *V4L2Platform) Open(ctx context.Context, deviceID string) (Stream, error) {
	if err := checkAccess(deviceID); err != nil {
		return nil, err
	}

	dev, err := device.Open(deviceID,
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			Width:       uint32(p.settings.Width),
			Height:      uint32(p.settings.Height),
			PixelFormat: v4l2.PixelFmtMJPEG,
			Field:       v4l2.FieldNone,
		}),
	)
	if err != nil {
		return nil, classifyOpenError(deviceID, err)
	}

	stream, streamCtx := newFrameStream(deviceID)
	stream.cleanup = dev.Close

	if err := dev.Start(streamCtx); err != nil {
		stream.cancel()
		_ = dev.Close()
		return nil, fmt.Errorf("%w: failed to start capture on %s: %w", ErrCameraUnavailable, deviceID, err)
	}

	stream.run(streamCtx, func(ctx context.Context) error {
		output := dev.GetOutput()
		for {
			select {
			case <-ctx.Done():
				return nil
			case frame, ok := <-output:
				if !ok {
					return fmt.Errorf("device output closed")
				}
				stream.deliverJPEG(frame)
			}
		}
	})

	if err := stream.awaitFirstFrame(ctx); err != nil {
		_ = stream.Close()
		return nil, err
	}

	log.Info().Str("device_id", deviceID).Msg("v4l2 capture started")
	return stream, nil
}
