package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLinuxDiscovery_ScanDevices(t *testing.T) {
	ctx := context.Background()
	discovery := NewLinuxDiscovery("")

	devices, err := discovery.ScanDevices(ctx)
	if err != nil {
		t.Fatalf("ScanDevices failed: %v", err)
	}

	// CI machines usually have no cameras
	t.Logf("Found %d video devices", len(devices))
}

func TestLinuxDiscovery_SortsAndNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video10", "video2", "video0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	discovery := NewLinuxDiscovery(filepath.Join(dir, "video*")).WithInspector(func(_ context.Context, device string) (NodeInfo, bool) {
		if filepath.Base(device) == "video2" {
			return NodeInfo{Card: "Back Camera", Capture: true, Color: true}, true
		}
		return NodeInfo{}, false
	})

	devices, err := discovery.ScanDevices(context.Background())
	if err != nil {
		t.Fatalf("ScanDevices failed: %v", err)
	}

	if len(devices) != 3 {
		t.Fatalf("Expected 3 devices, got %d", len(devices))
	}

	want := []Device{
		{ID: filepath.Join(dir, "video0"), Label: "Camera 0"},
		{ID: filepath.Join(dir, "video2"), Label: "Back Camera"},
		{ID: filepath.Join(dir, "video10"), Label: "Camera 10"},
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device %d: got %+v, want %+v", i, devices[i], want[i])
		}
	}
}

func TestLinuxDiscovery_IsDeviceAvailable(t *testing.T) {
	ctx := context.Background()
	discovery := NewLinuxDiscovery("")

	if discovery.IsDeviceAvailable(ctx, "/dev/video999") {
		t.Error("Expected non-existent device to be unavailable")
	}
	if discovery.IsDeviceAvailable(ctx, "/invalid/path") {
		t.Error("Expected invalid path to be unavailable")
	}
}

func touchNodes(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
}

func TestLinuxDiscovery_SkipsNonCameraNodes(t *testing.T) {
	dir := t.TempDir()
	touchNodes(t, dir, "video0", "video1", "video2", "video3", "video4")

	nodes := map[string]NodeInfo{
		// one UVC webcam: capture node plus its metadata node
		"video0": {Card: "Integrated Camera", BusInfo: "usb-0000:00:14.0-8", Capture: true, Color: true},
		"video1": {Card: "Integrated Camera", BusInfo: "usb-0000:00:14.0-8"},
		// infrared sensor
		"video2": {Card: "Integrated IR Camera", BusInfo: "usb-0000:00:14.0-9", Capture: true},
		// a second capture channel of the first webcam
		"video3": {Card: "Integrated Camera", BusInfo: "usb-0000:00:14.0-8", Capture: true, Color: true},
		// an identical model on another port is a different camera
		"video4": {Card: "Integrated Camera", BusInfo: "usb-0000:00:14.0-2", Capture: true, Color: true},
	}
	discovery := NewLinuxDiscovery(filepath.Join(dir, "video*")).WithInspector(func(_ context.Context, device string) (NodeInfo, bool) {
		info, ok := nodes[filepath.Base(device)]
		return info, ok
	})

	devices, err := discovery.ScanDevices(context.Background())
	if err != nil {
		t.Fatalf("ScanDevices failed: %v", err)
	}

	want := []Device{
		{ID: filepath.Join(dir, "video0"), Label: "Integrated Camera"},
		{ID: filepath.Join(dir, "video4"), Label: "Integrated Camera"},
	}
	if len(devices) != len(want) {
		t.Fatalf("Expected %d cameras, got %+v", len(want), devices)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device %d: got %+v, want %+v", i, devices[i], want[i])
		}
	}
}

func TestLinuxDiscovery_WebcamWithMetadataNodeStartsOnCapture(t *testing.T) {
	dir := t.TempDir()
	touchNodes(t, dir, "video0", "video1")

	discovery := NewLinuxDiscovery(filepath.Join(dir, "video*")).WithInspector(func(_ context.Context, device string) (NodeInfo, bool) {
		info := NodeInfo{Card: "HD Webcam", BusInfo: "usb-1"}
		if filepath.Base(device) == "video0" {
			info.Capture, info.Color = true, true
		}
		return info, true
	})

	devices, err := discovery.ScanDevices(context.Background())
	if err != nil {
		t.Fatalf("ScanDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Expected one camera, got %+v", devices)
	}
	if got := devices[PreferredIndex(devices)].ID; got != filepath.Join(dir, "video0") {
		t.Errorf("default selection: got %s", got)
	}
}

const c920Info = `Driver Info:
	Driver name      : uvcvideo
	Card type        : HD Pro Webcam C920
	Bus info         : usb-0000:00:14.0-1
	Driver version   : 6.5.13
	Capabilities     : 0x84a00001
		Video Capture
		Metadata Capture
		Streaming
		Extended Pix Format
		Device Capabilities
	Device Caps      : 0x04200001
		Video Capture
		Streaming
		Extended Pix Format
`

const c920MetaInfo = `Driver Info:
	Driver name      : uvcvideo
	Card type        : HD Pro Webcam C920
	Bus info         : usb-0000:00:14.0-1
	Capabilities     : 0x84a00001
		Video Capture
		Metadata Capture
		Streaming
		Extended Pix Format
		Device Capabilities
	Device Caps      : 0x04a00000
		Metadata Capture
		Streaming
		Extended Pix Format
`

func TestParseInfo(t *testing.T) {
	if got := parseInfoField(c920Info, "Card type"); got != "HD Pro Webcam C920" {
		t.Errorf("card: got %q", got)
	}
	if got := parseInfoField(c920Info, "Bus info"); got != "usb-0000:00:14.0-1" {
		t.Errorf("bus: got %q", got)
	}
	if got := parseInfoField("nothing here", "Card type"); got != "" {
		t.Errorf("card on garbage: got %q", got)
	}

	if !hasDeviceCap(c920Info, "Video Capture") {
		t.Error("capture node should report Video Capture")
	}
	if hasDeviceCap(c920MetaInfo, "Video Capture") {
		t.Error("metadata node must not inherit Video Capture from the device-wide caps")
	}

	legacy := "Driver Info:\n\tCapabilities     : 0x05000001\n\t\tVideo Capture\n\t\tStreaming\n"
	if !hasDeviceCap(legacy, "Video Capture") {
		t.Error("drivers without Device Caps fall back to Capabilities")
	}
}

func TestHasColorFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats string
		want    bool
	}{
		{"mjpeg", "\t[0]: 'MJPG' (Motion-JPEG, compressed)\n", true},
		{"yuyv", "\t[0]: 'YUYV' (YUYV 4:2:2)\n", true},
		{"grey only", "\t[0]: 'GREY' (8-bit Greyscale)\n", false},
		{"none", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasColorFormat(tt.formats); got != tt.want {
				t.Errorf("hasColorFormat: got %v, want %v", got, tt.want)
			}
		})
	}
}
