package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Discovery finds camera device nodes and names them.
type Discovery interface {
	// ScanDevices returns the camera nodes sorted by device number.
	ScanDevices(ctx context.Context) ([]Device, error)

	// IsDeviceAvailable reports whether the node exists and can be opened for reading.
	IsDeviceAvailable(ctx context.Context, device string) bool
}

// NodeInfo is what an inspector learned about one device node.
type NodeInfo struct {
	Card    string
	BusInfo string
	// Capture is set for single-planar video capture nodes. UVC metadata nodes do not have it.
	Capture bool
	// Color is set when the node offers MJPEG or YUYV. Infrared cameras only offer GREY.
	Color bool
}

// identity groups the nodes of one physical camera.
func (n NodeInfo) identity() string {
	if n.Card == "" {
		return ""
	}
	return n.Card + "|" + n.BusInfo
}

// NodeInspector reads a device node. ok is false when the node could not be inspected.
type NodeInspector func(ctx context.Context, device string) (info NodeInfo, ok bool)

// LinuxDiscovery scans V4L2 device nodes matching a glob.
type LinuxDiscovery struct {
	glob    string
	inspect NodeInspector
}

var deviceNumberRe = regexp.MustCompile(`video(\d+)`)

// NewLinuxDiscovery creates a discovery over glob (defaults to /dev/video*) using v4l2-ctl to inspect nodes.
func NewLinuxDiscovery(glob string) *LinuxDiscovery {
	if glob == "" {
		glob = "/dev/video*"
	}
	return &LinuxDiscovery{glob: glob, inspect: v4l2CtlInspect}
}

// WithInspector replaces the node inspector. Backends that can query the driver directly use this.
func (d *LinuxDiscovery) WithInspector(inspect NodeInspector) *LinuxDiscovery {
	d.inspect = inspect
	return d
}

// ScanDevices lists camera nodes. The device path is the ID.
//
// Inspected nodes are kept only when they capture color video, and only the lowest numbered node of
// each physical camera is kept. Unreadable nodes are returned with an empty label so enumeration
// can try to unlock them; readable nodes that cannot be inspected keep a "Camera N" label.
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]Device, error) {
	matches, err := filepath.Glob(d.glob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	devices := make([]Device, 0, len(matches))
	seen := make(map[string]string)
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if _, err := os.Stat(match); err != nil {
			continue
		}

		dev := Device{ID: match}
		if d.IsDeviceAvailable(ctx, match) {
			info, ok := NodeInfo{}, false
			if d.inspect != nil {
				info, ok = d.inspect(ctx, match)
			}
			if ok {
				if !info.Capture || !info.Color {
					log.Debug().Str("device_id", match).Bool("capture", info.Capture).Bool("color", info.Color).
						Msg("skipping node that is not a color camera")
					continue
				}
				if key := info.identity(); key != "" {
					if first, dup := seen[key]; dup {
						log.Debug().Str("device_id", match).Str("sibling_of", first).Msg("skipping extra node of the same camera")
						continue
					}
					seen[key] = match
				}
				dev.Label = info.Card
			}
			if dev.Label == "" {
				dev.Label = fmt.Sprintf("Camera %d", extractDeviceNumber(match))
			}
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

// IsDeviceAvailable reports whether device exists and is readable.
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// v4l2CtlInspect reads driver info and the format list through v4l2-ctl.
func v4l2CtlInspect(ctx context.Context, device string) (NodeInfo, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err != nil {
		log.Debug().Err(err).Str("device_id", device).Msg("v4l2-ctl info failed")
		return NodeInfo{}, false
	}
	formats, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext").Output()
	if err != nil {
		log.Debug().Err(err).Str("device_id", device).Msg("v4l2-ctl list-formats failed")
		return NodeInfo{}, false
	}

	return NodeInfo{
		Card:    parseInfoField(string(info), "Card type"),
		BusInfo: parseInfoField(string(info), "Bus info"),
		Capture: hasDeviceCap(string(info), "Video Capture"),
		Color:   hasColorFormat(string(formats)),
	}, true
}

func parseInfoField(info, field string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, field) {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// hasDeviceCap looks for capability in the "Device Caps" block of v4l2-ctl --info, falling back to
// the "Capabilities" block for drivers that do not report per-node caps.
func hasDeviceCap(info, capability string) bool {
	blocks := capBlocks(info)
	caps, ok := blocks["Device Caps"]
	if !ok {
		caps = blocks["Capabilities"]
	}
	for _, c := range caps {
		if c == capability {
			return true
		}
	}
	return false
}

// capBlocks collects the indented flag lines under each "Name : 0x..." header.
func capBlocks(info string) map[string][]string {
	blocks := make(map[string][]string)
	current := ""
	for _, line := range strings.Split(info, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, value, ok := strings.Cut(trimmed, ":"); ok {
			current = ""
			if strings.HasPrefix(strings.TrimSpace(value), "0x") {
				current = strings.TrimSpace(name)
				blocks[current] = nil
			}
			continue
		}
		if current != "" {
			blocks[current] = append(blocks[current], trimmed)
		}
	}
	return blocks
}

func hasColorFormat(formats string) bool {
	return strings.Contains(formats, "'MJPG'") || strings.Contains(formats, "'YUYV'")
}

// extractDeviceNumber returns N from /dev/videoN, or 0.
func extractDeviceNumber(device string) int {
	matches := deviceNumberRe.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}
