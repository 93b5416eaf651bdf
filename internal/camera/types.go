package camera

import (
	"context"
	"image"
	"time"
)

// State is the lifecycle state of a scan session.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateStreaming State = "streaming"
	StateSwitching State = "switching"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

// Device is one camera as reported by the platform.
type Device struct {
	ID    string `json:"id"`    // stable per physical camera while the process runs
	Label string `json:"label"` // may be empty until access has been granted once
}

// Snapshot is a point-in-time view of a session for building a camera picker.
type Snapshot struct {
	State       State     `json:"state"`
	Devices     []Device  `json:"devices"`
	ActiveIndex int       `json:"active_index"`
	Reason      string    `json:"reason,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Settings are the capture parameters passed to backends.
type Settings struct {
	DeviceGlob string
	Width      int
	Height     int
	FPS        int
}

// Platform is the host camera facility.
type Platform interface {
	// ListDevices returns the raw device list. Entries may have empty labels, empty IDs or duplicates.
	ListDevices(ctx context.Context) ([]Device, error)

	// RequestAccess opens a throwaway stream whose only purpose is to unlock device labels.
	RequestAccess(ctx context.Context) (Stream, error)

	// Open starts streaming frames from one device. The stream outlives ctx; only Close ends it.
	Open(ctx context.Context, deviceID string) (Stream, error)
}

// Stream is an exclusively owned frame source. Close must be idempotent.
type Stream interface {
	// Frames is closed when the stream ends, either by Close or by the device going away.
	Frames() <-chan image.Image
	Close() error
}

// ScanHandler receives decode results. Callbacks run on the session's decode goroutine, so
// they must not call Stop, Start or SwitchCamera on the same session synchronously.
type ScanHandler interface {
	OnScan(text string)
	OnError(message string)
}

// ScanHandlerFuncs adapts two functions to ScanHandler. Nil fields are ignored.
type ScanHandlerFuncs struct {
	Scan  func(text string)
	Error func(message string)
}

func (h ScanHandlerFuncs) OnScan(text string) {
	if h.Scan != nil {
		h.Scan(text)
	}
}

func (h ScanHandlerFuncs) OnError(message string) {
	if h.Error != nil {
		h.Error(message)
	}
}
