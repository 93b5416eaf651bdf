package camera

import (
	"fmt"
	"sort"
	"sync"
)

// PlatformCreator builds a Platform from capture settings.
type PlatformCreator func(settings Settings) (Platform, error)

// Factory creates platforms by backend name.
type Factory struct {
	mu       sync.RWMutex
	creators map[string]PlatformCreator
}

// NewFactory returns a factory with the v4l2, ffmpeg and mock backends registered.
func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]PlatformCreator)}

	f.Register("v4l2", NewV4L2Platform)
	f.Register("ffmpeg", NewFFmpegPlatform)
	f.Register("mock", newDemoPlatform)

	return f
}

// Register adds or replaces a backend.
func (f *Factory) Register(name string, creator PlatformCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[name] = creator
}

// Create builds the named backend.
func (f *Factory) Create(name string, settings Settings) (Platform, error) {
	f.mu.RLock()
	creator, ok := f.creators[name]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return creator(settings)
}

// Backends returns the registered backend names in sorted order.
func (f *Factory) Backends() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newDemoPlatform exposes a front and a back camera that never produce frames. It lets the HTTP
// surface run on machines without cameras.
func newDemoPlatform(_ Settings) (Platform, error) {
	return NewMockPlatform(
		Device{ID: "mock-front", Label: "Mock Front Camera"},
		Device{ID: "mock-back", Label: "Mock Back Camera"},
	), nil
}
