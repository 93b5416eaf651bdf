package camera

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// rearTokens mark labels that usually belong to a rear-facing camera.
var rearTokens = []string{"back", "rear", "environment", "wide"}

// EnumerateDevices lists cameras in two phases. When any label is empty it opens a throwaway
// stream to unlock labels, closes it right away and lists again. Entries are deduplicated by ID
// and entries without an ID are dropped.
func EnumerateDevices(ctx context.Context, platform Platform) ([]Device, error) {
	devices, err := platform.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	if hasEmptyLabel(devices) {
		unlockLabels(ctx, platform)

		devices, err = platform.ListDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		}
	}

	devices = dedupe(devices)
	if len(devices) == 0 {
		return nil, ErrCameraUnavailable
	}

	return devices, nil
}

func unlockLabels(ctx context.Context, platform Platform) {
	stream, err := platform.RequestAccess(ctx)
	if err != nil {
		// labels stay empty; the open that follows reports the real failure
		log.Warn().Err(err).Msg("camera access request failed")
		return
	}
	if err := stream.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to release label unlock stream")
	}
}

func hasEmptyLabel(devices []Device) bool {
	for _, d := range devices {
		if d.Label == "" {
			return true
		}
	}
	return false
}

func dedupe(devices []Device) []Device {
	seen := make(map[string]struct{}, len(devices))
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}

// PreferredIndex picks the first device whose label names a rear camera, else the last one.
//
// Falling back to the last device is a heuristic: phones tend to list the front camera first.
// No platform guarantees this order. Returns -1 for an empty list.
func PreferredIndex(devices []Device) int {
	for i, d := range devices {
		label := strings.ToLower(d.Label)
		for _, token := range rearTokens {
			if strings.Contains(label, token) {
				return i
			}
		}
	}
	return len(devices) - 1
}
