//go:build !linux

package camera

import "fmt"

// NewV4L2Platform is only available on Linux.
func NewV4L2Platform(_ Settings) (Platform, error) {
	return nil, fmt.Errorf("%w: v4l2 backend requires linux", ErrCameraUnavailable)
}
