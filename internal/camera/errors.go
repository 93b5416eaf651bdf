package camera

import "errors"

var (
	// ErrCameraUnavailable means no usable camera exists after enumeration.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrCameraAccessDenied means the platform refused access, or the access request timed out.
	ErrCameraAccessDenied = errors.New("camera access denied")
	// ErrDecodeEngineFault wraps unexpected decoder failures. Scanning continues after one.
	ErrDecodeEngineFault = errors.New("decode engine fault")
	// ErrUnknownBackend is returned by the factory for an unregistered backend name.
	ErrUnknownBackend = errors.New("unknown camera backend")
)
