// Package camera manages camera devices and binds them to a QR decode loop.
//
// A Session owns at most one open Stream. It enumerates devices in two phases (unlocking
// labels with a throwaway stream when needed), picks a rear-facing camera by label or falls back
// to the last device, and feeds every frame to a qr.Decoder. Switching cameras releases the
// current stream before the next one opens. A Manager keeps one Session per scanner id.
//
// Backends:
//   - v4l2: direct capture through go4vl (Linux only)
//   - ffmpeg: ffmpeg child process emitting an MJPEG pipe
//   - mock: in-memory devices for tests and machines without cameras
//
// Requirements for the hardware backends:
//   - membership in the video group for device access
//     sudo usermod -a -G video $USER
//   - ffmpeg on PATH for the ffmpeg backend
//   - v4l-utils for readable device names with the ffmpeg backend
package camera
