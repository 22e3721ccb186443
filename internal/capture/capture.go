// Package capture abstracts the microphone capture capability: an opaque
// audio input that delivers raw PCM buffers on a tap callback between Start
// and Stop.
package capture

import (
	"context"
	"errors"
)

// ErrNotPermitted is returned by Start when microphone access is denied.
var ErrNotPermitted = errors.New("microphone capture not permitted")

// Handle is one open capture stream. Stop tears the stream down and releases
// the device; it is safe to call more than once.
type Handle interface {
	Stop()
}

// Device opens capture streams. The tap callback receives little-endian
// 16-bit PCM and runs on a goroutine owned by the device.
type Device interface {
	// RequestPermission asks for microphone access. It may block on an
	// external prompt, so callers run it off the hot path.
	RequestPermission(ctx context.Context) (bool, error)
	// Start opens the stream and begins delivering buffers to onBuffer.
	Start(onBuffer func(pcm []byte)) (Handle, error)
}
