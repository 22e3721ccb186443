//go:build !portaudio
// +build !portaudio

package capture

import (
	"context"
	"log/slog"

	"github.com/murmurlabs/murmur-core/internal/config"
)

type stubDevice struct {
	log *slog.Logger
}

// NewDevice returns a stub when built without the portaudio tag. Capture is
// always denied, so every recording attempt surfaces the not-permitted
// failure. Build with -tags portaudio for a real microphone.
func NewDevice(_ config.CaptureConfig, log *slog.Logger) Device {
	log.Warn("built without portaudio support, microphone capture disabled")
	return &stubDevice{log: log}
}

func (d *stubDevice) RequestPermission(_ context.Context) (bool, error) {
	return false, nil
}

func (d *stubDevice) Start(_ func(pcm []byte)) (Handle, error) {
	return nil, ErrNotPermitted
}
