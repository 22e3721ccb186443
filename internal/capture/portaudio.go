//go:build portaudio
// +build portaudio

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/murmurlabs/murmur-core/internal/config"
)

type portAudioDevice struct {
	cfg    config.CaptureConfig
	log    *slog.Logger
	ducker *Ducker
}

// NewDevice opens the default input through PortAudio. Input-only stream,
// int16 frames at the configured granularity.
func NewDevice(cfg config.CaptureConfig, log *slog.Logger) Device {
	var ducker *Ducker
	if cfg.DuckOthers {
		ducker = NewDucker(cfg, []string{"murmur", "murmurd"}, log)
	}
	return &portAudioDevice{
		cfg:    cfg,
		log:    log.With(slog.String("component", "capture")),
		ducker: ducker,
	}
}

func (d *portAudioDevice) RequestPermission(_ context.Context) (bool, error) {
	// PortAudio has no permission broker; probe the default input device so
	// a missing or blocked microphone surfaces as a denial.
	if err := portaudio.Initialize(); err != nil {
		return false, nil
	}
	defer portaudio.Terminate()
	dev, err := portaudio.DefaultInputDevice()
	return err == nil && dev != nil, nil
}

func (d *portAudioDevice) Start(onBuffer func(pcm []byte)) (Handle, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPermitted, err)
	}

	buf := make([]int16, d.cfg.FramesPerBuffer*d.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		d.cfg.Channels,
		0,
		float64(d.cfg.SampleRate),
		d.cfg.FramesPerBuffer,
		buf,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	if d.ducker != nil {
		if err := d.ducker.Duck(context.Background()); err != nil {
			d.log.Warn("failed to duck other audio", slog.String("error", err.Error()))
		}
	}

	h := &portAudioHandle{
		device: d,
		stream: stream,
		buf:    buf,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.loop(onBuffer)

	d.log.Info("microphone capture started",
		slog.Int("sample_rate", d.cfg.SampleRate),
		slog.Int("frames_per_buffer", d.cfg.FramesPerBuffer))
	return h, nil
}

type portAudioHandle struct {
	device *portAudioDevice
	stream *portaudio.Stream
	buf    []int16
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (h *portAudioHandle) loop(onBuffer func([]byte)) {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		default:
		}
		if err := h.stream.Read(); err != nil {
			h.device.log.Warn("capture read failed", slog.String("error", err.Error()))
			return
		}
		pcm := make([]byte, len(h.buf)*2)
		for i, s := range h.buf {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
		}
		onBuffer(pcm)
	}
}

func (h *portAudioHandle) Stop() {
	h.once.Do(func() {
		close(h.stop)
		<-h.done
		_ = h.stream.Stop()
		_ = h.stream.Close()
		if h.device.ducker != nil {
			if err := h.device.ducker.Restore(context.Background()); err != nil {
				h.device.log.Warn("failed to restore other audio", slog.String("error", err.Error()))
			}
		}
		portaudio.Terminate()
	})
}
