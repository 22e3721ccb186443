// Package runtime assembles the murmurd process: telemetry, the message
// bus, the session journal, the speech recognizer, audio capture, and the
// transcription controller, plus the HTTP surface that exposes them.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/murmurlabs/murmur-core/internal/bus"
	"github.com/murmurlabs/murmur-core/internal/capture"
	"github.com/murmurlabs/murmur-core/internal/config"
	"github.com/murmurlabs/murmur-core/internal/journal"
	"github.com/murmurlabs/murmur-core/internal/natsserver"
	"github.com/murmurlabs/murmur-core/internal/protocol"
	"github.com/murmurlabs/murmur-core/internal/speech"
	"github.com/murmurlabs/murmur-core/internal/transcriber"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	controller  *transcriber.Controller
	busClient   *bus.Client
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the runtime up and blocks until ctx is cancelled, then tears
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	jrnl, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open session journal: %w", err)
	}
	defer func() {
		if err := jrnl.Close(); err != nil {
			r.logger.Error("journal close error", slog.String("error", err.Error()))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if url := embedded.ClientURL(); url != "" {
		busCfg.Servers = []string{url}
	}
	r.busClient, err = bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to message bus: %w", err)
	}
	defer r.busClient.Close()

	recognizer := r.buildRecognizer()
	device := capture.NewDevice(r.cfg.Capture, r.logger)

	r.controller = transcriber.New(ctx, recognizer, device, transcriber.Options{
		Logger:  r.logger,
		Journal: jrnl,
	})
	defer r.controller.Close()

	if err := r.subscribeControl(); err != nil {
		return fmt.Errorf("failed to subscribe to control subjects: %w", err)
	}
	r.bridgeTranscripts()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/transcript", r.handleTranscript)

	metricsServer := r.startMetricsServer(metricsHandler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("recognizer_mode", r.cfg.Recognizer.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics server shutdown error", slog.String("error", err.Error()))
		}
	}
	// Closing the controller ends the transcript bridge goroutine, so it
	// must happen before waiting on the group.
	r.controller.Close()
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildRecognizer constructs the configured speech backend. A construction
// failure does not abort startup; the controller publishes the failure and
// refuses to record, which keeps the rest of the runtime observable.
func (r *Runtime) buildRecognizer() speech.Recognizer {
	switch r.cfg.Recognizer.Mode {
	case "exec":
		rec, err := speech.NewExecRecognizer(r.cfg.Recognizer)
		if err != nil {
			r.logger.Error("failed to build exec recognizer", slog.String("error", err.Error()))
			return nil
		}
		return rec
	case "exec-oneshot":
		rec, err := speech.NewOneshotRecognizer(r.cfg.Recognizer, r.cfg.Capture)
		if err != nil {
			r.logger.Error("failed to build oneshot recognizer", slog.String("error", err.Error()))
			return nil
		}
		return rec
	default:
		return speech.NewMockRecognizer()
	}
}

// subscribeControl maps the bus control subjects onto controller operations.
// The payloads are ignored; the subjects are the commands.
func (r *Runtime) subscribeControl() error {
	conn := r.busClient.Conn()
	if _, err := conn.Subscribe(protocol.SubjectCtrlStart, func(_ *nats.Msg) {
		r.controller.Start()
	}); err != nil {
		return err
	}
	if _, err := conn.Subscribe(protocol.SubjectCtrlStop, func(_ *nats.Msg) {
		r.controller.Stop()
	}); err != nil {
		return err
	}
	if _, err := conn.Subscribe(protocol.SubjectCtrlReset, func(_ *nats.Msg) {
		r.controller.Reset()
	}); err != nil {
		return err
	}
	return nil
}

// bridgeTranscripts forwards every published transcript value onto the bus.
// The watcher channel closes when the controller closes, which ends the
// goroutine.
func (r *Runtime) bridgeTranscripts() {
	updates := r.controller.Watch()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for u := range updates {
			msg := protocol.TranscriptUpdate{
				SessionID: u.SessionID,
				Text:      u.Text,
				Partial:   u.Partial,
				Failed:    u.Failed,
				Timestamp: time.Now().UTC(),
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				r.logger.Error("failed to marshal transcript update", slog.String("error", err.Error()))
				continue
			}
			if err := r.busClient.Conn().Publish(protocol.SubjectTranscript, payload); err != nil {
				r.logger.Warn("failed to publish transcript update", slog.String("error", err.Error()))
			}
		}
	}()
}

// startMetricsServer serves the Prometheus scrape endpoint on its own
// listener so operational scraping stays off the main API port.
func (r *Runtime) startMetricsServer(handler http.Handler) *http.Server {
	if handler == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("metrics endpoint listening", slog.String("addr", srv.Addr))
	return srv
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleTranscript serves the current transcript value as plain text, the
// same value observers see on the bus.
func (r *Runtime) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(r.controller.Transcript()))
}
