// Package transcriber owns the recording lifecycle: it sequences permission
// checks, opens and closes capture sessions, forwards audio into the
// recognition capability, and republishes transcript and error events
// through a single serialized publish path.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/murmurlabs/murmur-core/internal/capture"
	"github.com/murmurlabs/murmur-core/internal/journal"
	"github.com/murmurlabs/murmur-core/internal/speech"
)

// State is the controller's lifecycle state. There is nothing between Idle
// and Recording; every failure path lands back in Idle.
type State int

const (
	StateIdle State = iota
	StateRecording
)

// Update is one published value of the observable transcript. Failed updates
// carry the bracket-wrapped error rendering in Text.
type Update struct {
	SessionID string
	Text      string
	Partial   bool
	Failed    bool
}

type Options struct {
	Logger  *slog.Logger
	Journal *journal.Journal
}

// Controller holds at most one active capture session and republishes
// transcript and error events to the observable transcript value. All
// transcript mutation happens on the controller's publish goroutine; the
// recognizer's event callback only tears down and enqueues.
type Controller struct {
	log        *slog.Logger
	recognizer speech.Recognizer
	device     capture.Device
	journal    *journal.Journal

	mu         sync.Mutex
	state      State
	session    *captureSession
	transcript string

	updates   chan Update
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	wmu      sync.Mutex
	watchers []chan Update

	sessionsStarted metric.Int64Counter
	publishCount    metric.Int64Counter
	recordingGauge  metric.Int64UpDownCounter
}

// New constructs the controller and kicks off the asynchronous permission
// checks. It never blocks. A nil recognizer permanently disables the
// controller: the construction failure is published once and every later
// Start republishes it.
func New(ctx context.Context, recognizer speech.Recognizer, device capture.Device, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		log:        log.With(slog.String("component", "transcriber")),
		recognizer: recognizer,
		device:     device,
		journal:    opts.Journal,
		updates:    make(chan Update, 64),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	c.initMetrics()
	go c.run()

	if recognizer == nil {
		c.publishError("", &Error{Kind: KindNilRecognizer})
		return c
	}

	// The two permission checks are independent and do not block other
	// operations; a denial only surfaces as a published failure. Enforcement
	// happens again when capture is actually attempted.
	go func() {
		granted, err := recognizer.RequestPermission(ctx)
		if err != nil {
			c.publishError("", &Error{Kind: KindOther, Cause: err})
			return
		}
		if !granted {
			c.publishError("", &Error{Kind: KindNotAuthorized})
		}
	}()
	go func() {
		granted, err := device.RequestPermission(ctx)
		if err != nil {
			c.publishError("", &Error{Kind: KindOther, Cause: err})
			return
		}
		if !granted {
			c.publishError("", &Error{Kind: KindNotPermitted})
		}
	}()

	return c
}

// Start begins a recording attempt. Calling it while already recording is a
// no-op. Failures are published to the transcript channel; Start itself
// never returns them.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.state == StateRecording {
		c.mu.Unlock()
		c.log.Debug("start ignored, already recording")
		return
	}
	if c.recognizer == nil {
		c.mu.Unlock()
		c.publishError("", &Error{Kind: KindNilRecognizer})
		return
	}
	if !c.recognizer.Available() {
		c.mu.Unlock()
		c.publishError("", &Error{Kind: KindUnavailable})
		return
	}

	sess := newCaptureSession(uuid.NewString())
	recSess, err := c.recognizer.Start(func(ev speech.Event) {
		c.handleEvent(sess, ev)
	})
	if err != nil {
		c.mu.Unlock()
		e := &Error{Kind: KindOther, Cause: err}
		c.publishError(sess.id, e)
		c.record(sess.id, journal.EventFailed, e.Kind.String())
		return
	}
	if !sess.attachRecognition(recSess) {
		// An event already failed the session before assembly finished;
		// handleEvent published the failure and released everything.
		c.mu.Unlock()
		return
	}

	handle, err := c.device.Start(sess.feed)
	if err != nil {
		c.mu.Unlock()
		sess.close()
		kind := KindOther
		if errors.Is(err, capture.ErrNotPermitted) {
			kind = KindNotPermitted
		}
		e := &Error{Kind: kind, Cause: err}
		c.publishError(sess.id, e)
		c.record(sess.id, journal.EventFailed, e.Kind.String())
		return
	}
	if !sess.attachAudio(handle) {
		c.mu.Unlock()
		return
	}
	c.session = sess
	c.state = StateRecording
	c.mu.Unlock()

	if c.sessionsStarted != nil {
		c.sessionsStarted.Add(context.Background(), 1)
	}
	if c.recordingGauge != nil {
		c.recordingGauge.Add(context.Background(), 1)
	}
	c.record(sess.id, journal.EventStarted, "")
	c.log.Info("recording started", slog.String("session_id", sess.id))
}

// Stop tears down the active capture session and preserves the last
// published transcript.
func (c *Controller) Stop() {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}
	c.finish(sess, journal.EventStopped, "stop requested")
}

// Reset tears down like Stop and additionally clears the published
// transcript to empty. Preserving on Stop and clearing on Reset is the one
// deliberate difference between the two.
func (c *Controller) Reset() {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		c.finish(sess, journal.EventStopped, "reset requested")
	}
	c.enqueue(Update{Text: ""})
}

// Transcript returns the current published transcript value.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// Recording reports whether a capture session is currently active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRecording
}

// Watch registers an observer of the published transcript. Slow observers
// drop updates rather than stall the publish path. The channel closes when
// the controller closes.
func (c *Controller) Watch() <-chan Update {
	ch := make(chan Update, 16)
	c.wmu.Lock()
	c.watchers = append(c.watchers, ch)
	c.wmu.Unlock()
	return ch
}

// Close stops any active session and shuts down the publish loop.
func (c *Controller) Close() {
	c.Stop()
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		c.wmu.Lock()
		for _, w := range c.watchers {
			close(w)
		}
		c.watchers = nil
		c.wmu.Unlock()
	})
}

// handleEvent is the single event callback for a session. It runs on a
// goroutine owned by the recognizer, so it must not touch the transcript
// directly: terminal events tear down synchronously, then everything goes
// through the serialized publish path.
func (c *Controller) handleEvent(sess *captureSession, ev speech.Event) {
	if ev.Err != nil {
		// A failure for a session that is already gone is stale; only the
		// teardown-performing observer reports it.
		e := &Error{Kind: KindOther, Cause: ev.Err}
		if c.finish(sess, journal.EventFailed, e.Kind.String()) {
			c.publishError(sess.id, e)
		}
		return
	}
	if ev.Final {
		// Only the observer that performed the teardown publishes the final
		// text; a final trailing Stop or Reset is stale.
		if c.finish(sess, journal.EventStopped, "final result") && ev.Text != "" {
			c.publishText(sess.id, ev.Text, false)
		}
		return
	}
	if ev.Text != "" && !sess.closed() {
		c.publishText(sess.id, ev.Text, true)
	}
}

// finish releases the session exactly once and returns the controller to
// Idle. Safe to call from any goroutine and for sessions already torn down;
// reports whether this call performed the teardown.
func (c *Controller) finish(sess *captureSession, event, detail string) bool {
	// Losing the teardown race returns before touching c.mu: a re-entered
	// finish on a goroutine already holding it must not self-deadlock.
	if !sess.close() {
		return false
	}
	c.mu.Lock()
	wasCurrent := c.session == sess
	if wasCurrent {
		c.session = nil
		c.state = StateIdle
	}
	c.mu.Unlock()
	if wasCurrent && c.recordingGauge != nil {
		c.recordingGauge.Add(context.Background(), -1)
	}
	c.record(sess.id, event, detail)
	c.log.Info("recording session released",
		slog.String("session_id", sess.id),
		slog.String("event", event),
		slog.String("detail", detail))
	return true
}

func (c *Controller) publishText(sessionID, text string, partial bool) {
	c.enqueue(Update{SessionID: sessionID, Text: text, Partial: partial})
}

func (c *Controller) publishError(sessionID string, e *Error) {
	c.log.Warn("recognition failure",
		slog.String("kind", e.Kind.String()),
		slog.String("message", e.Message()))
	c.enqueue(Update{SessionID: sessionID, Text: fmt.Sprintf("<< %s >>", e.Message()), Failed: true})
}

func (c *Controller) enqueue(u Update) {
	select {
	case c.updates <- u:
	case <-c.done:
	}
}

// run is the publish loop: the one goroutine allowed to mutate the
// published transcript.
func (c *Controller) run() {
	defer close(c.loopDone)
	for {
		select {
		case u := <-c.updates:
			c.mu.Lock()
			c.transcript = u.Text
			c.mu.Unlock()
			if c.publishCount != nil {
				c.publishCount.Add(context.Background(), 1)
			}
			c.notify(u)
		case <-c.done:
			return
		}
	}
}

func (c *Controller) notify(u Update) {
	c.wmu.Lock()
	watchers := append([]chan Update(nil), c.watchers...)
	c.wmu.Unlock()
	for _, w := range watchers {
		select {
		case w <- u:
		default:
		}
	}
}

func (c *Controller) record(sessionID, event, detail string) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.journal.Record(ctx, sessionID, event, detail); err != nil {
		c.log.Warn("journal write failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) initMetrics() {
	meter := otel.Meter("github.com/murmurlabs/murmur-core/internal/transcriber")
	var err error
	c.sessionsStarted, err = meter.Int64Counter("murmur.sessions.started",
		metric.WithDescription("Recording sessions started"))
	if err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	c.publishCount, err = meter.Int64Counter("murmur.transcript.publishes",
		metric.WithDescription("Transcript values published"))
	if err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	c.recordingGauge, err = meter.Int64UpDownCounter("murmur.recording.active",
		metric.WithDescription("Active capture sessions"))
	if err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
}
