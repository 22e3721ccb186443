package speech

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/murmurlabs/murmur-core/internal/config"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script recognizers not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "recognizer.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func collectEvents(t *testing.T, rec Recognizer) (Session, <-chan Event) {
	t.Helper()
	events := make(chan Event, 16)
	sess, err := rec.Start(func(ev Event) { events <- ev })
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return sess, events
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for recognizer event")
		return Event{}
	}
}

func TestExecRecognizerStreamsPartialThenFinal(t *testing.T) {
	script := writeScript(t, `echo '{"text":"hel","final":false}'
echo '{"text":"hello world","final":true}'
cat >/dev/null
`)
	rec, err := NewExecRecognizer(config.RecognizerConfig{Mode: "exec", Command: script})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	if !rec.Available() {
		t.Fatal("expected script recognizer to be available")
	}

	sess, events := collectEvents(t, rec)
	defer sess.Cancel()

	first := nextEvent(t, events)
	if first.Text != "hel" || first.Final || first.Err != nil {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second := nextEvent(t, events)
	if second.Text != "hello world" || !second.Final {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestExecRecognizerReportsCommandFailure(t *testing.T) {
	script := writeScript(t, "exit 3\n")
	rec, err := NewExecRecognizer(config.RecognizerConfig{Mode: "exec", Command: script})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}

	sess, events := collectEvents(t, rec)
	defer sess.Cancel()

	ev := nextEvent(t, events)
	if ev.Err == nil {
		t.Fatalf("expected failure event, got %+v", ev)
	}
}

func TestExecRecognizerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecRecognizer(config.RecognizerConfig{Mode: "exec"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestMockRecognizerSession(t *testing.T) {
	rec := NewMockRecognizer()
	sess, events := collectEvents(t, rec)

	if err := sess.Feed(make([]byte, 2048)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	partial := nextEvent(t, events)
	if partial.Final || partial.Text == "" {
		t.Fatalf("expected partial event, got %+v", partial)
	}

	sess.Cancel()
	final := nextEvent(t, events)
	if !final.Final {
		t.Fatalf("expected final event, got %+v", final)
	}

	// Cancel twice must not emit a second final.
	sess.Cancel()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after second cancel: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOneshotRecognizerEmitsNothingWithoutAudio(t *testing.T) {
	rec, err := NewOneshotRecognizer(
		config.RecognizerConfig{Mode: "exec-oneshot", Command: "whisper-cli"},
		config.CaptureConfig{SampleRate: 16000, Channels: 1},
	)
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	sess, events := collectEvents(t, rec)
	sess.Cancel()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for empty utterance: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
