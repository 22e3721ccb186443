package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Capture.FramesPerBuffer != 1024 {
		t.Fatalf("expected default frame granularity 1024, got %d", cfg.Capture.FramesPerBuffer)
	}
	if !cfg.Capture.DuckOthers {
		t.Fatal("expected duck-other-audio enabled by default")
	}
	if cfg.Recognizer.Mode != "mock" || !cfg.Recognizer.PartialResults {
		t.Fatalf("unexpected recognizer defaults: %+v", cfg.Recognizer)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MURMUR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("MURMUR_BUS_USERNAME", "alice")
	t.Setenv("MURMUR_BUS_PASSWORD", "secret")
	t.Setenv("MURMUR_CAPTURE_SAMPLE_RATE", "48000")
	t.Setenv("MURMUR_CAPTURE_DUCK_FACTOR", "0.5")
	t.Setenv("MURMUR_RECOGNIZER_MODE", "exec")
	t.Setenv("MURMUR_RECOGNIZER_COMMAND", "whisper-stream --json")
	t.Setenv("MURMUR_RECOGNIZER_PARTIAL_RESULTS", "false")
	t.Setenv("MURMUR_JOURNAL_RETENTION_MODE", "persistent")
	t.Setenv("MURMUR_JOURNAL_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Capture.SampleRate != 48000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Capture.SampleRate)
	}
	if cfg.Capture.DuckFactor != 0.5 {
		t.Fatalf("expected duck factor override, got %v", cfg.Capture.DuckFactor)
	}
	if cfg.Recognizer.Mode != "exec" || cfg.Recognizer.Command == "" {
		t.Fatalf("expected recognizer override, got %+v", cfg.Recognizer)
	}
	if cfg.Recognizer.PartialResults {
		t.Fatal("expected partial results disabled")
	}
	if cfg.Journal.RetentionMode != "persistent" || cfg.Journal.RetentionDays != 7 {
		t.Fatalf("expected journal override, got %+v", cfg.Journal)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "murmur.yaml")
	body := []byte("runtime_name: studio\ncapture:\n  sample_rate: 44100\n  channels: 2\nrecognizer:\n  mode: exec-oneshot\n  command: whisper-cli\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "studio" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.Capture.SampleRate != 44100 || cfg.Capture.Channels != 2 {
		t.Fatalf("unexpected capture config: %+v", cfg.Capture)
	}
	if cfg.Recognizer.Mode != "exec-oneshot" {
		t.Fatalf("unexpected recognizer mode: %q", cfg.Recognizer.Mode)
	}
}

func TestValidateRejectsBadRecognizerMode(t *testing.T) {
	t.Setenv("MURMUR_RECOGNIZER_MODE", "cloud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown recognizer mode")
	}
}

func TestValidateRequiresCommandForExec(t *testing.T) {
	t.Setenv("MURMUR_RECOGNIZER_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error when exec mode has no command")
	}
}
