package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/murmurlabs/murmur-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.JournalConfig{RetentionMode: "ephemeral"}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	if err := j.Record(context.Background(), "s1", EventStarted, ""); err != nil {
		t.Fatalf("record on ephemeral journal: %v", err)
	}
	entries, err := j.ListSession(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries from ephemeral journal, got %d", len(entries))
	}
}

func TestRecordAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "session"}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	sessionID := "session-123"
	if err := j.Record(context.Background(), sessionID, EventStarted, ""); err != nil {
		t.Fatalf("record started: %v", err)
	}
	if err := j.Record(context.Background(), sessionID, EventFailed, "recognizer unavailable"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	entries, err := j.ListSession(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Event != EventStarted {
		t.Fatalf("expected started first, got %q", entries[0].Event)
	}
	if entries[1].Event != EventFailed || entries[1].Detail != "recognizer unavailable" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	j.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := j.Record(context.Background(), "old-session", EventStarted, ""); err != nil {
		t.Fatalf("record old: %v", err)
	}

	j.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := j.Record(context.Background(), "new-session", EventStarted, ""); err != nil {
		t.Fatalf("record new: %v", err)
	}
	if err := j.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := j.ListSession(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected old session pruned, got %d entries", len(entries))
	}
}
