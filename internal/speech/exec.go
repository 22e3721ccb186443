package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/murmurlabs/murmur-core/internal/config"
)

// execRecognizer streams PCM into a subprocess and reads transcript events
// back as JSON lines ({"text": "...", "final": false}) on stdout. Works with
// whisper-stream style CLIs.
type execRecognizer struct {
	argv []string
	cfg  config.RecognizerConfig
}

func NewExecRecognizer(cfg config.RecognizerConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("recognizer command is empty")
	}
	return &execRecognizer{argv: args, cfg: cfg}, nil
}

func (r *execRecognizer) Available() bool {
	_, err := exec.LookPath(r.argv[0])
	return err == nil
}

func (r *execRecognizer) RequestPermission(_ context.Context) (bool, error) {
	// Subprocess recognizers have no authorization broker; availability of
	// the binary is the only gate.
	return true, nil
}

func (r *execRecognizer) Start(onEvent func(Event)) (Session, error) {
	args := append([]string{}, r.argv[1:]...)
	if r.cfg.ModelPath != "" {
		args = append(args, "--model", r.cfg.ModelPath)
	}
	if r.cfg.Language != "" {
		args = append(args, "--language", r.cfg.Language)
	}
	if r.cfg.PartialResults {
		args = append(args, "--partial")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, r.argv[0], args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("recognizer stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("recognizer stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start recognizer command: %w", err)
	}

	s := &execSession{cancel: cancel, stdin: stdin}
	go s.readEvents(cmd, stdout, &stderr, onEvent)
	return s, nil
}

type execSession struct {
	cancel context.CancelFunc
	stdin  io.WriteCloser

	mu       sync.Mutex
	closed   bool
	terminal sync.Once
}

type execEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

func (s *execSession) Feed(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if _, err := s.stdin.Write(pcm); err != nil {
		return fmt.Errorf("feed recognizer: %w", err)
	}
	return nil
}

func (s *execSession) Cancel() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		_ = s.stdin.Close()
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *execSession) wasCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *execSession) readEvents(cmd *exec.Cmd, stdout io.Reader, stderr *bytes.Buffer, onEvent func(Event)) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawFinal := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev execEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			s.terminal.Do(func() {
				onEvent(Event{Err: fmt.Errorf("decode recognizer event: %w", err)})
			})
			s.Cancel()
			break
		}
		if ev.Final {
			sawFinal = true
			s.terminal.Do(func() {
				onEvent(Event{Text: ev.Text, Final: true})
			})
			continue
		}
		onEvent(Event{Text: ev.Text})
	}

	err := cmd.Wait()
	if s.wasCancelled() && !sawFinal {
		// Cancelled by the caller; the kill error is expected, say nothing.
		return
	}
	if err != nil {
		s.terminal.Do(func() {
			onEvent(Event{Err: fmt.Errorf("recognizer command failed: %w: %s", err, stderr.String())})
		})
		return
	}
	if !sawFinal {
		s.terminal.Do(func() {
			onEvent(Event{Err: errors.New("recognizer exited without a final result")})
		})
	}
}
