package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/murmurlabs/murmur-core/internal/config"
)

// oneshotRecognizer buffers the whole utterance and hands it to a subprocess
// as a WAV file once the session ends, for whisper-cli style tools that
// cannot stream. It emits no partials; the single final event arrives after
// Cancel.
type oneshotRecognizer struct {
	argv       []string
	cfg        config.RecognizerConfig
	sampleRate int
	channels   int
}

const oneshotTimeout = 45 * time.Second

func NewOneshotRecognizer(cfg config.RecognizerConfig, capture config.CaptureConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("recognizer command is empty")
	}
	return &oneshotRecognizer{
		argv:       args,
		cfg:        cfg,
		sampleRate: capture.SampleRate,
		channels:   capture.Channels,
	}, nil
}

func (r *oneshotRecognizer) Available() bool {
	_, err := exec.LookPath(r.argv[0])
	return err == nil
}

func (r *oneshotRecognizer) RequestPermission(_ context.Context) (bool, error) {
	return true, nil
}

func (r *oneshotRecognizer) Start(onEvent func(Event)) (Session, error) {
	return &oneshotSession{rec: r, onEvent: onEvent}, nil
}

type oneshotSession struct {
	rec     *oneshotRecognizer
	onEvent func(Event)

	mu     sync.Mutex
	pcm    []byte
	closed bool
}

func (s *oneshotSession) Feed(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.pcm = append(s.pcm, pcm...)
	return nil
}

// Cancel ends the audio stream and kicks off transcription of whatever was
// buffered; the final event is delivered asynchronously afterwards.
func (s *oneshotSession) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pcm := s.pcm
	s.pcm = nil
	s.mu.Unlock()

	if len(pcm) == 0 {
		return
	}
	go s.transcribe(pcm)
}

type oneshotResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (s *oneshotSession) transcribe(pcm []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), oneshotTimeout)
	defer cancel()

	text, err := s.run(ctx, pcm)
	if err != nil {
		s.onEvent(Event{Err: err})
		return
	}
	s.onEvent(Event{Text: text, Final: true})
}

func (s *oneshotSession) run(ctx context.Context, pcm []byte) (string, error) {
	file, err := os.CreateTemp(os.TempDir(), "murmur_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, s.rec.sampleRate, s.rec.channels); err != nil {
		return "", err
	}

	args := append([]string{}, s.rec.argv[1:]...)
	args = append(args, "--audio", file.Name())
	if s.rec.cfg.ModelPath != "" {
		args = append(args, "--model", s.rec.cfg.ModelPath)
	}
	if s.rec.cfg.Language != "" {
		args = append(args, "--language", s.rec.cfg.Language)
	}

	command := exec.CommandContext(ctx, s.rec.argv[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("recognizer command failed: %w: %s", err, stderr.String())
	}

	var resp oneshotResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode recognizer response: %w", err)
	}
	return resp.Text, nil
}
