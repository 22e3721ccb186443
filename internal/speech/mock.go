package speech

import (
	"context"
	"fmt"
	"sync"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that echoes byte counts instead of
// real transcription, for development without a speech backend.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Available() bool { return true }

func (m *mockRecognizer) RequestPermission(_ context.Context) (bool, error) {
	return true, nil
}

func (m *mockRecognizer) Start(onEvent func(Event)) (Session, error) {
	return &mockSession{onEvent: onEvent}, nil
}

type mockSession struct {
	onEvent func(Event)
	mu      sync.Mutex
	total   int
	done    bool
}

func (s *mockSession) Feed(pcm []byte) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.total += len(pcm)
	total := s.total
	s.mu.Unlock()

	s.onEvent(Event{Text: fmt.Sprintf("[partial transcript bytes=%d]", total)})
	return nil
}

func (s *mockSession) Cancel() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	total := s.total
	s.mu.Unlock()

	s.onEvent(Event{Text: fmt.Sprintf("[final transcript bytes=%d]", total), Final: true})
}
