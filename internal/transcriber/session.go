package transcriber

import (
	"sync"

	"github.com/murmurlabs/murmur-core/internal/capture"
	"github.com/murmurlabs/murmur-core/internal/speech"
)

// captureSession pairs the audio-input handle with the recognition-session
// handle for one recording attempt. A recognizer event can race session
// assembly, so the handles are attached under the lock and an attach that
// loses to teardown releases the handle instead of keeping it.
type captureSession struct {
	id string

	mu          sync.Mutex
	recognition speech.Session
	audio       capture.Handle
	done        bool
}

func newCaptureSession(id string) *captureSession {
	return &captureSession{id: id}
}

// attachRecognition records the recognition handle, or cancels it when the
// session was torn down mid-assembly. Reports whether the session is still
// live.
func (s *captureSession) attachRecognition(rec speech.Session) bool {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		rec.Cancel()
		return false
	}
	s.recognition = rec
	s.mu.Unlock()
	return true
}

// attachAudio records the capture handle, or stops it when the session was
// torn down mid-assembly.
func (s *captureSession) attachAudio(h capture.Handle) bool {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		h.Stop()
		return false
	}
	s.audio = h
	s.mu.Unlock()
	return true
}

// feed forwards captured PCM into the recognition request. Buffers arriving
// after teardown are dropped; a feed error is not reported here because the
// recognizer surfaces failures through its event callback.
func (s *captureSession) feed(pcm []byte) {
	s.mu.Lock()
	rec := s.recognition
	done := s.done
	s.mu.Unlock()
	if done || rec == nil {
		return
	}
	_ = rec.Feed(pcm)
}

// closed reports whether teardown has begun.
func (s *captureSession) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// close stops audio input before cancelling recognition and reports whether
// this call performed the teardown. The handles are released outside the
// lock so an event the cancel itself provokes can re-enter safely.
func (s *captureSession) close() bool {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return false
	}
	s.done = true
	audio := s.audio
	rec := s.recognition
	s.mu.Unlock()

	if audio != nil {
		audio.Stop()
	}
	if rec != nil {
		rec.Cancel()
	}
	return true
}
