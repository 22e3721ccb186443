package protocol

import "time"

// TranscriptUpdate is one published value of the observable transcript.
// Error renderings travel on the same channel as recognized text, wrapped
// in << >> markers, so Failed distinguishes them for richer consumers.
type TranscriptUpdate struct {
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text"`
	Partial   bool      `json:"partial"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscript = "murmur.transcript"

	SubjectCtrlStart = "murmur.ctrl.start"
	SubjectCtrlStop  = "murmur.ctrl.stop"
	SubjectCtrlReset = "murmur.ctrl.reset"
)
