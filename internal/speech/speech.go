// Package speech abstracts the external recognition capability: something
// that accepts streamed PCM and emits partial/final transcript events or a
// failure on its own schedule.
package speech

import "context"

// Event is one recognition outcome. Err set means the session failed; Final
// true means Text will not change for this utterance. Events usually arrive
// on goroutines owned by the recognizer, but a Feed or Cancel may deliver
// one synchronously; callbacks must tolerate both.
type Event struct {
	Text  string
	Final bool
	Err   error
}

// Session is one live recognition request. Feed streams captured audio in,
// Cancel ends the session. Both must be safe to call from the capture
// callback goroutine.
type Session interface {
	Feed(pcm []byte) error
	Cancel()
}

// Recognizer constructs recognition sessions.
type Recognizer interface {
	// Available reports whether the capability can currently take a session.
	Available() bool
	// RequestPermission asks the capability for authorization. It may block
	// on an external prompt, so callers run it off the hot path.
	RequestPermission(ctx context.Context) (bool, error)
	// Start opens a session and registers the single event callback for it.
	// Start itself must not invoke onEvent; the first event may arrive as
	// soon as Start returns.
	Start(onEvent func(Event)) (Session, error)
}
