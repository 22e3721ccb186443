package transcriber

// ErrorKind enumerates the closed set of user-facing recognition failures.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNilRecognizer
	KindNotAuthorized
	KindNotPermitted
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNilRecognizer:
		return "nil_recognizer"
	case KindNotAuthorized:
		return "not_authorized"
	case KindNotPermitted:
		return "not_permitted"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// Error is one recognition failure. Every kind maps to a fixed
// human-readable message; Other passes the collaborator's description
// through verbatim.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string { return e.Message() }

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Message() string {
	switch e.Kind {
	case KindNilRecognizer:
		return "can't initialize speech recognizer"
	case KindNotAuthorized:
		return "Not authorized to recognize speech"
	case KindNotPermitted:
		return "Not permitted to record audio"
	case KindUnavailable:
		return "Recognizer is unavailable"
	default:
		if e.Cause != nil {
			return e.Cause.Error()
		}
		return "recognition failed"
	}
}
