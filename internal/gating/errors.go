package gating

import "errors"

// ErrorKind classifies a failed analysis request.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNoFileSelected
	KindAlreadyRunning
	KindBusiness
	KindUnreachable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoFileSelected:
		return "no_file_selected"
	case KindAlreadyRunning:
		return "already_running"
	case KindBusiness:
		return "business_error"
	case KindUnreachable:
		return "unreachable"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var (
	// ErrNoFileSelected is returned before any network call when no file was uploaded.
	ErrNoFileSelected = errors.New("please upload an .fcs file first")
	// ErrAlreadyRunning is returned while another analysis of the session is in flight.
	ErrAlreadyRunning = errors.New("an analysis is already running")
	// ErrUnreachable wraps transport and decoding failures talking to the service.
	ErrUnreachable = errors.New("connection failed: analysis service unreachable")
)

// BusinessError is an error reported by the analysis service in its response body.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return e.Message
}

// KindOf maps err to its ErrorKind. Unknown errors count as unreachable.
func KindOf(err error) ErrorKind {
	var be *BusinessError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNoFileSelected):
		return KindNoFileSelected
	case errors.Is(err, ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.As(err, &be):
		return KindBusiness
	default:
		return KindUnreachable
	}
}
