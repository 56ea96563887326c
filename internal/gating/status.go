package gating

import (
	"encoding/json"
	"errors"
)

// State is the lifecycle position of a session's analysis request.
type State int

const (
	Idle State = iota
	InFlight
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a tagged variant: Kind and Message are only set when State is Failed.
type Status struct {
	State   State
	Kind    ErrorKind
	Message string
}

// StatusIdle, StatusInFlight and StatusSucceeded are the payload-free states.
var (
	StatusIdle      = Status{State: Idle}
	StatusInFlight  = Status{State: InFlight}
	StatusSucceeded = Status{State: Succeeded}
)

// StatusFailed builds a Failed status from err. Service-reported messages are
// kept verbatim; transport failures use the ErrUnreachable text.
func StatusFailed(err error) Status {
	kind := KindOf(err)
	msg := err.Error()
	var be *BusinessError
	if errors.As(err, &be) {
		msg = be.Message
	} else if kind == KindUnreachable {
		msg = ErrUnreachable.Error()
	}
	return Status{State: Failed, Kind: kind, Message: msg}
}

// Running reports whether a request is outstanding.
func (s Status) Running() bool {
	return s.State == InFlight
}

// MarshalJSON emits {"state": ..., "kind": ..., "message": ...}.
func (s Status) MarshalJSON() ([]byte, error) {
	out := struct {
		State   State      `json:"state"`
		Kind    *ErrorKind `json:"kind,omitempty"`
		Message string     `json:"message,omitempty"`
	}{State: s.State}
	if s.State == Failed {
		kind := s.Kind
		out.Kind = &kind
		out.Message = s.Message
	}
	return json.Marshal(out)
}
