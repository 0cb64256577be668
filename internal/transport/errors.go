package transport

import (
	"errors"
	"fmt"
)

// Error kinds delivered to OnError listeners. Match with errors.Is.
var (
	ErrNoSocket = errors.New("no socket")
	ErrNotOpen  = errors.New("socket not open")
	ErrWrite    = errors.New("write failed")
	ErrEncode   = errors.New("encode failed")
	ErrProtocol = errors.New("malformed frame")
)

// Error is a non-fatal transport failure. Type is the message type involved,
// when known.
type Error struct {
	Kind error
	Type string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Type != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Type)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
