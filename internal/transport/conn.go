package transport

import (
	"errors"
	"fmt"

	"voxelzone.app/internal/protocol"
)

// ReadyState mirrors the lifecycle of a socket.
type ReadyState int

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ReadyState(%d)", int(s))
	}
}

// Conn is one framed text connection. ReadText blocks until a frame arrives
// or the connection is gone; once it returns an error it is not called again.
type Conn interface {
	ReadyState() ReadyState
	WriteText(b []byte) error
	ReadText() ([]byte, error)
	// Close starts the close handshake. It must not block on the peer.
	Close(code int, reason string) error
}

// CloseError is returned by ReadText when the connection ended.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("connection closed: %d (%s)", e.Code, protocol.CloseReason(e.Code))
	}
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Text)
}

// CloseCode extracts the close code from a read error. Anything that is not a
// CloseError counts as an abnormal drop.
func CloseCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return protocol.CloseAbnormal
}
