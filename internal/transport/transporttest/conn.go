package transporttest

import (
	"encoding/json"
	"sync"
	"testing"

	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/transport"
)

// Conn is an in-memory transport.Conn driven by the test:
//   - Push/PushMessage deliver inbound frames and return once the frame has
//     been fully dispatched by the reader
//   - Drop simulates the peer ending the connection
//   - Written records every outbound frame
//
// A local Close is acknowledged immediately, as a well-behaved peer would.
type Conn struct {
	in     chan []byte
	closed chan struct{}

	mu        sync.Mutex
	state     transport.ReadyState
	code      int
	written   [][]byte
	writeErr  error
	closeReqs []int
	closeOnce sync.Once
}

func NewConn() *Conn {
	return &Conn{
		in:     make(chan []byte),
		closed: make(chan struct{}),
		state:  transport.Open,
	}
}

func (c *Conn) ReadyState() transport.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) SetReadyState(s transport.ReadyState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// FailWrites makes every later WriteText return err (nil restores writes).
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *Conn) WriteText(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return nil
}

func (c *Conn) ReadText() ([]byte, error) {
	for {
		select {
		case b := <-c.in:
			if b == nil {
				// barrier from Push
				continue
			}
			return b, nil
		case <-c.closed:
			c.mu.Lock()
			code := c.code
			c.mu.Unlock()
			return nil, &transport.CloseError{Code: code}
		}
	}
}

func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	c.closeReqs = append(c.closeReqs, code)
	c.mu.Unlock()
	c.Drop(code)
	return nil
}

// Drop ends the connection with code as if the peer closed it.
func (c *Conn) Drop(code int) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = transport.Closed
		c.code = code
		c.mu.Unlock()
		close(c.closed)
	})
}

// Push delivers one raw inbound frame. The second send only completes when
// the reader asks for the next frame, i.e. after b has been dispatched.
func (c *Conn) Push(b []byte) {
	c.in <- b
	c.in <- nil
}

func (c *Conn) PushMessage(t testing.TB, typ string, payload any) {
	t.Helper()
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	c.Push(b)
}

func (c *Conn) PushJSON(s string) {
	c.Push([]byte(s))
}

func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Sent decodes the outbound frames.
func (c *Conn) Sent(t testing.TB) []protocol.Frame {
	t.Helper()
	var out []protocol.Frame
	for _, b := range c.Written() {
		f, err := protocol.Decode(b)
		if err != nil {
			t.Fatalf("decode sent frame %q: %v", b, err)
		}
		out = append(out, f)
	}
	return out
}

// LastSent decodes the payload of the most recent frame into v and returns
// its type.
func (c *Conn) LastSent(t testing.TB, v any) string {
	t.Helper()
	frames := c.Sent(t)
	if len(frames) == 0 {
		t.Fatalf("nothing sent")
	}
	f := frames[len(frames)-1]
	if v != nil {
		if err := json.Unmarshal(f.Payload, v); err != nil {
			t.Fatalf("decode %s payload: %v", f.Type, err)
		}
	}
	return f.Type
}

func (c *Conn) CloseRequests() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.closeReqs...)
}
