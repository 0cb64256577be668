package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/transport"
)

type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// CloseTimeout bounds how long a local close waits for the peer's close
	// frame before the socket is torn down.
	CloseTimeout    time.Duration
	MaxMessageBytes int64
	Header          http.Header
	Logger          *zap.Logger
}

func (o *Options) normalize() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 2 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 4 << 20
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Conn adapts a gorilla websocket to transport.Conn.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	writeMu sync.Mutex

	mu         sync.Mutex
	state      transport.ReadyState
	forceClose *time.Timer
}

var _ transport.Conn = (*Conn)(nil)

// Dial connects to a websocket URL. The returned connection is Open.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	opts.normalize()
	d := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}
	c, resp, err := d.DialContext(ctx, url, opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return Wrap(c, opts), nil
}

// Wrap adapts an established websocket (client or server side).
func Wrap(c *websocket.Conn, opts Options) *Conn {
	opts.normalize()
	c.SetReadLimit(opts.MaxMessageBytes)
	return &Conn{ws: c, opts: opts, state: transport.Open}
}

func (c *Conn) ReadyState() transport.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) WriteText(b []byte) error {
	if c.ReadyState() != transport.Open {
		return transport.ErrNotOpen
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// ReadText returns the next text frame. Binary frames are skipped.
func (c *Conn) ReadText() ([]byte, error) {
	for {
		mt, b, err := c.ws.ReadMessage()
		if err != nil {
			return nil, c.finish(err)
		}
		if mt != websocket.TextMessage {
			c.opts.Logger.Debug("skip non-text frame", zap.Int("message_type", mt))
			continue
		}
		return b, nil
	}
}

// Close sends a close frame and returns. The socket is released when the
// peer answers (ReadText sees the close) or after CloseTimeout.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.state == transport.Closing || c.state == transport.Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = transport.Closing
	c.forceClose = time.AfterFunc(c.opts.CloseTimeout, func() {
		c.opts.Logger.Debug("close handshake timed out", zap.Int("code", code))
		_ = c.ws.Close()
	})
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout)); err != nil {
		_ = c.ws.Close()
		return fmt.Errorf("write close: %w", err)
	}
	return nil
}

func (c *Conn) finish(err error) error {
	c.mu.Lock()
	c.state = transport.Closed
	if c.forceClose != nil {
		c.forceClose.Stop()
	}
	c.mu.Unlock()
	_ = c.ws.Close()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &transport.CloseError{Code: ce.Code, Text: ce.Text}
	}
	c.opts.Logger.Debug("read failed", zap.Error(err))
	return &transport.CloseError{Code: protocol.CloseAbnormal}
}
