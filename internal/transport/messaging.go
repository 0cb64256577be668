package transport

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"voxelzone.app/internal/protocol"
)

// Frame directions passed to a Recorder.
const (
	DirIn  = "in"
	DirOut = "out"
)

// Recorder sees every frame that crosses the wire. It must not block.
type Recorder interface {
	Record(dir string, frame []byte)
}

// Messaging frames typed JSON messages over a replaceable connection and fans
// them out to registered listeners.
type Messaging struct {
	log *zap.Logger

	mu   sync.Mutex
	conn Conn
	gen  uint64
	done chan struct{} // closed when the current conn's read loop exits
	rec  Recorder

	obsMu    sync.RWMutex
	handlers map[string][]func(json.RawMessage)
	onClose  []func(code int)
	onError  []func(err error)
}

func New(logger *zap.Logger) *Messaging {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messaging{
		log:      logger,
		handlers: map[string][]func(json.RawMessage){},
	}
}

// SetRecorder installs (or with nil, removes) a frame recorder.
func (m *Messaging) SetRecorder(r Recorder) {
	m.mu.Lock()
	m.rec = r
	m.mu.Unlock()
}

// OnMessage registers fn for frames of the given type. fn receives the frame
// with the type field removed.
func (m *Messaging) OnMessage(typ string, fn func(payload json.RawMessage)) {
	m.obsMu.Lock()
	m.handlers[typ] = append(m.handlers[typ], fn)
	m.obsMu.Unlock()
}

func (m *Messaging) OnClose(fn func(code int)) {
	m.obsMu.Lock()
	m.onClose = append(m.onClose, fn)
	m.obsMu.Unlock()
}

func (m *Messaging) OnError(fn func(err error)) {
	m.obsMu.Lock()
	m.onError = append(m.onError, fn)
	m.obsMu.Unlock()
}

// Attach makes c the active connection. A previous connection is closed
// silently: its close never reaches OnClose listeners.
func (m *Messaging) Attach(c Conn) {
	m.mu.Lock()
	prev := m.conn
	m.gen++
	gen := m.gen
	m.conn = c
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Close(protocol.CloseNormal, ""); err != nil {
			m.log.Debug("close replaced connection", zap.Error(err))
		}
	}
	go m.readLoop(gen, c, done)
}

// ReadyState reports the state of the active connection; Closed when none.
func (m *Messaging) ReadyState() ReadyState {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return Closed
	}
	return c.ReadyState()
}

// Send encodes and writes one message. Failures are reported to OnError
// listeners and nothing is transmitted.
func (m *Messaging) Send(typ string, payload any) {
	m.mu.Lock()
	c, rec := m.conn, m.rec
	m.mu.Unlock()

	if c == nil {
		m.emitError(&Error{Kind: ErrNoSocket, Type: typ})
		return
	}
	if c.ReadyState() != Open {
		m.emitError(&Error{Kind: ErrNotOpen, Type: typ})
		return
	}
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		m.emitError(&Error{Kind: ErrEncode, Type: typ, Err: err})
		return
	}
	if err := c.WriteText(b); err != nil {
		m.emitError(&Error{Kind: ErrWrite, Type: typ, Err: err})
		return
	}
	if rec != nil {
		rec.Record(DirOut, b)
	}
}

// Close asks the active connection to close with code and waits until its
// close event has been delivered or ctx ends. It does nothing when there is
// no connection or it is already closed; a connection that is already
// closing is waited on without a second request.
func (m *Messaging) Close(ctx context.Context, code int) error {
	m.mu.Lock()
	c, done := m.conn, m.done
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	switch c.ReadyState() {
	case Closed:
		return nil
	case Closing:
	default:
		if err := c.Close(code, ""); err != nil {
			m.log.Debug("close request", zap.Int("code", code), zap.Error(err))
		}
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Messaging) readLoop(gen uint64, c Conn, done chan struct{}) {
	defer close(done)
	for {
		b, err := c.ReadText()
		if err != nil {
			code := CloseCode(err)
			if !m.current(gen) {
				m.log.Debug("replaced connection ended", zap.Int("code", code))
				return
			}
			m.log.Info("connection closed",
				zap.Int("code", code),
				zap.String("reason", protocol.CloseReason(code)))
			m.emitClose(code)
			return
		}
		if !m.current(gen) {
			continue
		}
		m.dispatch(b)
	}
}

func (m *Messaging) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

func (m *Messaging) dispatch(b []byte) {
	m.mu.Lock()
	rec := m.rec
	m.mu.Unlock()
	if rec != nil {
		rec.Record(DirIn, b)
	}

	f, err := protocol.Decode(b)
	if err != nil {
		m.emitError(&Error{Kind: ErrProtocol, Err: err})
		return
	}
	m.obsMu.RLock()
	fns := m.handlers[f.Type]
	m.obsMu.RUnlock()
	if len(fns) == 0 {
		m.log.Debug("unhandled message", zap.String("type", f.Type))
		return
	}
	for _, fn := range fns {
		fn(f.Payload)
	}
}

func (m *Messaging) emitClose(code int) {
	m.obsMu.RLock()
	fns := m.onClose
	m.obsMu.RUnlock()
	for _, fn := range fns {
		fn(code)
	}
}

func (m *Messaging) emitError(err error) {
	m.obsMu.RLock()
	fns := m.onError
	m.obsMu.RUnlock()
	if len(fns) == 0 {
		m.log.Warn("transport error", zap.Error(err))
		return
	}
	for _, fn := range fns {
		fn(err)
	}
}
