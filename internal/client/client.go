package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/zone"
)

var (
	ErrJoinTimeout  = errors.New("join: no response from server")
	ErrJoinPending  = errors.New("join: already in progress")
	ErrDisconnected = errors.New("disconnected")
	ErrUnknownEmote = errors.New("unknown emote")
	ErrBadAvatar    = errors.New("avatar must be 8 base64 bytes")
)

// RejectError is returned by Join when the server refuses the request.
type RejectError struct {
	Text string
}

func (e *RejectError) Error() string { return "join rejected: " + e.Text }

// Transport is the framed connection the client talks through.
type Transport interface {
	Send(typ string, payload any)
	OnMessage(typ string, fn func(payload json.RawMessage))
	OnClose(fn func(code int))
	Close(ctx context.Context, code int) error
}

// Player is the playback side of the client. *playback.Clock implements it.
type Player interface {
	SetPlaying(item protocol.QueueItem, seek time.Duration)
	StopPlaying()
	ForceRetry()
	HasItem() bool
	Remaining() time.Duration
}

type Options struct {
	// LocalUserID is the id the server uses for this session's own user.
	LocalUserID          string
	Password             string
	QuickResponseTimeout time.Duration
	SlowResponseTimeout  time.Duration
	Player               Player
	Logger               *zap.Logger
	Now                  func() time.Time
}

func (o *Options) normalize() {
	if o.LocalUserID == "" {
		o.LocalUserID = "0"
	}
	if o.QuickResponseTimeout <= 0 {
		o.QuickResponseTimeout = 3 * time.Second
	}
	if o.SlowResponseTimeout <= 0 {
		o.SlowResponseTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type joinResult struct {
	user *zone.User
	err  error
}

// Client keeps a replica of one zone in sync with the server. Inbound
// messages are applied one at a time under a single lock; readers go through
// View.
type Client struct {
	t         Transport
	player    Player
	opts      Options
	log       *zap.Logger
	sessionID uuid.UUID

	mu            sync.Mutex
	state         *zone.State
	token         string
	joined        bool
	lastHeartbeat time.Time
	pending       chan joinResult

	obsMu     sync.RWMutex
	observers map[EventKind][]func(Event)
	any       []func(Event)
}

func New(t Transport, opts Options) *Client {
	opts.normalize()
	sid := uuid.New()
	c := &Client{
		t:         t,
		player:    opts.Player,
		opts:      opts,
		sessionID: sid,
		log:       opts.Logger.With(zap.String("session", sid.String())),
		state:     zone.New(),
		observers: map[EventKind][]func(Event){},
	}
	c.register()
	return c
}

func (c *Client) SessionID() uuid.UUID { return c.sessionID }

func (c *Client) LocalUserID() string { return c.opts.LocalUserID }

// View runs fn with the replica locked. fn must not keep references to the
// state or call back into the client.
func (c *Client) View(fn func(s *zone.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
}

// LocalUser returns a copy of this session's user, if the replica has one.
func (c *Client) LocalUser() (*zone.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.state.LookupUser(c.opts.LocalUserID)
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// Join asks the server to admit this session under name and waits for an
// assign or reject, at most SlowResponseTimeout. A token from an earlier
// assign is sent along so the server can resume the user.
func (c *Client) Join(ctx context.Context, name string) (*zone.User, error) {
	ch := make(chan joinResult, 1)
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return nil, ErrJoinPending
	}
	c.pending = ch
	msg := protocol.JoinMsg{Name: name, Token: c.token, Password: c.opts.Password}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.SlowResponseTimeout)
	defer cancel()

	c.log.Info("join", zap.String("name", name), zap.Bool("resume", msg.Token != ""))
	c.t.Send(protocol.TypeJoin, msg)

	select {
	case res := <-ch:
		return res.user, res.err
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == ch {
			c.pending = nil
		}
		c.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrJoinTimeout, c.opts.SlowResponseTimeout)
		}
		return nil, ctx.Err()
	}
}

// resolveJoinLocked hands res to a waiting Join, if any.
func (c *Client) resolveJoinLocked(res joinResult) {
	if c.pending == nil {
		return
	}
	c.pending <- res
	c.pending = nil
}

// Close closes the connection with a normal close code, waiting at most
// QuickResponseTimeout for it to complete.
func (c *Client) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.QuickResponseTimeout)
	defer cancel()
	return c.t.Close(ctx, protocol.CloseNormal)
}

// Bootstrap seeds the replica with blocks and echoes known ahead of the
// server, such as a cached world file. Later server updates overwrite it,
// and a disconnect clears it like everything else.
func (c *Client) Bootstrap(cells []protocol.BlockCell, echoes []protocol.UserEcho) {
	if len(cells) > 0 {
		c.onBlocks(protocol.BlocksMsg{Cells: cells})
	}
	if len(echoes) > 0 {
		c.onEchoes(protocol.EchoesMsg{Added: echoes})
	}
}
