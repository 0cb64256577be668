package client

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/zone"
)

// handle decodes payloads of one message type before passing them on.
// Payloads that do not decode are logged and dropped.
func handle[T any](c *Client, typ string, fn func(T)) {
	c.t.OnMessage(typ, func(p json.RawMessage) {
		var msg T
		if err := json.Unmarshal(p, &msg); err != nil {
			c.log.Warn("drop undecodable message", zap.String("type", typ), zap.Error(err))
			return
		}
		fn(msg)
	})
}

func (c *Client) register() {
	handle(c, protocol.TypeHeartbeat, func(struct{}) { c.onHeartbeat() })
	handle(c, protocol.TypeAssign, c.onAssign)
	handle(c, protocol.TypeReject, c.onReject)
	handle(c, protocol.TypeStatus, c.onStatus)
	handle(c, protocol.TypeUsers, c.onUsers)
	handle(c, protocol.TypeUser, c.onUser)
	handle(c, protocol.TypeLeave, c.onLeave)
	handle(c, protocol.TypeQueue, c.onQueue)
	handle(c, protocol.TypeUnqueue, c.onUnqueue)
	handle(c, protocol.TypePlay, c.onPlay)
	handle(c, protocol.TypeBlock, c.onBlock)
	handle(c, protocol.TypeBlocks, c.onBlocks)
	handle(c, protocol.TypeEchoes, c.onEchoes)
	handle(c, protocol.TypeChat, c.onChat)
	c.t.OnClose(c.onClose)
}

func (c *Client) onHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = c.opts.Now()
	c.mu.Unlock()
}

func (c *Client) onAssign(m protocol.AssignMsg) {
	c.mu.Lock()
	c.token = m.Token
	c.joined = true
	u, _ := c.state.GetUser(c.opts.LocalUserID)
	snap := u.Clone()
	c.resolveJoinLocked(joinResult{user: snap})
	c.mu.Unlock()

	if m.UserID != "" && m.UserID != c.opts.LocalUserID {
		c.log.Debug("assign names a different user id", zap.String("assigned", m.UserID))
	}
	c.log.Info("joined")
	c.emit(Event{Kind: EventJoined, User: snap})
}

func (c *Client) onReject(m protocol.RejectMsg) {
	c.mu.Lock()
	c.resolveJoinLocked(joinResult{err: &RejectError{Text: m.Text}})
	c.mu.Unlock()
	c.log.Warn("join rejected", zap.String("text", m.Text))
	c.emit(Event{Kind: EventReject, Text: m.Text})
}

func (c *Client) onStatus(m protocol.StatusMsg) {
	c.emit(Event{Kind: EventStatus, Text: m.Text})
}

func (c *Client) onUsers(m protocol.UsersMsg) {
	c.mu.Lock()
	c.state.ReplaceUsers(m.Users)
	c.mu.Unlock()
	c.emit(Event{Kind: EventUsers})
}

func (c *Client) onUser(d protocol.UserDiff) {
	if d.UserID == "" {
		c.log.Debug("user diff without id")
		return
	}
	c.mu.Lock()
	res := c.state.ApplyUserDiff(d)
	evs := diffEvents(res, false)
	c.mu.Unlock()
	if res.Created {
		c.log.Debug("diff for unknown user, created stub", zap.String("user", d.UserID))
	}
	c.emit(evs...)
}

func (c *Client) onLeave(m protocol.LeaveMsg) {
	c.mu.Lock()
	u, ok := c.state.RemoveUser(m.UserID)
	c.mu.Unlock()
	if !ok {
		c.log.Debug("leave for unknown user", zap.String("user", m.UserID))
		return
	}
	c.emit(Event{Kind: EventLeave, User: u.Clone()})
}

func (c *Client) onQueue(m protocol.QueueMsg) {
	c.mu.Lock()
	c.state.Enqueue(m.Items...)
	c.mu.Unlock()
	evs := make([]Event, 0, len(m.Items))
	for i := range m.Items {
		it := m.Items[i]
		evs = append(evs, Event{Kind: EventQueue, Item: &it})
	}
	c.emit(evs...)
}

func (c *Client) onUnqueue(m protocol.UnqueueMsg) {
	c.mu.Lock()
	it, ok := c.state.Unqueue(m.ItemID)
	c.mu.Unlock()
	if !ok {
		c.log.Debug("unqueue for unknown item", zap.Int("item", m.ItemID))
		return
	}
	c.emit(Event{Kind: EventUnqueue, Item: &it})
}

func (c *Client) onPlay(m protocol.PlayMsg) {
	c.mu.Lock()
	c.state.Play(m.Item)
	c.mu.Unlock()

	if c.player != nil {
		if m.Item == nil {
			c.player.StopPlaying()
		} else {
			c.player.SetPlaying(*m.Item, time.Duration(m.Time)*time.Millisecond)
		}
	}
	msg := m
	c.emit(Event{Kind: EventPlay, Play: &msg})
}

func (c *Client) onBlock(m protocol.BlockMsg) {
	coord := zone.CoordOf(m.Coords)
	c.mu.Lock()
	c.state.SetBlock(coord, m.Value)
	c.mu.Unlock()
	c.emit(Event{Kind: EventBlocks, Coords: []zone.Coord{coord}})
}

func (c *Client) onBlocks(m protocol.BlocksMsg) {
	coords := make([]zone.Coord, 0, len(m.Cells))
	for _, cell := range m.Cells {
		coords = append(coords, zone.CoordOf(cell.Coords))
	}
	c.mu.Lock()
	c.state.SetBlocks(m.Cells)
	c.mu.Unlock()
	c.emit(Event{Kind: EventBlocks, Coords: coords})
}

func (c *Client) onEchoes(m protocol.EchoesMsg) {
	ev := Event{Kind: EventEchoes}
	for _, e := range m.Added {
		ev.Coords = append(ev.Coords, zone.CoordOf(e.Position))
	}
	for _, p := range m.Removed {
		ev.Removed = append(ev.Removed, zone.CoordOf(p))
	}
	c.mu.Lock()
	c.state.RemoveEchoes(m.Removed)
	c.state.AddEchoes(m.Added)
	c.mu.Unlock()
	c.emit(ev)
}

func (c *Client) onChat(m protocol.RecvChat) {
	c.mu.Lock()
	u, created := c.state.GetUser(m.UserID)
	snap := u.Clone()
	c.mu.Unlock()
	if created {
		c.log.Debug("chat from unknown user, created stub", zap.String("user", m.UserID))
	}
	c.emit(Event{Kind: EventChat, User: snap, Text: m.Text})
}

// onClose drops the replica: nothing in it can be trusted once the stream of
// authoritative updates has ended.
func (c *Client) onClose(code int) {
	c.mu.Lock()
	c.state.Clear()
	c.joined = false
	c.resolveJoinLocked(joinResult{err: ErrDisconnected})
	c.mu.Unlock()

	if c.player != nil {
		c.player.StopPlaying()
	}
	clean := protocol.IsCleanClose(code)
	c.log.Info("disconnected", zap.Int("code", code), zap.Bool("clean", clean))
	c.emit(Event{Kind: EventDisconnect, Code: code, Clean: clean})
}
