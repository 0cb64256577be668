package client

import (
	"encoding/base64"
	"slices"
	"time"

	"voxelzone.app/internal/movement"
	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/zone"
)

// Emotes lists the emote codes in the order they are sent.
var Emotes = []string{"wvy", "shk", "rbw", "spn"}

// avatarBytes is the size of an 8x8 one-bit avatar.
const avatarBytes = 8

// Intents apply to the local replica first, raising the usual events with
// Local set, and are then sent. When the server echoes the same value back
// it is a no-op.

// applyLocal runs a diff against the local user and returns its events. The
// local user is never announced with a join.
func (c *Client) applyLocal(d protocol.UserDiff) (zone.DiffResult, []Event) {
	d.UserID = c.opts.LocalUserID
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.state.ApplyUserDiff(d)
	res.Created = false
	return res, diffEvents(res, true)
}

// Move steps the local user by (dx, dz) under the terrain rules. It reports
// the resulting position and whether the user moved.
func (c *Client) Move(dx, dz int) (zone.Coord, bool) {
	c.mu.Lock()
	u, ok := c.state.LookupUser(c.opts.LocalUserID)
	if !ok || u.Position == nil {
		c.mu.Unlock()
		return zone.Coord{}, false
	}
	p := *u.Position
	next := movement.Resolve(movement.Pos{X: p[0], Y: p[1], Z: p[2]}, func(q movement.Pos) bool {
		return c.state.Occupied(zone.Coord{q.X, q.Y, q.Z})
	}, dx, dz)
	c.mu.Unlock()

	to := zone.Coord{next.X, next.Y, next.Z}
	if to == p {
		return p, false
	}
	return to, c.MoveTo(to)
}

// MoveInDirection maps a key direction through the camera rotation and moves.
func (c *Client) MoveInDirection(dir movement.Direction, rotateStep int) (zone.Coord, bool) {
	dx, dz := movement.MoveVector(dir, rotateStep)
	return c.Move(dx, dz)
}

// MoveTo places the local user at to, bypassing the terrain rules.
func (c *Client) MoveTo(to zone.Coord) bool {
	pos := to.Position()
	res, evs := c.applyLocal(protocol.UserDiff{Position: &pos})
	if !res.Changed.Has(zone.ChangePosition) {
		return false
	}
	c.emit(evs...)
	c.t.Send(protocol.TypeUser, protocol.UserDiff{Position: &pos})
	return true
}

// Chat sends a line of chat. The local event is raised immediately.
func (c *Client) Chat(text string) {
	c.mu.Lock()
	u, _ := c.state.GetUser(c.opts.LocalUserID)
	snap := u.Clone()
	c.mu.Unlock()
	c.emit(Event{Kind: EventChat, User: snap, Text: text, Local: true})
	c.t.Send(protocol.TypeChat, protocol.SendChat{Text: text})
}

// Rename changes the local user's display name through the name command.
func (c *Client) Rename(name string) {
	_, evs := c.applyLocal(protocol.UserDiff{Name: &name})
	c.emit(evs...)
	c.Command("name", name)
}

func (c *Client) SetEmotes(emotes []string) {
	list := slices.Clone(emotes)
	if list == nil {
		list = []string{}
	}
	_, evs := c.applyLocal(protocol.UserDiff{Emotes: &list})
	c.emit(evs...)
	c.t.Send(protocol.TypeUser, protocol.UserDiff{Emotes: &list})
}

// ToggleEmote flips one emote. The result keeps the canonical emote order.
func (c *Client) ToggleEmote(code string) error {
	if !slices.Contains(Emotes, code) {
		return ErrUnknownEmote
	}
	c.mu.Lock()
	var current []string
	if u, ok := c.state.LookupUser(c.opts.LocalUserID); ok {
		current = u.Emotes
	}
	next := make([]string, 0, len(Emotes))
	for _, e := range Emotes {
		on := slices.Contains(current, e)
		if e == code {
			on = !on
		}
		if on {
			next = append(next, e)
		}
	}
	c.mu.Unlock()
	c.SetEmotes(next)
	return nil
}

// SetAvatar sets the base64 encoded 8x8 one-bit avatar bitmap. An empty
// string restores the default avatar.
func (c *Client) SetAvatar(data string) error {
	if data != "" {
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil || len(b) != avatarBytes {
			return ErrBadAvatar
		}
	}
	_, evs := c.applyLocal(protocol.UserDiff{Avatar: &data})
	c.emit(evs...)
	c.t.Send(protocol.TypeUser, protocol.UserDiff{Avatar: &data})
	return nil
}

func (c *Client) SetTags(tags []string) {
	list := slices.Clone(tags)
	if list == nil {
		list = []string{}
	}
	_, evs := c.applyLocal(protocol.UserDiff{Tags: &list})
	c.emit(evs...)
	c.t.Send(protocol.TypeUser, protocol.UserDiff{Tags: &list})
}

func (c *Client) Auth(password string) {
	c.t.Send(protocol.TypeAuth, protocol.SendAuth{Password: password})
}

// Command sends a named server command.
func (c *Client) Command(name string, args ...any) {
	if args == nil {
		args = []any{}
	}
	c.t.Send(protocol.TypeCommand, protocol.SendCommand{Name: name, Args: args})
}

func (c *Client) QueueMedia(source string) { c.Command("queue", source) }

func (c *Client) Unqueue(itemID int) { c.Command("unqueue", itemID) }

// Skip asks the server to skip the item currently playing.
func (c *Client) Skip() {
	c.mu.Lock()
	playing := c.state.Playing
	c.mu.Unlock()
	if playing == nil {
		c.Command("skip")
		return
	}
	c.Command("skip", playing.ItemID)
}

// Resync reloads the media at the server position without asking the server.
func (c *Client) Resync() {
	if c.player != nil {
		c.player.ForceRetry()
	}
}

// CanUnqueue reports whether the local user may cancel item: their own
// items, or any item for a dj.
func (c *Client) CanUnqueue(item protocol.QueueItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item.Info.UserID == c.opts.LocalUserID {
		return true
	}
	u, ok := c.state.LookupUser(c.opts.LocalUserID)
	return ok && u.HasTag("dj")
}

// Playlist summarises what is left to play.
type Playlist struct {
	Count    int
	Total    time.Duration
	Current  *protocol.QueueItem
	QueuedBy string
}

// PlaylistSummary counts the current item (if any) plus everything queued.
// Total is the time left on the current item plus the queued durations.
func (c *Client) PlaylistSummary() Playlist {
	var remaining time.Duration
	hasItem := false
	if c.player != nil {
		remaining = c.player.Remaining()
		hasItem = c.player.HasItem()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p := Playlist{
		Count: len(c.state.Queue),
		Total: remaining + c.state.QueueDuration(),
	}
	if cur := c.state.Playing; cur != nil {
		it := *cur
		p.Current = &it
		if c.player == nil {
			hasItem = true
		}
		if id := it.Info.UserID; id != "" {
			if u, ok := c.state.LookupUser(id); ok {
				p.QueuedBy = u.Name
			}
		}
	}
	if hasItem {
		p.Count++
	}
	return p
}
