package client

import (
	"fmt"

	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/zone"
)

type EventKind int

const (
	EventJoined EventKind = iota + 1
	EventReject
	EventStatus
	EventUsers
	EventJoin
	EventLeave
	EventRename
	EventMove
	EventEmotes
	EventAvatar
	EventTags
	EventChat
	EventPlay
	EventQueue
	EventUnqueue
	EventBlocks
	EventEchoes
	EventDisconnect
)

var eventNames = map[EventKind]string{
	EventJoined:     "joined",
	EventReject:     "reject",
	EventStatus:     "status",
	EventUsers:      "users",
	EventJoin:       "join",
	EventLeave:      "leave",
	EventRename:     "rename",
	EventMove:       "move",
	EventEmotes:     "emotes",
	EventAvatar:     "avatar",
	EventTags:       "tags",
	EventChat:       "chat",
	EventPlay:       "play",
	EventQueue:      "queue",
	EventUnqueue:    "unqueue",
	EventBlocks:     "blocks",
	EventEchoes:     "echoes",
	EventDisconnect: "disconnect",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one client notification. Which fields are set depends on Kind:
//
//	joined, join, leave      User
//	reject, status           Text
//	rename                   User, Previous, Local
//	move                     User, Position, Local
//	emotes                   User, Emotes, Local
//	avatar                   User, Avatar, Local
//	tags                     User, Tags, Local
//	chat                     User, Text, Local
//	play                     Play
//	queue, unqueue           Item
//	blocks                   Coords
//	echoes                   Coords (added), Removed
//	disconnect               Code, Clean
//
// User is a copy taken when the event was raised.
type Event struct {
	Kind EventKind

	User     *zone.User
	Local    bool
	Text     string
	Previous string
	Position zone.Coord
	Emotes   []string
	Avatar   string
	Tags     []string

	Play *protocol.PlayMsg
	Item *protocol.QueueItem

	Coords  []zone.Coord
	Removed []zone.Coord

	Code  int
	Clean bool
}

// On registers fn for one kind of event. Listeners fire in registration
// order, outside the client's state lock, so they may call View.
func (c *Client) On(kind EventKind, fn func(Event)) {
	c.obsMu.Lock()
	c.observers[kind] = append(c.observers[kind], fn)
	c.obsMu.Unlock()
}

// OnAny registers fn for every event, after the kind-specific listeners.
func (c *Client) OnAny(fn func(Event)) {
	c.obsMu.Lock()
	c.any = append(c.any, fn)
	c.obsMu.Unlock()
}

func (c *Client) emit(evs ...Event) {
	for _, ev := range evs {
		c.obsMu.RLock()
		fns := c.observers[ev.Kind]
		anyFns := c.any
		c.obsMu.RUnlock()
		for _, fn := range fns {
			fn(ev)
		}
		for _, fn := range anyFns {
			fn(ev)
		}
	}
}

// diffEvents turns a diff result into per-field events. A freshly created
// user is announced with a join instead of a rename.
func diffEvents(res zone.DiffResult, local bool) []Event {
	u := res.User.Clone()
	var out []Event
	if res.Created {
		out = append(out, Event{Kind: EventJoin, User: u})
	}
	if res.Changed.Has(zone.ChangeName) && !res.Created {
		out = append(out, Event{Kind: EventRename, User: u, Previous: res.PreviousName, Local: local})
	}
	if res.Changed.Has(zone.ChangePosition) {
		out = append(out, Event{Kind: EventMove, User: u, Position: *u.Position, Local: local})
	}
	if res.Changed.Has(zone.ChangeEmotes) {
		out = append(out, Event{Kind: EventEmotes, User: u, Emotes: u.Emotes, Local: local})
	}
	if res.Changed.Has(zone.ChangeAvatar) {
		out = append(out, Event{Kind: EventAvatar, User: u, Avatar: u.Avatar, Local: local})
	}
	if res.Changed.Has(zone.ChangeTags) {
		out = append(out, Event{Kind: EventTags, User: u, Tags: u.Tags, Local: local})
	}
	return out
}
