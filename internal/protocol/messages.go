package protocol

import (
	"encoding/json"
	"fmt"
)

// Position is an integer voxel coordinate (x, y, z).
type Position [3]int

func (p *Position) UnmarshalJSON(b []byte) error {
	var xs []int
	if err := json.Unmarshal(b, &xs); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if len(xs) != 3 {
		return fmt.Errorf("position: want 3 coordinates, got %d", len(xs))
	}
	copy(p[:], xs)
	return nil
}

type Media struct {
	Source   string `json:"source"`
	Title    string `json:"title"`
	Duration int64  `json:"duration"` // milliseconds
}

type QueueInfo struct {
	UserID string `json:"userId,omitempty"`
}

type QueueItem struct {
	ItemID int       `json:"itemId"`
	Media  Media     `json:"media"`
	Info   QueueInfo `json:"info"`
}

// SameAs reports whether two items name the same queue entry. Each play
// message decodes a fresh copy, so identity is the id plus the source.
func (q QueueItem) SameAs(o QueueItem) bool {
	return q.ItemID == o.ItemID && q.Media.Source == o.Media.Source
}

// UserState is one entry of a users snapshot.
type UserState struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Position *Position `json:"position,omitempty"`
	Emotes   []string  `json:"emotes,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
}

// UserDiff is the payload of a "user" message. Nil fields are unspecified and
// must leave the stored value alone.
type UserDiff struct {
	UserID   string    `json:"userId,omitempty"`
	Name     *string   `json:"name,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	Position *Position `json:"position,omitempty"`
	Emotes   *[]string `json:"emotes,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
}

// UserEcho is a persistent chat marker left at a grid coordinate.
type UserEcho struct {
	UserID   string   `json:"userId,omitempty"`
	Name     string   `json:"name,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Emotes   []string `json:"emotes,omitempty"`
	Avatar   string   `json:"avatar,omitempty"`
	Position Position `json:"position"`
	Text     string   `json:"text"`
}

// Server -> client.

type AssignMsg struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type RejectMsg struct {
	Text string `json:"text"`
}

type StatusMsg struct {
	Text string `json:"text"`
}

type UsersMsg struct {
	Users []UserState `json:"users"`
}

type LeaveMsg struct {
	UserID string `json:"userId"`
}

// PlayMsg announces the current item; Time is the offset into it in ms.
// A missing item means playback stopped.
type PlayMsg struct {
	Item *QueueItem `json:"item,omitempty"`
	Time int64      `json:"time"`
}

type QueueMsg struct {
	Items []QueueItem `json:"items"`
}

type UnqueueMsg struct {
	ItemID int `json:"itemId"`
}

type RecvChat struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

type BlockMsg struct {
	Coords Position `json:"coords"`
	Value  int      `json:"value"`
}

type BlocksMsg struct {
	Cells []BlockCell `json:"cells"`
}

// BlockCell travels as a [coords, value] pair.
type BlockCell struct {
	Coords Position
	Value  int
}

func (c BlockCell) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Coords, c.Value})
}

func (c *BlockCell) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("block cell: want [coords, value], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &c.Coords); err != nil {
		return fmt.Errorf("block cell coords: %w", err)
	}
	if err := json.Unmarshal(pair[1], &c.Value); err != nil {
		return fmt.Errorf("block cell value: %w", err)
	}
	return nil
}

type EchoesMsg struct {
	Added   []UserEcho `json:"added,omitempty"`
	Removed []Position `json:"removed,omitempty"`
}

// Client -> server.

type JoinMsg struct {
	Name     string `json:"name"`
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

type SendChat struct {
	Text string `json:"text"`
}

type SendAuth struct {
	Password string `json:"password"`
}

type SendCommand struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}
