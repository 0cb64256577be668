package zone

import (
	"slices"
	"sort"
	"time"

	"voxelzone.app/internal/protocol"
)

type User struct {
	UserID   string
	Name     string
	Tags     []string
	Position *Coord
	Emotes   []string
	Avatar   string
}

func (u *User) HasTag(tag string) bool {
	return slices.Contains(u.Tags, tag)
}

func (u *User) Clone() *User {
	cp := *u
	cp.Tags = slices.Clone(u.Tags)
	cp.Emotes = slices.Clone(u.Emotes)
	if u.Position != nil {
		p := *u.Position
		cp.Position = &p
	}
	return &cp
}

func userFromState(s protocol.UserState) *User {
	u := &User{
		UserID: s.UserID,
		Name:   s.Name,
		Tags:   slices.Clone(s.Tags),
		Emotes: slices.Clone(s.Emotes),
		Avatar: s.Avatar,
	}
	if s.Position != nil {
		c := CoordOf(*s.Position)
		u.Position = &c
	}
	return u
}

// Echo is a persistent chat marker left at a grid coordinate.
type Echo struct {
	UserID   string
	Name     string
	Tags     []string
	Emotes   []string
	Avatar   string
	Position Coord
	Text     string
}

func echoFromWire(e protocol.UserEcho) Echo {
	return Echo{
		UserID:   e.UserID,
		Name:     e.Name,
		Tags:     slices.Clone(e.Tags),
		Emotes:   slices.Clone(e.Emotes),
		Avatar:   e.Avatar,
		Position: CoordOf(e.Position),
		Text:     e.Text,
	}
}

// State is the client's replica of the shared zone. It does no I/O and no
// locking; callers apply one message fully before the next.
type State struct {
	Users          map[string]*User
	Queue          []protocol.QueueItem
	Playing        *protocol.QueueItem
	LastPlayedItem *protocol.QueueItem
	Grid           Grid
	Echoes         map[Coord]Echo
}

func New() *State {
	return &State{
		Users:  map[string]*User{},
		Grid:   Grid{},
		Echoes: map[Coord]Echo{},
	}
}

// Clear empties every collection. Used wholesale on disconnect.
func (s *State) Clear() {
	s.Users = map[string]*User{}
	s.Queue = nil
	s.Playing = nil
	s.LastPlayedItem = nil
	s.Grid = Grid{}
	s.Echoes = map[Coord]Echo{}
}

func (s *State) LookupUser(id string) (*User, bool) {
	u, ok := s.Users[id]
	return u, ok
}

// GetUser returns the user, creating a bare stub for an id we have not seen.
// A stub stands in for a join that has not arrived yet.
func (s *State) GetUser(id string) (u *User, created bool) {
	if u, ok := s.Users[id]; ok {
		return u, false
	}
	u = &User{UserID: id}
	s.Users[id] = u
	return u, true
}

func (s *State) ReplaceUsers(snapshot []protocol.UserState) {
	users := make(map[string]*User, len(snapshot))
	for _, us := range snapshot {
		users[us.UserID] = userFromState(us)
	}
	s.Users = users
}

func (s *State) RemoveUser(id string) (*User, bool) {
	u, ok := s.Users[id]
	if ok {
		delete(s.Users, id)
	}
	return u, ok
}

// NamedUsers lists users that have picked a name, sorted by name then id.
func (s *State) NamedUsers() []*User {
	out := make([]*User, 0, len(s.Users))
	for _, u := range s.Users {
		if u.Name != "" {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (s *State) UsersAt(c Coord) []*User {
	var out []*User
	for _, u := range s.Users {
		if u.Position != nil && *u.Position == c {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Occupied is the occupancy predicate used for movement.
func (s *State) Occupied(c Coord) bool {
	return s.Grid.Has(c)
}

func (s *State) SetBlock(c Coord, id int) bool {
	return s.Grid.Set(c, id)
}

// SetBlocks applies a bulk update and returns the coordinates that changed.
func (s *State) SetBlocks(cells []protocol.BlockCell) []Coord {
	var changed []Coord
	for _, cell := range cells {
		c := CoordOf(cell.Coords)
		if s.Grid.Set(c, cell.Value) {
			changed = append(changed, c)
		}
	}
	return changed
}

func (s *State) AddEchoes(echoes []protocol.UserEcho) {
	for _, e := range echoes {
		echo := echoFromWire(e)
		s.Echoes[echo.Position] = echo
	}
}

func (s *State) RemoveEchoes(positions []protocol.Position) {
	for _, p := range positions {
		delete(s.Echoes, CoordOf(p))
	}
}

func (s *State) EchoAt(c Coord) (Echo, bool) {
	e, ok := s.Echoes[c]
	return e, ok
}

// Enqueue appends items to the tail of the queue.
func (s *State) Enqueue(items ...protocol.QueueItem) {
	s.Queue = append(s.Queue, items...)
}

// Unqueue removes the first queued item with the given id.
func (s *State) Unqueue(itemID int) (protocol.QueueItem, bool) {
	for i, it := range s.Queue {
		if it.ItemID == itemID {
			s.Queue = append(s.Queue[:i:i], s.Queue[i+1:]...)
			return it, true
		}
	}
	return protocol.QueueItem{}, false
}

// Play makes item current (nil stops playback), drops it from the queue and
// keeps the previous current item as LastPlayedItem.
func (s *State) Play(item *protocol.QueueItem) {
	if item == nil {
		if s.Playing != nil {
			s.LastPlayedItem = s.Playing
		}
		s.Playing = nil
		return
	}
	if s.Playing != nil && !s.Playing.SameAs(*item) {
		s.LastPlayedItem = s.Playing
	}
	cp := *item
	s.Playing = &cp
	for i, it := range s.Queue {
		if it.SameAs(cp) {
			s.Queue = append(s.Queue[:i:i], s.Queue[i+1:]...)
			break
		}
	}
}

// QueueDuration sums the declared durations of everything still queued.
func (s *State) QueueDuration() time.Duration {
	var total time.Duration
	for _, it := range s.Queue {
		total += time.Duration(it.Media.Duration) * time.Millisecond
	}
	return total
}
