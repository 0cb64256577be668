package zone

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"voxelzone.app/internal/protocol"
)

func strp(s string) *string { return &s }

func posp(x, y, z int) *protocol.Position {
	p := protocol.Position{x, y, z}
	return &p
}

func listp(v ...string) *[]string {
	if v == nil {
		v = []string{}
	}
	return &v
}

func item(id int, src string, ms int64) protocol.QueueItem {
	return protocol.QueueItem{ItemID: id, Media: protocol.Media{Source: src, Title: src, Duration: ms}}
}

func TestGrid_SetEraseAndChange(t *testing.T) {
	g := Grid{}
	c := Coord{1, 2, 3}
	if !g.Set(c, 4) {
		t.Fatalf("first set should change")
	}
	if g.Set(c, 4) {
		t.Fatalf("same value should not change")
	}
	if b, ok := g.Get(c); !ok || b != 4 {
		t.Fatalf("Get=%d,%v", b, ok)
	}
	if !g.Set(c, 0) {
		t.Fatalf("erase should change")
	}
	if g.Has(c) {
		t.Fatalf("erase must remove the key")
	}
	if g.Set(c, 0) {
		t.Fatalf("erasing an empty voxel is not a change")
	}
}

func TestGrid_CoordsSorted(t *testing.T) {
	g := Grid{{1, 0, 0}: 1, {0, 5, 0}: 1, {0, 0, 9}: 1, {0, 0, -1}: 2}
	got := g.Coords()
	want := []Coord{{0, 0, -1}, {0, 0, 9}, {0, 5, 0}, {1, 0, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Coords=%v want %v", got, want)
	}
}

func TestApplyUserDiff_PreservesUnspecifiedFields(t *testing.T) {
	s := New()
	s.ReplaceUsers([]protocol.UserState{{
		UserID:   "7",
		Name:     "ash",
		Tags:     []string{"dj"},
		Position: posp(1, 0, 1),
		Emotes:   []string{"wvy"},
		Avatar:   "AAAAAAAAAAA=",
	}})

	res := s.ApplyUserDiff(protocol.UserDiff{UserID: "7", Position: posp(2, 0, 1)})
	if res.Changed != ChangePosition || res.Created {
		t.Fatalf("unexpected result: %+v", res)
	}
	u := s.Users["7"]
	if u.Name != "ash" || !u.HasTag("dj") || u.Avatar != "AAAAAAAAAAA=" || !reflect.DeepEqual(u.Emotes, []string{"wvy"}) {
		t.Fatalf("move reset an unrelated field: %+v", u)
	}

	res = s.ApplyUserDiff(protocol.UserDiff{UserID: "7", Name: strp("birch")})
	if !res.Changed.Has(ChangeName) || res.PreviousName != "ash" {
		t.Fatalf("rename result: %+v", res)
	}
	if *u.Position != (Coord{2, 0, 1}) {
		t.Fatalf("rename reset position: %v", *u.Position)
	}
}

// Folding a random sequence of diffs must leave each field at the last value
// that was specified for it.
func TestApplyUserDiff_FoldMatchesLastSetValue(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	s := New()

	var lastName string
	var lastPos *Coord
	var lastEmotes, lastTags []string
	var lastAvatar string

	for i := 0; i < 500; i++ {
		d := protocol.UserDiff{UserID: "u"}
		switch r.Intn(5) {
		case 0:
			n := []string{"a", "b", "c"}[r.Intn(3)]
			d.Name = &n
			lastName = n
		case 1:
			p := protocol.Position{r.Intn(4), r.Intn(4), r.Intn(4)}
			d.Position = &p
			c := CoordOf(p)
			lastPos = &c
		case 2:
			e := []string{"wvy", "shk", "rbw", "spn"}[:r.Intn(5)]
			d.Emotes = &e
			lastEmotes = e
		case 3:
			a := []string{"", "AAAA", "BBBB"}[r.Intn(3)]
			d.Avatar = &a
			lastAvatar = a
		case 4:
			tg := []string{"admin", "dj"}[:r.Intn(3)]
			d.Tags = &tg
			lastTags = tg
		}
		s.ApplyUserDiff(d)

		u := s.Users["u"]
		if u.Name != lastName || u.Avatar != lastAvatar {
			t.Fatalf("step %d: name/avatar drifted: %+v", i, u)
		}
		if len(u.Emotes) != len(lastEmotes) || len(u.Tags) != len(lastTags) {
			t.Fatalf("step %d: list drifted: %+v", i, u)
		}
		if (lastPos == nil) != (u.Position == nil) || (lastPos != nil && *lastPos != *u.Position) {
			t.Fatalf("step %d: position drifted: %v vs %v", i, u.Position, lastPos)
		}
	}
}

func TestApplyUserDiff_EchoIsNoop(t *testing.T) {
	s := New()
	d := protocol.UserDiff{UserID: "0", Emotes: listp("wvy", "shk"), Position: posp(3, 1, 3)}
	first := s.ApplyUserDiff(d)
	if !first.Changed.Has(ChangeEmotes) || !first.Changed.Has(ChangePosition) {
		t.Fatalf("first apply should change: %+v", first)
	}
	second := s.ApplyUserDiff(d)
	if second.Changed != 0 || second.Created {
		t.Fatalf("second apply should be a no-op: %+v", second)
	}
}

func TestApplyUserDiff_UnknownUserCreatesStub(t *testing.T) {
	s := New()
	res := s.ApplyUserDiff(protocol.UserDiff{UserID: "ghost", Avatar: strp("AAAA")})
	if !res.Created {
		t.Fatalf("expected stub creation")
	}
	u, ok := s.LookupUser("ghost")
	if !ok || u.Avatar != "AAAA" || u.Name != "" {
		t.Fatalf("stub=%+v ok=%v", u, ok)
	}
}

func TestReplaceUsers_DropsMissing(t *testing.T) {
	s := New()
	s.GetUser("old")
	s.ReplaceUsers([]protocol.UserState{{UserID: "a", Name: "a"}, {UserID: "b"}})
	if _, ok := s.Users["old"]; ok {
		t.Fatalf("snapshot must replace, not merge")
	}
	if len(s.Users) != 2 {
		t.Fatalf("users=%d", len(s.Users))
	}
	named := s.NamedUsers()
	if len(named) != 1 || named[0].UserID != "a" {
		t.Fatalf("NamedUsers=%v", named)
	}
}

func TestQueue_PlayRemovesAndRecordsPrevious(t *testing.T) {
	s := New()
	a, b, c := item(1, "a.mp3", 1000), item(2, "b.mp4", 2000), item(3, "c.mp3", 3000)
	s.Enqueue(a, b)
	s.Enqueue(c)
	if got := s.QueueDuration(); got != 6*time.Second {
		t.Fatalf("QueueDuration=%v", got)
	}

	s.Play(&a)
	if s.Playing == nil || s.Playing.ItemID != 1 || s.LastPlayedItem != nil {
		t.Fatalf("after first play: playing=%v last=%v", s.Playing, s.LastPlayedItem)
	}
	if len(s.Queue) != 2 || s.Queue[0].ItemID != 2 {
		t.Fatalf("queue=%v", s.Queue)
	}

	// Resync of the same item keeps attribution untouched.
	again := a
	s.Play(&again)
	if s.LastPlayedItem != nil {
		t.Fatalf("resync must not move current to last played")
	}

	s.Play(&b)
	if s.LastPlayedItem == nil || s.LastPlayedItem.ItemID != 1 || s.Playing.ItemID != 2 {
		t.Fatalf("after second play: playing=%v last=%v", s.Playing, s.LastPlayedItem)
	}

	s.Play(nil)
	if s.Playing != nil || s.LastPlayedItem.ItemID != 2 {
		t.Fatalf("after stop: playing=%v last=%v", s.Playing, s.LastPlayedItem)
	}
}

func TestQueue_Unqueue(t *testing.T) {
	s := New()
	s.Enqueue(item(1, "a", 1), item(2, "b", 1), item(3, "c", 1))
	got, ok := s.Unqueue(2)
	if !ok || got.ItemID != 2 {
		t.Fatalf("Unqueue=%v,%v", got, ok)
	}
	if len(s.Queue) != 2 || s.Queue[0].ItemID != 1 || s.Queue[1].ItemID != 3 {
		t.Fatalf("queue=%v", s.Queue)
	}
	if _, ok := s.Unqueue(99); ok {
		t.Fatalf("unknown id should not unqueue")
	}
}

func TestSetBlocks_ReportsChanged(t *testing.T) {
	s := New()
	s.SetBlock(Coord{0, 0, 0}, 1)
	changed := s.SetBlocks([]protocol.BlockCell{
		{Coords: protocol.Position{0, 0, 0}, Value: 1},
		{Coords: protocol.Position{1, 0, 0}, Value: 2},
		{Coords: protocol.Position{2, 0, 0}, Value: 0},
	})
	if !reflect.DeepEqual(changed, []Coord{{1, 0, 0}}) {
		t.Fatalf("changed=%v", changed)
	}
	if !s.Occupied(Coord{1, 0, 0}) || s.Occupied(Coord{2, 0, 0}) {
		t.Fatalf("grid=%v", s.Grid)
	}
}

func TestEchoes_AddRemove(t *testing.T) {
	s := New()
	s.AddEchoes([]protocol.UserEcho{
		{Name: "ash", Position: protocol.Position{1, 1, 1}, Text: "hi"},
		{Name: "elm", Position: protocol.Position{2, 1, 1}, Text: "yo"},
	})
	if e, ok := s.EchoAt(Coord{1, 1, 1}); !ok || e.Text != "hi" {
		t.Fatalf("EchoAt=%+v,%v", e, ok)
	}
	s.RemoveEchoes([]protocol.Position{{1, 1, 1}, {9, 9, 9}})
	if _, ok := s.EchoAt(Coord{1, 1, 1}); ok {
		t.Fatalf("echo not removed")
	}
	if len(s.Echoes) != 1 {
		t.Fatalf("echoes=%d", len(s.Echoes))
	}
}

func TestClear_EmptiesEverything(t *testing.T) {
	s := New()
	s.GetUser("a")
	s.Enqueue(item(1, "a", 1))
	it := item(2, "b", 1)
	s.Play(&it)
	s.SetBlock(Coord{}, 1)
	s.AddEchoes([]protocol.UserEcho{{Text: "x"}})

	s.Clear()
	if len(s.Users) != 0 || len(s.Queue) != 0 || s.Playing != nil || s.LastPlayedItem != nil || len(s.Grid) != 0 || len(s.Echoes) != 0 {
		t.Fatalf("state not cleared: %+v", s)
	}
	// Still usable after clear.
	s.SetBlock(Coord{1, 1, 1}, 3)
	if !s.Occupied(Coord{1, 1, 1}) {
		t.Fatalf("grid unusable after clear")
	}
}

func TestUsersAtAndClone(t *testing.T) {
	s := New()
	s.ApplyUserDiff(protocol.UserDiff{UserID: "b", Position: posp(1, 0, 0)})
	s.ApplyUserDiff(protocol.UserDiff{UserID: "a", Position: posp(1, 0, 0)})
	s.ApplyUserDiff(protocol.UserDiff{UserID: "c", Position: posp(2, 0, 0)})
	at := s.UsersAt(Coord{1, 0, 0})
	if len(at) != 2 || at[0].UserID != "a" || at[1].UserID != "b" {
		t.Fatalf("UsersAt=%v", at)
	}

	cp := at[0].Clone()
	cp.Position[0] = 99
	if s.Users["a"].Position[0] != 1 {
		t.Fatalf("clone shares position storage")
	}
}
