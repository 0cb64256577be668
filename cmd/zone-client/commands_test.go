package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"voxelzone.app/internal/client"
	"voxelzone.app/internal/persistence/worldcache"
	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/transport"
	"voxelzone.app/internal/transport/transporttest"
	"voxelzone.app/internal/zone"
)

func newSession(t *testing.T) (*session, *transporttest.Conn, *bytes.Buffer) {
	t.Helper()
	m := transport.New(zaptest.NewLogger(t))
	conn := transporttest.NewConn()
	m.Attach(conn)
	c := client.New(m, client.Options{Logger: zaptest.NewLogger(t)})
	var out bytes.Buffer
	return &session{c: c, out: &out}, conn, &out
}

func TestSession_ChatAndCommands(t *testing.T) {
	s, conn, _ := newSession(t)
	ctx := context.Background()
	for _, line := range []string{"hello there", "/queue https://x/a.mp3", "/unqueue 3", "/cmd banish 7", "  "} {
		if err := s.run(ctx, line); err != nil {
			t.Fatalf("run %q: %v", line, err)
		}
	}
	frames := conn.Sent(t)
	if len(frames) != 4 {
		t.Fatalf("frames=%d want 4", len(frames))
	}
	want := []string{
		`{"text":"hello there"}`,
		`{"args":["https://x/a.mp3"],"name":"queue"}`,
		`{"args":[3],"name":"unqueue"}`,
		`{"args":["7"],"name":"banish"}`,
	}
	for i, w := range want {
		if string(frames[i].Payload) != w {
			t.Fatalf("frame %d=%s want %s", i, frames[i].Payload, w)
		}
	}
}

func TestSession_MoveAndRotate(t *testing.T) {
	s, conn, out := newSession(t)
	conn.PushMessage(t, protocol.TypeBlocks, protocol.BlocksMsg{Cells: []protocol.BlockCell{
		{Coords: protocol.Position{0, -1, 0}, Value: 1},
		{Coords: protocol.Position{1, -1, 0}, Value: 1},
		{Coords: protocol.Position{1, -1, -1}, Value: 1},
	}})
	conn.PushMessage(t, protocol.TypeUser, protocol.UserDiff{UserID: "0", Position: &protocol.Position{0, 0, 0}})
	ctx := context.Background()

	if err := s.run(ctx, "/e"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !strings.Contains(out.String(), "at 1,0,0") {
		t.Fatalf("out=%q", out.String())
	}
	if err := s.run(ctx, "/rotate"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	out.Reset()
	// One quarter step turns "east" into "north".
	if err := s.run(ctx, "/e"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !strings.Contains(out.String(), "at 1,0,-1") {
		t.Fatalf("out=%q", out.String())
	}
}

func TestSession_Errors(t *testing.T) {
	s, _, _ := newSession(t)
	ctx := context.Background()
	if err := s.run(ctx, "/quit"); !errors.Is(err, errQuit) {
		t.Fatalf("quit err=%v", err)
	}
	if err := s.run(ctx, "/emote xyz"); !errors.Is(err, client.ErrUnknownEmote) {
		t.Fatalf("emote err=%v", err)
	}
	if err := s.run(ctx, "/avatar nope"); !errors.Is(err, client.ErrBadAvatar) {
		t.Fatalf("avatar err=%v", err)
	}
	for _, line := range []string{"/unqueue x", "/queue", "/bogus", "/history", "/save"} {
		if err := s.run(ctx, line); err == nil {
			t.Fatalf("%q should fail", line)
		}
	}
}

func TestSession_WhoAndSave(t *testing.T) {
	s, conn, out := newSession(t)
	conn.PushMessage(t, protocol.TypeUsers, protocol.UsersMsg{Users: []protocol.UserState{
		{UserID: "2", Name: "zed", Position: &protocol.Position{1, 0, 1}},
		{UserID: "3", Name: "amy"},
		{UserID: "4"},
	}})
	conn.PushMessage(t, protocol.TypeBlocks, protocol.BlocksMsg{Cells: []protocol.BlockCell{{Coords: protocol.Position{4, 0, 4}, Value: 9}}})
	ctx := context.Background()

	if err := s.run(ctx, "/who"); err != nil {
		t.Fatalf("who: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "2 named user(s)") || strings.Index(text, "amy") > strings.Index(text, "zed") {
		t.Fatalf("who output=%q", text)
	}

	path := filepath.Join(t.TempDir(), "world.json")
	if err := s.run(ctx, "/save "+path); err != nil {
		t.Fatalf("save: %v", err)
	}
	st := zone.New()
	if err := worldcache.Load(path, st); err != nil {
		t.Fatalf("load saved: %v", err)
	}
	if v, _ := st.Grid.Get(zone.Coord{4, 0, 4}); v != 9 {
		t.Fatalf("saved block=%d want 9", v)
	}
}

func TestAttachWithCache_ServerBlocksWin(t *testing.T) {
	cached := zone.New()
	cached.Grid.Set(zone.Coord{0, 0, 0}, 1)
	cached.Grid.Set(zone.Coord{2, 0, 0}, 3)
	path := filepath.Join(t.TempDir(), "world.json")
	if err := worldcache.Save(path, cached); err != nil {
		t.Fatalf("save cache: %v", err)
	}

	m := transport.New(zaptest.NewLogger(t))
	conn := transporttest.NewConn()
	c := client.New(m, client.Options{Logger: zaptest.NewLogger(t)})

	frame, err := protocol.Encode(protocol.TypeBlocks, protocol.BlocksMsg{Cells: []protocol.BlockCell{{Coords: protocol.Position{0, 0, 0}, Value: 5}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The server frame is already waiting when the reader starts.
	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		conn.Push(frame)
	}()

	attachWithCache(m, conn, c, path, zaptest.NewLogger(t))
	<-pushed

	c.View(func(st *zone.State) {
		if v, _ := st.Grid.Get(zone.Coord{0, 0, 0}); v != 5 {
			t.Fatalf("block=%d want server value 5", v)
		}
		if v, _ := st.Grid.Get(zone.Coord{2, 0, 0}); v != 3 {
			t.Fatalf("cached block=%d want 3", v)
		}
	})
}

func TestAttachWithCache_MissingFileStillAttaches(t *testing.T) {
	m := transport.New(zaptest.NewLogger(t))
	conn := transporttest.NewConn()
	c := client.New(m, client.Options{Logger: zaptest.NewLogger(t)})

	attachWithCache(m, conn, c, filepath.Join(t.TempDir(), "absent.json"), zaptest.NewLogger(t))
	if m.ReadyState() != transport.Open {
		t.Fatalf("state=%v", m.ReadyState())
	}
}

func TestPrinter_FormatsEvents(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf}
	it := protocol.QueueItem{ItemID: 1, Media: protocol.Media{Source: "a.mp3", Duration: 90000}}
	p.handle(client.Event{Kind: client.EventChat, User: &zone.User{UserID: "5"}, Text: "yo"})
	p.handle(client.Event{Kind: client.EventPlay, Play: &protocol.PlayMsg{Item: &it}})
	p.handle(client.Event{Kind: client.EventPlay, Play: &protocol.PlayMsg{Item: &it, Time: 1000}})
	p.handle(client.Event{Kind: client.EventBlocks})
	p.handle(client.Event{Kind: client.EventDisconnect, Code: 1006})

	want := "#5: yo\n* now playing a.mp3 (1m30s)\n* connection lost (code 1006)\n"
	if buf.String() != want {
		t.Fatalf("output=%q want %q", buf.String(), want)
	}
}
