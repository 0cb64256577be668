package main

import (
	"context"
	"encoding/json"
	"sort"

	"voxelzone.app/internal/persistence/framelog"
	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/transport"
)

// replayTransport feeds recorded inbound frames straight to the client's
// handlers. Outbound intents are dropped; the recording already holds what
// the live session sent.
type replayTransport struct {
	handlers map[string][]func(json.RawMessage)
}

func newReplayTransport() *replayTransport {
	return &replayTransport{handlers: map[string][]func(json.RawMessage){}}
}

func (r *replayTransport) Send(string, any) {}

func (r *replayTransport) OnMessage(typ string, fn func(payload json.RawMessage)) {
	r.handlers[typ] = append(r.handlers[typ], fn)
}

// OnClose never fires: recordings hold frames, not connection events.
func (r *replayTransport) OnClose(func(code int)) {}

func (r *replayTransport) Close(context.Context, int) error { return nil }

func (r *replayTransport) feed(frame []byte) (string, error) {
	f, err := protocol.Decode(frame)
	if err != nil {
		return "", err
	}
	for _, fn := range r.handlers[f.Type] {
		fn(f.Payload)
	}
	return f.Type, nil
}

type stats struct {
	Files    int
	In       int
	Out      int
	Skipped  int
	Bad      int
	Sessions map[string]int
	ByType   map[string]int
}

func newStats() *stats {
	return &stats{Sessions: map[string]int{}, ByType: map[string]int{}}
}

// apply replays one entry. Only inbound frames change the replica.
func (s *stats) apply(rt *replayTransport, e framelog.Entry, session string) {
	if session != "" && e.Session != session {
		s.Skipped++
		return
	}
	s.Sessions[e.Session]++
	if e.Dir != transport.DirIn {
		s.Out++
		return
	}
	s.In++
	typ, err := rt.feed([]byte(e.Frame))
	if err != nil {
		s.Bad++
		return
	}
	s.ByType[typ]++
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
