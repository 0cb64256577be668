package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"voxelzone.app/internal/client"
)

// printer renders client events as terminal lines. Block and echo updates
// are too chatty to print one by one and are only counted.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func who(ev client.Event) string {
	if ev.User == nil {
		return "?"
	}
	if ev.User.Name != "" {
		return ev.User.Name
	}
	return "#" + ev.User.UserID
}

func (p *printer) handle(ev client.Event) {
	switch ev.Kind {
	case client.EventJoined:
		p.printf("* joined as %s", who(ev))
	case client.EventReject:
		p.printf("* rejected: %s", ev.Text)
	case client.EventStatus:
		p.printf("* %s", ev.Text)
	case client.EventJoin:
		p.printf("* %s arrived", who(ev))
	case client.EventLeave:
		p.printf("* %s left", who(ev))
	case client.EventRename:
		if ev.Previous != "" {
			p.printf("* %s is now %s", ev.Previous, who(ev))
		} else {
			p.printf("* %s arrived", who(ev))
		}
	case client.EventChat:
		p.printf("%s: %s", who(ev), ev.Text)
	case client.EventEmotes:
		if !ev.Local {
			p.printf("* %s emotes [%s]", who(ev), strings.Join(ev.Emotes, " "))
		}
	case client.EventPlay:
		if ev.Play == nil || ev.Play.Item == nil {
			p.printf("* playback stopped")
			return
		}
		if ev.Play.Time == 0 {
			m := ev.Play.Item.Media
			p.printf("* now playing %s (%s)", titleOf(m.Title, m.Source), (time.Duration(m.Duration) * time.Millisecond).Round(time.Second))
		}
	case client.EventQueue:
		if ev.Item != nil {
			p.printf("* queued #%d %s", ev.Item.ItemID, titleOf(ev.Item.Media.Title, ev.Item.Media.Source))
		}
	case client.EventUnqueue:
		if ev.Item != nil {
			p.printf("* unqueued #%d", ev.Item.ItemID)
		}
	case client.EventDisconnect:
		if ev.Clean {
			p.printf("* disconnected")
		} else {
			p.printf("* connection lost (code %d)", ev.Code)
		}
	}
}
