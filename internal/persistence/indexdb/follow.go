package indexdb

import (
	"sync"
	"time"

	"voxelzone.app/internal/client"
	"voxelzone.app/internal/protocol"
)

// Follow indexes the client's chat lines and media changes. Re-seeks of the
// item already playing are not indexed again.
func (s *SQLiteIndex) Follow(c *client.Client, now func() time.Time) {
	if s == nil || c == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	session := c.SessionID().String()

	var (
		mu   sync.Mutex
		last *protocol.QueueItem
	)
	c.On(client.EventPlay, func(ev client.Event) {
		if ev.Play == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if ev.Play.Item == nil {
			last = nil
			return
		}
		if last != nil && last.SameAs(*ev.Play.Item) {
			return
		}
		it := *ev.Play.Item
		last = &it
		s.RecordPlay(now(), session, it)
	})
	c.On(client.EventChat, func(ev client.Event) {
		var id, name string
		if ev.User != nil {
			id, name = ev.User.UserID, ev.User.Name
		}
		s.RecordChat(now(), session, id, name, ev.Text)
	})
}
