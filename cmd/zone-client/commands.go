package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"voxelzone.app/internal/client"
	"voxelzone.app/internal/movement"
	"voxelzone.app/internal/persistence/indexdb"
	"voxelzone.app/internal/persistence/worldcache"
	"voxelzone.app/internal/zone"
)

var errQuit = errors.New("quit")

// session holds what the command line needs besides the client itself.
type session struct {
	c      *client.Client
	out    io.Writer
	idx    *indexdb.SQLiteIndex
	save   string
	rotate int
}

const helpText = `commands:
  <text>              chat
  /n /s /e /w         move one cell (relative to /rotate)
  /rotate             turn the camera a quarter step
  /queue <url>        queue media
  /unqueue <id>       cancel a queued item
  /skip               skip the current item
  /playlist           show queue totals
  /emote <code>       toggle one of wvy shk rbw spn
  /name <name>        rename
  /avatar <base64>    set 8-byte avatar
  /tags <a,b,...>     set tags
  /who                list named users
  /resync             force the player to reload
  /auth <password>    authenticate
  /cmd <name> [args]  send a raw command
  /save [path]        write the replica's blocks and echoes
  /history            recent plays and chats
  /quit`

func (s *session) run(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		s.c.Chat(line)
		return nil
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	if dir, ok := movement.ParseDirection(name); ok {
		pos, moved := s.c.MoveInDirection(dir, s.rotate)
		if !moved {
			fmt.Fprintln(s.out, "blocked")
			return nil
		}
		fmt.Fprintf(s.out, "at %s\n", pos)
		return nil
	}

	switch name {
	case "help", "?":
		fmt.Fprintln(s.out, helpText)
	case "quit", "q":
		return errQuit
	case "rotate":
		s.rotate = (s.rotate + 1) % 4
		fmt.Fprintf(s.out, "camera step %d\n", s.rotate)
	case "queue":
		if rest == "" {
			return fmt.Errorf("usage: /queue <url>")
		}
		s.c.QueueMedia(rest)
	case "unqueue":
		id, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("usage: /unqueue <id>")
		}
		s.c.Unqueue(id)
	case "skip":
		s.c.Skip()
	case "playlist":
		p := s.c.PlaylistSummary()
		fmt.Fprintf(s.out, "%d item(s), %s total\n", p.Count, p.Total.Round(time.Second))
		if p.Current != nil {
			by := p.QueuedBy
			if by == "" {
				by = "server"
			}
			fmt.Fprintf(s.out, "now: %s (queued by %s)\n", titleOf(p.Current.Media.Title, p.Current.Media.Source), by)
		}
	case "emote":
		return s.c.ToggleEmote(rest)
	case "name":
		if rest == "" {
			return fmt.Errorf("usage: /name <name>")
		}
		s.c.Rename(rest)
	case "avatar":
		return s.c.SetAvatar(rest)
	case "tags":
		var tags []string
		for _, t := range strings.Split(rest, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		s.c.SetTags(tags)
	case "who":
		s.c.View(func(st *zone.State) {
			users := st.NamedUsers()
			fmt.Fprintf(s.out, "%d named user(s)\n", len(users))
			for _, u := range users {
				where := "nowhere"
				if u.Position != nil {
					where = u.Position.String()
				}
				fmt.Fprintf(s.out, "  %s [%s] at %s\n", u.Name, u.UserID, where)
			}
		})
	case "resync":
		s.c.Resync()
	case "auth":
		s.c.Auth(rest)
	case "cmd":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return fmt.Errorf("usage: /cmd <name> [args]")
		}
		args := make([]any, 0, len(fields)-1)
		for _, f := range fields[1:] {
			args = append(args, f)
		}
		s.c.Command(fields[0], args...)
	case "save":
		path := rest
		if path == "" {
			path = s.save
		}
		if path == "" {
			return fmt.Errorf("usage: /save <path>")
		}
		var err error
		s.c.View(func(st *zone.State) { err = worldcache.Save(path, st) })
		if err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		fmt.Fprintf(s.out, "saved %s\n", path)
	case "history":
		return s.history(ctx)
	default:
		return fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return nil
}

func (s *session) history(ctx context.Context) error {
	if s.idx == nil {
		return fmt.Errorf("history index disabled")
	}
	if err := s.idx.Flush(ctx); err != nil {
		return err
	}
	plays, err := s.idx.RecentPlays(ctx, 5)
	if err != nil {
		return err
	}
	chats, err := s.idx.RecentChats(ctx, 10)
	if err != nil {
		return err
	}
	for _, p := range plays {
		fmt.Fprintf(s.out, "%s play %s\n", p.At.Local().Format("15:04:05"), titleOf(p.Title, p.Source))
	}
	for i := len(chats) - 1; i >= 0; i-- {
		ch := chats[i]
		fmt.Fprintf(s.out, "%s %s: %s\n", ch.At.Local().Format("15:04:05"), displayName(ch.Name), ch.Text)
	}
	return nil
}

func titleOf(title, source string) string {
	if title != "" {
		return title
	}
	return source
}

func displayName(name string) string {
	if name == "" {
		return "(anonymous)"
	}
	return name
}
