package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"voxelzone.app/internal/client"
	"voxelzone.app/internal/persistence/framelog"
	"voxelzone.app/internal/persistence/worldcache"
	"voxelzone.app/internal/zone"
)

func main() {
	var (
		dir     = flag.String("frames", "", "directory containing frames-*.jsonl.zst")
		file    = flag.String("file", "", "single frame log (instead of -frames)")
		session = flag.String("session", "", "only replay this session id (optional)")
		until   = flag.String("until", "", "stop at this RFC3339 time (optional)")
		save    = flag.String("save", "", "write the replayed blocks and echoes to this world cache (optional)")
		verbose = flag.Bool("v", false, "log client events")
	)
	flag.Parse()

	var files []string
	switch {
	case *file != "":
		files = []string{*file}
	case *dir != "":
		var err error
		files, err = framelog.ListFiles(*dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list frame logs:", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "missing -frames or -file")
		os.Exit(2)
	}

	var stopAt time.Time
	if *until != "" {
		t, err := time.Parse(time.RFC3339, *until)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -until:", err)
			os.Exit(2)
		}
		stopAt = t
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}
	defer func() { _ = logger.Sync() }()

	// The replica's clock follows the recording so heartbeat times match it.
	var cur time.Time
	rt := newReplayTransport()
	c := client.New(rt, client.Options{Logger: logger, Now: func() time.Time { return cur }})
	if *verbose {
		c.OnAny(func(ev client.Event) { logger.Debug("event", zap.Stringer("kind", ev.Kind)) })
	}

	st := newStats()
	stopped := false
	for _, f := range files {
		st.Files++
		err := framelog.ReadFile(f, func(e framelog.Entry) error {
			if !stopAt.IsZero() && e.At.After(stopAt) {
				stopped = true
				return io.EOF
			}
			cur = e.At
			st.apply(rt, e, *session)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if stopped {
			break
		}
	}

	printSummary(os.Stdout, st, c)

	if *save != "" {
		var err error
		c.View(func(s *zone.State) { err = worldcache.Save(*save, s) })
		if err != nil {
			fmt.Fprintln(os.Stderr, "save:", err)
			os.Exit(1)
		}
		fmt.Printf("saved %s\n", *save)
	}
}

func printSummary(w io.Writer, st *stats, c *client.Client) {
	fmt.Fprintf(w, "files=%d in=%d out=%d skipped=%d bad=%d sessions=%d\n",
		st.Files, st.In, st.Out, st.Skipped, st.Bad, len(st.Sessions))
	for _, typ := range sortedKeys(st.ByType) {
		fmt.Fprintf(w, "  %-10s %d\n", typ, st.ByType[typ])
	}
	c.View(func(s *zone.State) {
		fmt.Fprintf(w, "users=%d named=%d blocks=%d echoes=%d queued=%d (%s)\n",
			len(s.Users), len(s.NamedUsers()), len(s.Grid), len(s.Echoes), len(s.Queue), s.QueueDuration().Round(time.Second))
		if s.Playing != nil {
			fmt.Fprintf(w, "playing #%d %s\n", s.Playing.ItemID, s.Playing.Media.Source)
		}
		if s.LastPlayedItem != nil {
			fmt.Fprintf(w, "last played #%d %s\n", s.LastPlayedItem.ItemID, s.LastPlayedItem.Media.Source)
		}
	})
	fmt.Fprintf(w, "joined=%v token=%q last_heartbeat=%s\n", c.Joined(), c.Token(), formatTime(c.LastHeartbeat()))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
