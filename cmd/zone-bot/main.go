package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"voxelzone.app/internal/client"
	"voxelzone.app/internal/movement"
	"voxelzone.app/internal/playback"
	"voxelzone.app/internal/transport"
	"voxelzone.app/internal/transport/ws"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:4000/zone", "zone ws url")
		name      = flag.String("name", "bot", "display name")
		password  = flag.String("password", "", "zone password")
		moveEvery = flag.Duration("move_every", 2*time.Second, "interval between wander steps")
		chatEvery = flag.Duration("chat_every", time.Minute, "interval between chat lines (0 disables)")
		seed      = flag.Int64("seed", 0, "random seed (0: time based)")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("bot")

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *url, *name, *password, *moveEvery, *chatEvery, rand.New(rand.NewSource(*seed))); err != nil {
		logger.Error("bot stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, url, name, password string, moveEvery, chatEvery time.Duration, r *rand.Rand) error {
	clock := playback.NewClock(playback.NewHeadlessElement(nil), playback.Options{Logger: logger})
	defer clock.Close()
	go func() { _ = clock.Run(ctx) }()

	m := transport.New(logger)
	c := client.New(m, client.Options{Password: password, Player: clock, Logger: logger})

	done := make(chan struct{})
	c.On(client.EventDisconnect, func(ev client.Event) {
		logger.Info("disconnected", zap.Int("code", ev.Code), zap.Bool("clean", ev.Clean))
		close(done)
	})
	c.On(client.EventChat, func(ev client.Event) {
		if ev.Local || ev.User == nil {
			return
		}
		logger.Info("chat", zap.String("from", ev.User.Name), zap.String("text", ev.Text))
	})

	conn, err := ws.Dial(ctx, url, ws.Options{Logger: logger})
	if err != nil {
		return err
	}
	m.Attach(conn)

	u, err := c.Join(ctx, name)
	if err != nil {
		_ = c.Close(context.Background())
		return fmt.Errorf("join: %w", err)
	}
	logger.Info("joined", zap.String("user", u.UserID), zap.String("session", c.SessionID().String()))

	move := time.NewTicker(moveEvery)
	defer move.Stop()
	var chat <-chan time.Time
	if chatEvery > 0 {
		t := time.NewTicker(chatEvery)
		defer t.Stop()
		chat = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return c.Close(context.Background())
		case <-done:
			return nil
		case <-move.C:
			dir := movement.Direction(r.Intn(4))
			if pos, ok := c.MoveInDirection(dir, 0); ok {
				logger.Debug("moved", zap.Stringer("pos", pos))
			}
		case <-chat:
			p := c.PlaylistSummary()
			c.Chat(fmt.Sprintf("%d item(s) queued, %s to go", p.Count, p.Total.Round(time.Second)))
		}
	}
}
