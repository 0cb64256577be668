package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"voxelzone.app/internal/client"
	"voxelzone.app/internal/config"
	"voxelzone.app/internal/persistence/framelog"
	"voxelzone.app/internal/persistence/indexdb"
	"voxelzone.app/internal/persistence/worldcache"
	"voxelzone.app/internal/playback"
	"voxelzone.app/internal/transport"
	"voxelzone.app/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to client.yaml (optional)")
		url        = flag.String("url", "", "zone ws url (overrides config)")
		name       = flag.String("name", "", "display name (overrides config)")
		password   = flag.String("password", "", "zone password (overrides config)")
		recordDir  = flag.String("record", "", "directory for frame logs (overrides config)")
		indexPath  = flag.String("index", "", "sqlite history path (overrides config)")
		worldPath  = flag.String("world", "", "world cache to load at start and /save to (overrides config)")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Server.URL, *url)
	override(&cfg.Join.Name, *name)
	override(&cfg.Join.Password, *password)
	override(&cfg.Storage.RecordDir, *recordDir)
	override(&cfg.Storage.IndexPath, *indexPath)
	override(&cfg.Storage.WorldCache, *worldPath)
	if *debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("zone-client", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// attachWithCache seeds the replica from the world cache before attaching, so
// every server frame lands on top of the cached world.
func attachWithCache(m *transport.Messaging, conn transport.Conn, c *client.Client, path string, logger *zap.Logger) {
	if path != "" {
		if wf, err := worldcache.Read(path); err != nil {
			logger.Warn("world cache not loaded", zap.String("path", path), zap.Error(err))
		} else {
			c.Bootstrap(wf.Blocks.Cells, wf.Echoes)
		}
	}
	m.Attach(conn)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	el := playback.NewHeadlessElement(nil)
	clockOpts := cfg.Playback.ClockOptions()
	clockOpts.Logger = logger.Named("playback")
	clock := playback.NewClock(el, clockOpts)
	clock.SetVolume(cfg.Playback.Volume)
	clock.OnReload(func(src string) { logger.Debug("media reload", zap.String("src", src)) })
	defer clock.Close()
	go func() { _ = clock.Run(ctx) }()

	m := transport.New(logger.Named("transport"))
	c := client.New(m, client.Options{
		LocalUserID:          cfg.Join.LocalUserID,
		Password:             cfg.Join.Password,
		QuickResponseTimeout: cfg.Timeouts.QuickResponse(),
		SlowResponseTimeout:  cfg.Timeouts.SlowResponse(),
		Player:               clock,
		Logger:               logger.Named("client"),
	})
	sessionID := c.SessionID().String()
	logger.Info("session", zap.String("id", sessionID), zap.String("url", cfg.Server.URL))

	if dir := cfg.Storage.RecordDir; dir != "" {
		rec := framelog.NewWriter(dir, sessionID, logger.Named("framelog"))
		defer rec.Close()
		m.SetRecorder(rec)
	}

	var idx *indexdb.SQLiteIndex
	if p := cfg.Storage.IndexPath; p != "" {
		var err error
		idx, err = indexdb.OpenSQLite(p, logger.Named("indexdb"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		idx.Follow(c, nil)
	}

	pr := &printer{out: os.Stdout}
	c.OnAny(pr.handle)
	disconnected := make(chan struct{})
	var once sync.Once
	c.On(client.EventDisconnect, func(client.Event) { once.Do(func() { close(disconnected) }) })

	conn, err := ws.Dial(ctx, cfg.Server.URL, ws.Options{
		HandshakeTimeout: cfg.Timeouts.Handshake(),
		WriteTimeout:     cfg.Timeouts.Write(),
		CloseTimeout:     cfg.Timeouts.Close(),
		Logger:           logger.Named("ws"),
	})
	if err != nil {
		return err
	}
	attachWithCache(m, conn, c, cfg.Storage.WorldCache, logger)

	joinName := cfg.Join.Name
	if joinName == "" {
		joinName = "guest"
	}
	if _, err := c.Join(ctx, joinName); err != nil {
		_ = c.Close(context.Background())
		return fmt.Errorf("join: %w", err)
	}
	fmt.Println("type /help for commands")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	sess := &session{c: c, out: os.Stdout, idx: idx, save: cfg.Storage.WorldCache}
	for {
		select {
		case <-ctx.Done():
			return c.Close(context.Background())
		case <-disconnected:
			return nil
		case line, ok := <-lines:
			if !ok {
				return c.Close(context.Background())
			}
			err := sess.run(ctx, line)
			if errors.Is(err, errQuit) {
				return c.Close(context.Background())
			}
			if err != nil {
				pr.printf("! %v", err)
			}
		}
	}
}
