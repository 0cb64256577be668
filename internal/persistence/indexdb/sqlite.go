// Package indexdb keeps a queryable sqlite history of what a client saw:
// media plays and chat lines. Frame logs remain the source of truth; the
// index may drop rows when its writer falls behind.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"voxelzone.app/internal/protocol"
)

type SQLiteIndex struct {
	db  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu is held shared by senders and exclusively while ch is closed.
	sendMu sync.RWMutex
	closed atomic.Bool

	dropPlays atomic.Uint64
	dropChats atomic.Uint64
}

type reqKind int

const (
	reqPlay reqKind = iota + 1
	reqChat
	reqFlush
)

type req struct {
	kind reqKind

	play PlayRow
	chat ChatRow
	done chan struct{}
}

type PlayRow struct {
	At         time.Time
	Session    string
	ItemID     int
	Source     string
	Title      string
	DurationMS int64
	QueuedBy   string
}

type ChatRow struct {
	At      time.Time
	Session string
	UserID  string
	Name    string
	Text    string
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropPlayTotal uint64
	DropChatTotal uint64
}

const queueCapacity = 4096

func OpenSQLite(path string, logger *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: logger,
		ch:  make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA temp_store=MEMORY;`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			session TEXT NOT NULL,
			item_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			queued_by TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plays_at ON plays(at);`,
		`CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			session TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			text TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_at ON chats(at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordPlay queues a play row. Stop messages (nil items) are not indexed.
func (s *SQLiteIndex) RecordPlay(at time.Time, session string, item protocol.QueueItem) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return
	}
	r := PlayRow{
		At:         at.UTC(),
		Session:    session,
		ItemID:     item.ItemID,
		Source:     item.Media.Source,
		Title:      item.Media.Title,
		DurationMS: item.Media.Duration,
		QueuedBy:   item.Info.UserID,
	}
	select {
	case s.ch <- req{kind: reqPlay, play: r}:
	default:
		s.dropPlays.Add(1)
	}
}

func (s *SQLiteIndex) RecordChat(at time.Time, session, userID, name, text string) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return
	}
	r := ChatRow{At: at.UTC(), Session: session, UserID: userID, Name: name, Text: text}
	select {
	case s.ch <- req{kind: reqChat, chat: r}:
	default:
		s.dropChats.Add(1)
	}
}

// Flush blocks until everything queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.sendMu.RLock()
	if s.closed.Load() {
		s.sendMu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.sendMu.RUnlock()
	case <-ctx.Done():
		s.sendMu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropPlayTotal: s.dropPlays.Load(),
		DropChatTotal: s.dropChats.Load(),
	}
}

// RecentPlays returns up to limit plays, newest first.
func (s *SQLiteIndex) RecentPlays(ctx context.Context, limit int) ([]PlayRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at,session,item_id,source,title,duration_ms,queued_by FROM plays ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayRow
	for rows.Next() {
		var (
			r  PlayRow
			at string
		)
		if err := rows.Scan(&at, &r.Session, &r.ItemID, &r.Source, &r.Title, &r.DurationMS, &r.QueuedBy); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentChats returns up to limit chat lines, newest first.
func (s *SQLiteIndex) RecentChats(ctx context.Context, limit int) ([]ChatRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at,session,user_id,name,text FROM chats ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var (
			r  ChatRow
			at string
		)
		if err := rows.Scan(&at, &r.Session, &r.UserID, &r.Name, &r.Text); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPlay, err := s.db.Prepare(`INSERT INTO plays(at,session,item_id,source,title,duration_ms,queued_by) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		s.log.Error("indexdb prepare plays", zap.Error(err))
	}
	insertChat, err := s.db.Prepare(`INSERT INTO chats(at,session,user_id,name,text) VALUES(?,?,?,?,?)`)
	if err != nil {
		s.log.Error("indexdb prepare chats", zap.Error(err))
	}
	defer func() {
		if insertPlay != nil {
			_ = insertPlay.Close()
		}
		if insertChat != nil {
			_ = insertChat.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn("indexdb begin", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn("indexdb commit", zap.Error(err))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Warn("indexdb write", zap.Error(err))
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqPlay:
			p := r.play
			if insertPlay != nil {
				if _, err := tx.Stmt(insertPlay).Exec(
					p.At.Format(time.RFC3339Nano),
					p.Session,
					p.ItemID,
					p.Source,
					p.Title,
					p.DurationMS,
					p.QueuedBy,
				); err != nil {
					rollback(err)
					continue
				}
				opCount++
			}
		case reqChat:
			c := r.chat
			if insertChat != nil {
				if _, err := tx.Stmt(insertChat).Exec(
					c.At.Format(time.RFC3339Nano),
					c.Session,
					c.UserID,
					c.Name,
					c.Text,
				); err != nil {
					rollback(err)
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
