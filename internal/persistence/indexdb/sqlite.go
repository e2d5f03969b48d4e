// Package indexdb is a queryable SQLite read-model of recorded sessions. The
// command logs stay the source of truth; writes here are asynchronous and may
// be dropped when the writer falls behind.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tactica.ai/internal/persistence/cmdlog"
	"tactica.ai/internal/persistence/snapshot"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSession  atomic.Uint64
	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqSessionEnd
	reqTick
	reqSnapshot
)

type req struct {
	kind reqKind

	session  SessionRow
	tick     tickRow
	snapshot SnapshotRow
}

// SessionRow describes one recorded session.
type SessionRow struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Seed      int32  `json:"seed"`
	StepMs    int    `json:"step_ms"`
	LogPath   string `json:"log_path"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	EndReason string `json:"end_reason,omitempty"`
	LastTick  uint64 `json:"last_tick"`
}

type tickRow struct {
	Session string
	Entry   cmdlog.Entry
}

// SnapshotRow describes one snapshot file written for a session.
type SnapshotRow struct {
	Session string `json:"session"`
	Tick    uint64 `json:"tick"`
	Path    string `json:"path"`
	Digest  string `json:"digest"`
	Actors  int    `json:"actors"`
	Vars    int    `json:"vars"`
	State   string `json:"level_state"`
}

// FiredRow is one rule firing.
type FiredRow struct {
	Tick uint64 `json:"tick"`
	Seq  int    `json:"seq"`
	Rule string `json:"rule"`
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropSessionTotal  uint64 `json:"drop_session_total"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
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
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
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
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			level TEXT NOT NULL,
			seed INTEGER NOT NULL,
			step_ms INTEGER NOT NULL,
			log_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			end_reason TEXT,
			last_tick INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			fired INTEGER NOT NULL,
			PRIMARY KEY (session, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			actor INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session, tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS fired (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			rule TEXT NOT NULL,
			PRIMARY KEY (session, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fired_rule ON fired(session, rule);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			actors INTEGER NOT NULL,
			vars INTEGER NOT NULL,
			level_state TEXT NOT NULL,
			PRIMARY KEY (session, tick)
		);`,
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
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropSessionTotal:  s.dropSession.Load(),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordSession(row SessionRow) {
	if s == nil {
		return
	}
	if row.StartedAt == "" {
		row.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.enqueue(req{kind: reqSession, session: row}, &s.dropSession)
}

func (s *SQLiteIndex) EndSession(id, reason string) {
	if s == nil {
		return
	}
	row := SessionRow{ID: id, EndReason: reason, EndedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	s.enqueue(req{kind: reqSessionEnd, session: row}, &s.dropSession)
}

func (s *SQLiteIndex) WriteTick(session string, e cmdlog.Entry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: tickRow{Session: session, Entry: e}}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := SnapshotRow{
		Session: snap.Header.Session,
		Tick:    snap.Header.Tick,
		Path:    path,
		Digest:  snap.Header.Digest,
		Actors:  len(snap.World.Actors),
		Vars:    len(snap.Vars),
		State:   snap.LevelState,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,level,seed,step_ms,log_path,started_at) VALUES(?,?,?,?,?,?)`)
	endSession, _ := s.db.Prepare(`UPDATE sessions SET ended_at=?, end_reason=? WHERE id=?`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(session,tick,digest,commands,fired) VALUES(?,?,?,?,?)`)
	bumpTick, _ := s.db.Prepare(`UPDATE sessions SET last_tick=? WHERE id=? AND last_tick<?`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(session,tick,seq,kind,actor,raw_json) VALUES(?,?,?,?,?,?)`)
	insertFired, _ := s.db.Prepare(`INSERT OR REPLACE INTO fired(session,tick,seq,rule) VALUES(?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(session,tick,path,digest,actors,vars,level_state) VALUES(?,?,?,?,?,?,?)`)
	stmts := []*sql.Stmt{insertSession, endSession, insertTick, bumpTick, insertCommand, insertFired, insertSnapshot}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()
	for _, st := range stmts {
		if st == nil {
			// schema is broken; drain so producers never block
			for range s.ch {
			}
			return
		}
	}

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			se := r.session
			exec(insertSession, se.ID, se.Level, se.Seed, se.StepMs, se.LogPath, se.StartedAt)

		case reqSessionEnd:
			se := r.session
			exec(endSession, se.EndedAt, se.EndReason, se.ID)

		case reqTick:
			e, id := r.tick.Entry, r.tick.Session
			if !exec(insertTick, id, int64(e.Tick), e.Digest, len(e.Commands), len(e.Fired)) {
				continue
			}
			if !exec(bumpTick, int64(e.Tick), id, int64(e.Tick)) {
				continue
			}
			for i, c := range e.Commands {
				raw, _ := json.Marshal(c)
				if !exec(insertCommand, id, int64(e.Tick), i, string(c.Kind), int64(c.Actor), string(raw)) {
					break
				}
			}
			for i, rule := range e.Fired {
				if tx == nil || !exec(insertFired, id, int64(e.Tick), i, rule) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Session, int64(sn.Tick), sn.Path, sn.Digest, sn.Actors, sn.Vars, sn.State)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
