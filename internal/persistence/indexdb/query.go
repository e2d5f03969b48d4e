package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// OpenReader opens an existing index for queries without starting a writer.
func OpenReader(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func QuerySessions(ctx context.Context, db *sql.DB, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, level, seed, step_ms, log_path, started_at,
		       COALESCE(ended_at,''), COALESCE(end_reason,''), last_tick
		FROM sessions
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var last int64
		if err := rows.Scan(&r.ID, &r.Level, &r.Seed, &r.StepMs, &r.LogPath, &r.StartedAt, &r.EndedAt, &r.EndReason, &last); err != nil {
			return nil, err
		}
		r.LastTick = uint64(last)
		out = append(out, r)
	}
	return out, rows.Err()
}

func QueryFired(ctx context.Context, db *sql.DB, session string, fromTick, toTick uint64) ([]FiredRow, error) {
	if session == "" {
		return nil, fmt.Errorf("missing session")
	}
	if toTick == 0 {
		toTick = 1<<62 - 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT tick, seq, rule FROM fired
		WHERE session=? AND tick>=? AND tick<=?
		ORDER BY tick, seq`, session, int64(fromTick), int64(toTick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FiredRow
	for rows.Next() {
		var r FiredRow
		var tick int64
		if err := rows.Scan(&tick, &r.Seq, &r.Rule); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryTickDigest returns the recorded digest for one tick, or "" if none.
func QueryTickDigest(ctx context.Context, db *sql.DB, session string, tick uint64) (string, error) {
	var d string
	err := db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE session=? AND tick=?`, session, int64(tick)).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

// QuerySnapshots lists a session's snapshots, newest first.
func QuerySnapshots(ctx context.Context, db *sql.DB, session string, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT session, tick, path, digest, actors, vars, level_state
		FROM snapshots
		WHERE session=?
		ORDER BY tick DESC
		LIMIT ?`, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var tick int64
		if err := rows.Scan(&r.Session, &tick, &r.Path, &r.Digest, &r.Actors, &r.Vars, &r.State); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CommandRow is one recorded command; Raw is its JSON as logged.
type CommandRow struct {
	Tick  uint64 `json:"tick"`
	Seq   int    `json:"seq"`
	Kind  string `json:"kind"`
	Actor uint64 `json:"actor,omitempty"`
	Raw   string `json:"raw"`
}

func QueryCommands(ctx context.Context, db *sql.DB, session string, fromTick, toTick uint64) ([]CommandRow, error) {
	if toTick == 0 {
		toTick = 1<<62 - 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT tick, seq, kind, actor, raw_json FROM commands
		WHERE session=? AND tick>=? AND tick<=?
		ORDER BY tick, seq`, session, int64(fromTick), int64(toTick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRow
	for rows.Next() {
		var r CommandRow
		var tick, actor int64
		if err := rows.Scan(&tick, &r.Seq, &r.Kind, &actor, &r.Raw); err != nil {
			return nil, err
		}
		r.Tick, r.Actor = uint64(tick), uint64(actor)
		out = append(out, r)
	}
	return out, rows.Err()
}
