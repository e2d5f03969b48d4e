package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"tactica.ai/internal/persistence/indexdb"
	"tactica.ai/internal/sim/tuning"
)

func dbCmd(args []string) {
	q := "sessions"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		q, args = strings.TrimSpace(args[0]), args[1:]
	}

	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "", "sqlite index path (default: tuning index_path)")
	session := fs.String("session", "", "session id (required except for sessions)")
	fromTick := fs.Uint64("from_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, 0: no limit)")
	tick := fs.Uint64("tick", 0, "tick for the digest query")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		tune, err := tuning.Load("")
		if err != nil {
			fmt.Fprintln(os.Stderr, "tuning:", err)
			os.Exit(1)
		}
		path = tune.IndexPath
	}
	db, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if q != "sessions" && strings.TrimSpace(*session) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out any
	switch q {
	case "sessions":
		out, err = indexdb.QuerySessions(ctx, db, *limit)
	case "fired":
		out, err = indexdb.QueryFired(ctx, db, *session, *fromTick, *toTick)
	case "commands":
		out, err = indexdb.QueryCommands(ctx, db, *session, *fromTick, *toTick)
	case "snapshots":
		out, err = indexdb.QuerySnapshots(ctx, db, *session, *limit)
	case "digest":
		var d string
		d, err = indexdb.QueryTickDigest(ctx, db, *session, *tick)
		out = map[string]any{"session": *session, "tick": *tick, "digest": d}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(sessions|fired|commands|snapshots|digest)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printJSON(out)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
