package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"tactica.ai/internal/persistence/cmdlog"
	"tactica.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "clock":
			clockCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		}
	}
	dbCmd(append([]string{"sessions"}, os.Args[1:]...))
}

// snapshotCmd prints a snapshot file's header and a summary of its contents.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	full := fs.Bool("full", false, "print the whole snapshot as JSON")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin snapshot [-full] <path.snap.zst>")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if *full {
		printJSON(snap)
		return
	}
	fmt.Println(summarizeSnapshot(snap))
}

func summarizeSnapshot(snap snapshot.SnapshotV1) string {
	return fmt.Sprintf("snapshot v%d session=%s level=%s tick=%d digest=%s seed=%d draws=%d actors=%d vars=%d pending=%d state=%s reason=%q",
		snap.Header.Version, snap.Header.Session, snap.Header.Level, snap.Header.Tick, snap.Header.Digest,
		snap.Seed, snap.SeedDraws, len(snap.World.Actors), len(snap.Vars), len(snap.Pending), snap.LevelState, snap.EndReason)
}

// logCmd prints a command log's header and every tick that carried commands
// or fired rules.
func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	all := fs.Bool("all", false, "print idle ticks too")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin log [-all] <session.jsonl.zst>")
		os.Exit(2)
	}

	h, entries, err := cmdlog.ReadAll(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read log:", err)
		os.Exit(1)
	}
	for _, line := range describeLog(h, entries, *all) {
		fmt.Println(line)
	}
}

func describeLog(h cmdlog.Header, entries []cmdlog.Entry, all bool) []string {
	levelID := ""
	if h.Level != nil {
		levelID = h.Level.ID
	}
	out := []string{fmt.Sprintf("log v%d session=%s level=%s seed=%d step_ms=%d started=%s ticks=%d",
		h.Version, h.Session, levelID, h.Seed, h.StepMs, h.StartedAt, len(entries))}
	for _, e := range entries {
		if !all && len(e.Commands) == 0 && len(e.Fired) == 0 {
			continue
		}
		kinds := make([]string, len(e.Commands))
		for i, c := range e.Commands {
			kinds[i] = string(c.Kind)
		}
		out = append(out, fmt.Sprintf("tick=%d commands=[%s] fired=[%s] digest=%s",
			e.Tick, strings.Join(kinds, ","), strings.Join(e.Fired, ","), e.Digest))
	}
	return out
}
