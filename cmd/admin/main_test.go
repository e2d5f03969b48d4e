package main

import (
	"path/filepath"
	"strings"
	"testing"

	"tactica.ai/internal/persistence/cmdlog"
	"tactica.ai/internal/persistence/snapshot"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/simtest"
)

func TestDescribeLogAndSnapshot(t *testing.T) {
	lv, m := simtest.Skirmish(t)
	h := simtest.NewHarness(t, lv, m, simtest.Options{SnapshotEvery: 10})
	h.RunScript(map[uint64][]command.Command{
		4: {{Kind: command.KindSignal, Name: "bonus"}},
	}, 12)
	path := h.Close()

	hdr, entries, err := cmdlog.ReadAll(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := describeLog(hdr, entries, false)
	if !strings.HasPrefix(lines[0], "log v1 session=local level=skirmish") || !strings.Contains(lines[0], "ticks=12") {
		t.Fatalf("header line=%q", lines[0])
	}
	var sawSignal bool
	for _, l := range lines[1:] {
		if strings.HasPrefix(l, "tick=4 commands=[signal]") && strings.Contains(l, "bonus") {
			sawSignal = true
		}
	}
	if !sawSignal {
		t.Fatalf("signal tick missing:\n%s", strings.Join(lines, "\n"))
	}
	if all := describeLog(hdr, entries, true); len(all) != 13 {
		t.Fatalf("all ticks: %d lines", len(all))
	}

	snap, err := snapshot.ReadSnapshot(snapshot.Path(filepath.Join(h.Dir, "snapshots", "local"), 10))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	got := summarizeSnapshot(snap)
	if !strings.Contains(got, "session=local level=skirmish tick=10") || !strings.Contains(got, "state=running") {
		t.Fatalf("summary=%q", got)
	}
}
