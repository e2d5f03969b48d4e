package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"tactica.ai/internal/persistence/snapshot"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/simerr"
	"tactica.ai/internal/sim/simtest"
)

func recordSkirmish(t *testing.T) (*simtest.Harness, string) {
	t.Helper()
	lv, m := simtest.Skirmish(t)
	h := simtest.NewHarness(t, lv, m, simtest.Options{SnapshotEvery: 25})
	h.RunScript(map[uint64][]command.Command{
		5: {{Kind: command.KindSignal, Name: "bonus"}},
	}, 60)
	return h, h.Close()
}

func TestReplayVerifiesLogAndSnapshot(t *testing.T) {
	h, logPath := recordSkirmish(t)
	snapPath := snapshot.Path(filepath.Join(h.Dir, "snapshots", "local"), 50)

	var out bytes.Buffer
	res, err := replay(replayOptions{LogPath: logPath, SnapPath: snapPath, Out: &out})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Session != "local" || res.Level != "skirmish" || res.Verified != uint64(len(h.States)) {
		t.Fatalf("result=%+v states=%d", res, len(h.States))
	}
	if !strings.Contains(out.String(), "trigger_fired rule=intro") {
		t.Fatalf("notifications not printed:\n%s", out.String())
	}
}

func TestReplayStopsAtToTick(t *testing.T) {
	_, logPath := recordSkirmish(t)
	res, err := replay(replayOptions{LogPath: logPath, ToTick: 9})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Ticks != 10 || res.Verified != 10 {
		t.Fatalf("result=%+v", res)
	}
}

func TestReplayRejectsForeignSnapshot(t *testing.T) {
	h, logPath := recordSkirmish(t)
	path := snapshot.Path(filepath.Join(h.Dir, "snapshots", "local"), 25)
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	snap.Header.Digest = strings.Repeat("0", 64)
	forged := filepath.Join(t.TempDir(), "25.snap.zst")
	if err := snapshot.WriteSnapshot(forged, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	_, err = replay(replayOptions{LogPath: logPath, SnapPath: forged})
	var se *simerr.Error
	if !errors.As(err, &se) || se.Code != simerr.CodeReplayMismatch || se.Metadata["tick"] != "25" {
		t.Fatalf("want snapshot mismatch, got %v", err)
	}

	snap.Header.Tick = 10000
	if err := snapshot.WriteSnapshot(forged, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if _, err := replay(replayOptions{LogPath: logPath, SnapPath: forged}); err == nil || !strings.Contains(err.Error(), "never reached") {
		t.Fatalf("want unreached snapshot error, got %v", err)
	}
}
