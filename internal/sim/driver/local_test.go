package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tactica.ai/internal/persistence/cmdlog"
	"tactica.ai/internal/persistence/indexdb"
	"tactica.ai/internal/persistence/snapshot"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/simerr"
)

type fakeIndex struct {
	mu        sync.Mutex
	session   indexdb.SessionRow
	ticks     []uint64
	snapshots []string
	ended     string
}

func (f *fakeIndex) RecordSession(row indexdb.SessionRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = row
}

func (f *fakeIndex) WriteTick(_ string, e cmdlog.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, e.Tick)
	return nil
}

func (f *fakeIndex) RecordSnapshot(path string, _ snapshot.SnapshotV1) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, path)
}

func (f *fakeIndex) EndSession(_, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = reason
}

func TestLocalRecordsLogSnapshotsAndIndex(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndex{}
	q := command.NewQueue(8)
	l, err := NewLocal(LocalConfig{
		Session:       SessionConfig{ID: "s1", Level: parseLevel(t, walkLevel)},
		Queue:         q,
		LogDir:        filepath.Join(dir, "logs"),
		SnapshotDir:   filepath.Join(dir, "snaps"),
		SnapshotEvery: 2,
		Index:         idx,
	})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		if i == 1 {
			if err := q.Push(command.Command{Kind: command.KindStop, Actor: 1}); err != nil {
				t.Fatalf("push: %v", err)
			}
		}
		if err := l.Loop(); err != nil {
			t.Fatalf("loop %d: %v", i, err)
		}
	}
	if err := l.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	h, entries, err := cmdlog.ReadAll(l.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if h.Session != "s1" || h.Seed != 5 || h.Level == nil || h.Level.ID != "walk" || h.StepMs != 50 {
		t.Fatalf("header=%+v", h)
	}
	if len(entries) != 5 || len(entries[1].Commands) != 1 || entries[1].Commands[0].Kind != command.KindStop {
		t.Fatalf("entries=%+v", entries)
	}

	if idx.session.ID != "s1" || !filepath.IsAbs(idx.session.LogPath) {
		t.Fatalf("session row=%+v", idx.session)
	}
	if len(idx.ticks) != 5 || idx.ended != ReasonAborted {
		t.Fatalf("index ticks=%v ended=%q", idx.ticks, idx.ended)
	}
	if len(idx.snapshots) != 2 {
		t.Fatalf("snapshots=%v", idx.snapshots)
	}
	for _, p := range idx.snapshots {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("snapshot file: %v", err)
		}
	}
	snap, err := snapshot.ReadSnapshot(idx.snapshots[1])
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Header.Tick != 4 || snap.Header.Digest != entries[4].Digest || snap.LevelState != "running" {
		t.Fatalf("snapshot header=%+v state=%s", snap.Header, snap.LevelState)
	}
}

const timedLevel = `{
  "id": "timed",
  "triggers": [
    {"id": "clock", "event": "level_started", "fire_once": true, "actions": [
      {"type": "delay", "ticks": 5, "actions": [{"type": "victory"}]}
    ]}
  ]
}`

func TestRunStopsWhenLevelEnds(t *testing.T) {
	l, err := NewLocal(LocalConfig{Session: SessionConfig{Level: parseLevel(t, timedLevel), Step: time.Millisecond}})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Run(ctx, l, time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := l.Session()
	if reason, _ := s.Engine().EndReason(); reason != "victory" {
		t.Fatalf("reason=%q", reason)
	}
	// level_started fires on tick 0; the task is due five running ticks later
	if got := s.Latest().Tick; got != 5 {
		t.Fatalf("ended on tick %d", got)
	}
	if err := l.Loop(); !errors.Is(err, ErrFinished) {
		t.Fatalf("loop after end: %v", err)
	}
	if err := l.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestRunHonoursContext(t *testing.T) {
	l, err := NewLocal(LocalConfig{Session: SessionConfig{Level: parseLevel(t, walkLevel)}})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, l, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
}

func TestLocalInitMarksSpanOnLogFailure(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l, err := NewLocal(LocalConfig{
		Session: SessionConfig{ID: "s1", Level: parseLevel(t, walkLevel)},
		LogDir:  filepath.Join(blocker, "logs"),
	})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Init(); err == nil {
		t.Fatalf("Init should fail when the log dir cannot be created")
	}

	var found bool
	for _, sp := range sr.Ended() {
		if sp.Name() != "driver.local.init" {
			continue
		}
		found = true
		if sp.Status().Code != codes.Error {
			t.Fatalf("init span status=%v", sp.Status())
		}
	}
	if !found {
		t.Fatalf("no init span recorded")
	}
}

func TestReplayRequiresInit(t *testing.T) {
	r := NewReplay(ReplayConfig{Path: filepath.Join(t.TempDir(), "missing.jsonl.zst")})
	if err := r.Loop(); !errors.Is(err, simerr.ErrState) {
		t.Fatalf("loop before init: %v", err)
	}
	if err := r.Init(); !errors.Is(err, simerr.ErrIO) {
		t.Fatalf("init on missing log: %v", err)
	}
	if err := r.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
}
