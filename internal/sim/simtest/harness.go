// Package simtest drives sessions through the exported driver API so tests can
// run Local and Replay side by side without touching package internals.
package simtest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/driver"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/notify"
)

// Harness runs a Local driver with its command log under a temp dir.
// - Push queues a live command for the next tick
// - Step/StepN run ticks and collect the committed states
// - Notes records every notification in publish order
type Harness struct {
	T     *testing.T
	Dir   string
	Local *driver.Local
	Notes *notify.Recorder

	States   []*driver.State
	finished bool
	closed   bool
}

type Options struct {
	Seed          int32
	SnapshotEvery uint64
	Index         driver.Index
}

func NewHarness(t *testing.T, lv *level.Level, m *level.Map, opts Options) *Harness {
	t.Helper()
	dir := t.TempDir()
	bus := notify.NewBus()
	rec := &notify.Recorder{}
	bus.SubscribeAll(rec.Observe)

	l, err := driver.NewLocal(driver.LocalConfig{
		Session: driver.SessionConfig{
			ID:    "local",
			Level: lv,
			Map:   m,
			Seed:  opts.Seed,
			Bus:   bus,
		},
		Queue:         command.NewQueue(0),
		LogDir:        filepath.Join(dir, "logs"),
		SnapshotDir:   filepath.Join(dir, "snapshots"),
		SnapshotEvery: opts.SnapshotEvery,
		Index:         opts.Index,
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
	h := &Harness{T: t, Dir: dir, Local: l, Notes: rec}
	t.Cleanup(func() { h.Close() })
	return h
}

func (h *Harness) Push(c command.Command) {
	h.T.Helper()
	if err := h.Local.Queue().Push(c); err != nil {
		h.T.Fatalf("push %s: %v", c.Kind, err)
	}
}

// Step runs one tick. It returns false once the level has ended and no
// further ticks run.
func (h *Harness) Step() bool {
	h.T.Helper()
	if h.finished {
		return false
	}
	err := h.Local.Loop()
	if errors.Is(err, driver.ErrFinished) {
		h.finished = true
		if st := h.Local.Session().Latest(); len(h.States) == 0 || h.States[len(h.States)-1] != st {
			h.States = append(h.States, st)
		}
		return false
	}
	if err != nil {
		h.T.Fatalf("loop: %v", err)
	}
	h.States = append(h.States, h.Local.Session().Latest())
	return true
}

// StepN runs up to n ticks and reports how many ran before the level ended.
func (h *Harness) StepN(n int) int {
	h.T.Helper()
	for i := 0; i < n; i++ {
		if !h.Step() {
			return i
		}
	}
	return n
}

// RunScript runs until the level ends or maxTicks, pushing script[tick]
// before the tick it is keyed on.
func (h *Harness) RunScript(script map[uint64][]command.Command, maxTicks int) {
	h.T.Helper()
	for i := 0; i < maxTicks; i++ {
		for _, c := range script[h.Local.Session().Tick()] {
			h.Push(c)
		}
		if !h.Step() {
			return
		}
	}
}

func (h *Harness) Last() *driver.State {
	if len(h.States) == 0 {
		return h.Local.Session().Latest()
	}
	return h.States[len(h.States)-1]
}

// Close ends the session and returns the command log path.
func (h *Harness) Close() string {
	h.T.Helper()
	if !h.closed {
		h.closed = true
		if err := h.Local.End(); err != nil {
			h.T.Fatalf("End: %v", err)
		}
	}
	return h.Local.LogPath()
}

// ReplayResult is what a full replay of a log produced.
type ReplayResult struct {
	Replay *driver.Replay
	States []*driver.State
	Notes  []notify.Notification
	Err    error
}

// ReplayLog replays path to its end and ends the session like Harness.Close.
// A mismatch is returned in Err rather than failing the test.
func ReplayLog(t *testing.T, path string) ReplayResult {
	t.Helper()
	bus := notify.NewBus()
	rec := &notify.Recorder{}
	bus.SubscribeAll(rec.Observe)

	r := driver.NewReplay(driver.ReplayConfig{Path: path, Bus: bus})
	if err := r.Init(); err != nil {
		t.Fatalf("replay init: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("replay start: %v", err)
	}
	res := ReplayResult{Replay: r}
	for {
		err := r.Loop()
		if errors.Is(err, driver.ErrFinished) {
			break
		}
		if err != nil {
			res.Err = err
			break
		}
		res.States = append(res.States, r.Session().Latest())
	}
	if err := r.End(); err != nil {
		t.Fatalf("replay end: %v", err)
	}
	res.Notes = rec.All()
	return res
}

// RunReplay is ReplayLog through driver.RunToEnd, for callers that only need
// the verdict.
func RunReplay(ctx context.Context, path string) (*driver.Replay, error) {
	r := driver.NewReplay(driver.ReplayConfig{Path: path})
	if err := r.Init(); err != nil {
		return r, err
	}
	defer r.End()
	if err := r.Start(); err != nil {
		return r, err
	}
	return r, driver.RunToEnd(ctx, r)
}
