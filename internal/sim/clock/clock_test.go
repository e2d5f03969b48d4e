package clock

import (
	"testing"
	"time"
)

func TestAdvanceEmitsWholeSteps(t *testing.T) {
	c := New(50 * time.Millisecond)
	if n := c.Advance(40 * time.Millisecond); n != 0 {
		t.Fatalf("40ms: got %d ticks", n)
	}
	if n := c.Advance(70 * time.Millisecond); n != 2 {
		t.Fatalf("110ms total: got %d ticks want 2", n)
	}
	if got := c.Accumulator(); got != 10*time.Millisecond {
		t.Fatalf("accumulator=%v want 10ms", got)
	}
	if c.TickCount() != 2 {
		t.Fatalf("tick count=%d", c.TickCount())
	}
}

func TestAdvanceClampsLargeDelta(t *testing.T) {
	c := New(10 * time.Millisecond)
	if n := c.Advance(5 * time.Second); n != 10 {
		t.Fatalf("clamped advance: got %d ticks want 10", n)
	}
	if n := c.Advance(-time.Second); n != 0 {
		t.Fatalf("negative delta produced %d ticks", n)
	}
}

func TestFixedStepInvariant(t *testing.T) {
	c := New(16 * time.Millisecond)
	deltas := []time.Duration{3, 17, 99, 100, 1, 33, 64, 0, 50, 7}
	var total time.Duration
	emitted := 0
	for i := 0; i < 200; i++ {
		d := deltas[i%len(deltas)] * time.Millisecond
		total += d
		emitted += c.Advance(d)
		if c.Accumulator() >= c.Step() {
			t.Fatalf("accumulator %v not drained below step", c.Accumulator())
		}
	}
	want := int(total / c.Step())
	if emitted != want {
		t.Fatalf("emitted=%d want floor(total/step)=%d", emitted, want)
	}
	if uint64(emitted) != c.TickCount() {
		t.Fatalf("tick count %d != emitted %d", c.TickCount(), emitted)
	}
}

func TestPauseDiscardsTime(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.Advance(30 * time.Millisecond)
	c.Pause()
	for i := 0; i < 50; i++ {
		if n := c.Advance(100 * time.Millisecond); n != 0 {
			t.Fatalf("paused clock emitted %d ticks", n)
		}
	}
	c.Resume()
	if got := c.Accumulator(); got != 30*time.Millisecond {
		t.Fatalf("accumulator changed during pause: %v", got)
	}
	if n := c.Advance(20 * time.Millisecond); n != 1 {
		t.Fatalf("after resume: %d ticks want 1", n)
	}
}

func TestMaxDeltaCannotBeRaised(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.SetMaxDelta(5 * time.Second)
	if n := c.Advance(5 * time.Second); n != 10 {
		t.Fatalf("raised clamp: got %d ticks want 10", n)
	}
	c.SetMaxDelta(30 * time.Millisecond)
	if n := c.Advance(time.Second); n != 3 {
		t.Fatalf("tightened clamp: got %d ticks want 3", n)
	}
}
