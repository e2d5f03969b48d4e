// Package clock converts variable wall-clock deltas into whole fixed ticks.
package clock

import (
	"sync/atomic"
	"time"
)

// MaxDelta bounds a single Advance so a stalled host cannot trigger a long
// catch-up burst.
const MaxDelta = 100 * time.Millisecond

type Clock struct {
	step        time.Duration
	maxDelta    time.Duration
	accumulator time.Duration
	ticks       uint64

	// paused may be flipped from outside the goroutine that calls Advance.
	paused atomic.Bool
}

// New returns a clock emitting one tick per step. A non-positive step falls
// back to 50ms (20Hz).
func New(step time.Duration) *Clock {
	if step <= 0 {
		step = 50 * time.Millisecond
	}
	return &Clock{step: step, maxDelta: MaxDelta}
}

func (c *Clock) Step() time.Duration { return c.step }
func (c *Clock) Accumulator() time.Duration { return c.accumulator }
func (c *Clock) TickCount() uint64 { return c.ticks }
func (c *Clock) Paused() bool { return c.paused.Load() }

// SetMaxDelta changes the Advance clamp. It can only tighten MaxDelta;
// non-positive or larger values use MaxDelta.
func (c *Clock) SetMaxDelta(d time.Duration) {
	if d <= 0 || d > MaxDelta {
		d = MaxDelta
	}
	c.maxDelta = d
}

// Advance accumulates raw (clamped to [0, max delta]) and returns how many
// fixed ticks are now due. After it returns the accumulator is below one step.
// While paused the delta is discarded and zero is returned.
func (c *Clock) Advance(raw time.Duration) int {
	if c.paused.Load() {
		return 0
	}
	if raw < 0 {
		raw = 0
	}
	if raw > c.maxDelta {
		raw = c.maxDelta
	}
	c.accumulator += raw
	n := 0
	for c.accumulator >= c.step {
		c.accumulator -= c.step
		c.ticks++
		n++
	}
	return n
}

// Pause freezes tick emission. The accumulator is kept as-is so Resume
// continues from the same sub-step phase. Safe to call from any goroutine.
func (c *Clock) Pause() { c.paused.Store(true) }

func (c *Clock) Resume() { c.paused.Store(false) }
