package driver

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tactica.ai/internal/sim/clock"
)

var tracer = otel.Tracer("tactica.ai/internal/sim/driver")

// ErrFinished is returned by Loop once the session has nothing left to run:
// the level ended (Local) or the log is exhausted (Replay).
var ErrFinished = errors.New("driver: session finished")

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Driver is a session lifecycle. Loop runs exactly one fixed tick.
type Driver interface {
	Init() error
	Start() error
	Loop() error
	End() error
}

// Clocked drivers expose the clock Run feeds wall time into.
type Clocked interface {
	Driver
	Clock() *clock.Clock
}

// Run drives d from wall time until ctx is done or d finishes. Every interval
// the elapsed time is fed into the clock and Loop runs once per due tick. A
// non-positive interval uses the clock step.
func Run(ctx context.Context, d Clocked, interval time.Duration) error {
	clk := d.Clock()
	if interval <= 0 {
		interval = clk.Step()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			n := clk.Advance(now.Sub(last))
			last = now
			for i := 0; i < n; i++ {
				if err := d.Loop(); err != nil {
					if errors.Is(err, ErrFinished) {
						return nil
					}
					return err
				}
			}
		}
	}
}

// RunToEnd loops d as fast as possible, ignoring the clock. Used for replay
// verification and tests.
func RunToEnd(ctx context.Context, d Driver) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Loop(); err != nil {
			if errors.Is(err, ErrFinished) {
				return nil
			}
			return err
		}
	}
}
