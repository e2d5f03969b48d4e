package driver

import (
	"context"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tactica.ai/internal/persistence/cmdlog"
	"tactica.ai/internal/sim/bt"
	"tactica.ai/internal/sim/clock"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/simerr"
)

type ReplayConfig struct {
	Path string
	// SkipVerify replays without comparing digests and fired rules.
	SkipVerify bool
	Behaviors  *bt.Registry
	Bus        *notify.Bus
	Logger     *log.Logger
}

// Replay re-runs a recorded session from its command log. Each tick gets the
// exact commands recorded for it; any divergence of digest or fired rules is
// reported as a replay mismatch and stops the replay. Nothing is corrected.
type Replay struct {
	cfg     ReplayConfig
	reader  *cmdlog.Reader
	header  cmdlog.Header
	session *Session
	logger  *log.Logger

	next     cmdlog.Entry
	haveNext bool
	eof      bool
	verified uint64
	err      error
}

func NewReplay(cfg ReplayConfig) *Replay {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Replay{cfg: cfg, logger: logger}
}

func (r *Replay) Session() *Session { return r.session }
func (r *Replay) Header() cmdlog.Header { return r.header }

// Verified counts ticks whose digest matched the log.
func (r *Replay) Verified() uint64 { return r.verified }

func (r *Replay) Clock() *clock.Clock {
	if r.session == nil {
		return clock.New(0)
	}
	return r.session.Clock()
}

// Init opens the log and rebuilds the session it describes.
func (r *Replay) Init() error {
	_, span := tracer.Start(context.Background(), "driver.replay.init")
	defer span.End()
	span.SetAttributes(attribute.String("path", r.cfg.Path))

	rd, err := cmdlog.Open(r.cfg.Path)
	if err != nil {
		recordErr(span, err)
		return err
	}
	h := rd.Header()
	if h.Level == nil {
		_ = rd.Close()
		return simerr.Configf("replay %s: log carries no level", r.cfg.Path)
	}
	s, err := NewSession(SessionConfig{
		ID:        h.Session,
		Level:     h.Level,
		Map:       h.Map,
		Seed:      h.Seed,
		Step:      time.Duration(h.StepMs) * time.Millisecond,
		Behaviors: r.cfg.Behaviors,
		Bus:       r.cfg.Bus,
	})
	if err == nil {
		err = s.Init()
	}
	if err != nil {
		_ = rd.Close()
		recordErr(span, err)
		return err
	}
	r.reader, r.header, r.session = rd, h, s
	span.SetAttributes(attribute.String("session", h.Session), attribute.String("level", h.Level.ID))
	r.logger.Printf("replay %s: level %s seed=%d", h.Session, h.Level.ID, h.Seed)
	return nil
}

func (r *Replay) Start() error {
	if r.session == nil {
		return simerr.New(simerr.CodeState, "replay not initialized")
	}
	return r.session.Start()
}

// Loop replays one tick. Ticks absent from the log run with no commands and
// are not verified. After the last entry it returns ErrFinished.
func (r *Replay) Loop() error {
	if r.err != nil {
		return r.err
	}
	if r.session == nil {
		return simerr.New(simerr.CodeState, "replay not initialized")
	}
	if !r.haveNext && !r.eof {
		e, err := r.reader.Next()
		switch {
		case errors.Is(err, io.EOF):
			r.eof = true
		case err != nil:
			r.err = err
			return err
		default:
			r.next, r.haveNext = e, true
		}
	}
	if !r.haveNext {
		return ErrFinished
	}

	tick := r.session.Tick()
	var cmds []command.Command
	var want *cmdlog.Entry
	if r.next.Tick == tick {
		cmds = r.next.Commands
		e := r.next
		want = &e
		r.haveNext = false
	}

	got, err := r.session.Step(cmds)
	if err != nil {
		r.err = err
		return err
	}
	if want != nil && !r.cfg.SkipVerify {
		if err := compare(*want, got); err != nil {
			r.err = err
			r.logger.Printf("replay %s: %v", r.header.Session, err)
			return err
		}
		r.verified++
	}
	return nil
}

func compare(want, got cmdlog.Entry) error {
	tick := strconv.FormatUint(want.Tick, 10)
	if want.Digest != "" && want.Digest != got.Digest {
		return simerr.WithMetadata(simerr.CodeReplayMismatch, "digest mismatch at tick "+tick, map[string]string{
			"tick": tick,
			"want": want.Digest,
			"got":  got.Digest,
		})
	}
	if !sameRules(want.Fired, got.Fired) {
		return simerr.WithMetadata(simerr.CodeReplayMismatch, "fired rules mismatch at tick "+tick, map[string]string{
			"tick": tick,
			"want": strings.Join(want.Fired, ","),
			"got":  strings.Join(got.Fired, ","),
		})
	}
	return nil
}

func sameRules(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// End ends the replayed level the way Local.End does and closes the log.
func (r *Replay) End() error {
	if r.session == nil {
		return nil
	}
	_, span := tracer.Start(context.Background(), "driver.replay.end")
	defer span.End()
	span.SetAttributes(attribute.Int64("verified", int64(r.verified)), attribute.Int64("ticks", int64(r.session.Tick())))
	if r.err != nil {
		recordErr(span, r.err)
	}
	_ = r.session.End(ReasonAborted)
	if r.reader != nil {
		err := r.reader.Close()
		r.reader = nil
		return err
	}
	return nil
}
