package driver

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tactica.ai/internal/persistence/cmdlog"
	"tactica.ai/internal/persistence/indexdb"
	"tactica.ai/internal/persistence/snapshot"
	"tactica.ai/internal/sim/clock"
	"tactica.ai/internal/sim/command"
)

// Index is the optional read-model a Local driver mirrors ticks into.
// *indexdb.SQLiteIndex implements it.
type Index interface {
	RecordSession(row indexdb.SessionRow)
	WriteTick(session string, e cmdlog.Entry) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	EndSession(id, reason string)
}

type LocalConfig struct {
	Session SessionConfig
	Queue   *command.Queue

	// LogDir receives <session>.jsonl.zst; empty disables the command log.
	LogDir string
	// SnapshotDir receives periodic snapshots every SnapshotEvery ticks.
	SnapshotDir   string
	SnapshotEvery uint64

	Index  Index
	Logger *log.Logger
}

// Local runs a session from live commands and records every tick.
type Local struct {
	cfg     LocalConfig
	session *Session
	logw    *cmdlog.Writer
	logPath string
	logger  *log.Logger
}

func NewLocal(cfg LocalConfig) (*Local, error) {
	s, err := NewSession(cfg.Session)
	if err != nil {
		return nil, err
	}
	if cfg.Queue == nil {
		cfg.Queue = command.NewQueue(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Local{cfg: cfg, session: s, logger: logger}, nil
}

func (l *Local) Session() *Session { return l.session }
func (l *Local) Clock() *clock.Clock { return l.session.Clock() }
func (l *Local) Queue() *command.Queue { return l.cfg.Queue }
func (l *Local) LogPath() string { return l.logPath }

func (l *Local) Init() error {
	_, span := tracer.Start(context.Background(), "driver.local.init")
	defer span.End()
	s := l.session
	span.SetAttributes(attribute.String("session", s.ID()), attribute.String("level", s.Level().ID))

	if err := s.Init(); err != nil {
		recordErr(span, err)
		return err
	}
	if l.cfg.LogDir != "" {
		l.logPath = cmdlog.Path(l.cfg.LogDir, s.ID())
		w, err := cmdlog.Create(l.logPath, cmdlog.Header{
			Session:   s.ID(),
			Seed:      s.Seed(),
			StepMs:    int(s.Clock().Step() / time.Millisecond),
			StartedAt: time.Now().UTC().Format(time.RFC3339),
			Level:     s.Level(),
			Map:       s.Map(),
		})
		if err != nil {
			recordErr(span, err)
			return err
		}
		l.logw = w
	}
	if l.cfg.Index != nil {
		abs := l.logPath
		if abs != "" {
			if p, err := filepath.Abs(abs); err == nil {
				abs = p
			}
		}
		l.cfg.Index.RecordSession(indexdb.SessionRow{
			ID:      s.ID(),
			Level:   s.Level().ID,
			Seed:    s.Seed(),
			StepMs:  int(s.Clock().Step() / time.Millisecond),
			LogPath: abs,
		})
	}
	l.logger.Printf("session %s: level %s loaded seed=%d log=%s", s.ID(), s.Level().ID, s.Seed(), l.logPath)
	return nil
}

func (l *Local) Start() error { return l.session.Start() }

// Loop drains the live queue into one tick and records it. Once the level has
// ended it returns ErrFinished.
func (l *Local) Loop() error {
	if l.session.Ended() {
		return ErrFinished
	}
	entry, err := l.session.Step(l.cfg.Queue.Drain())
	if err != nil {
		l.logger.Printf("session %s: step failed: %v", l.session.ID(), err)
		return err
	}
	if l.logw != nil {
		if err := l.logw.WriteTick(entry); err != nil {
			return err
		}
	}
	if l.cfg.Index != nil {
		_ = l.cfg.Index.WriteTick(l.session.ID(), entry)
	}
	if l.cfg.SnapshotEvery > 0 && l.cfg.SnapshotDir != "" && entry.Tick > 0 && entry.Tick%l.cfg.SnapshotEvery == 0 {
		l.writeSnapshot(entry)
	}
	if l.session.Ended() {
		reason, _ := l.session.Engine().EndReason()
		l.logger.Printf("session %s: level ended at tick %d reason=%s", l.session.ID(), entry.Tick, reason)
		return ErrFinished
	}
	return nil
}

func (l *Local) writeSnapshot(entry cmdlog.Entry) {
	snap := l.session.Snapshot(entry)
	path := snapshot.Path(filepath.Join(l.cfg.SnapshotDir, l.session.ID()), entry.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		// snapshots are advisory; the log stays authoritative
		l.logger.Printf("session %s: snapshot tick %d: %v", l.session.ID(), entry.Tick, err)
		return
	}
	if l.cfg.Index != nil {
		l.cfg.Index.RecordSnapshot(path, snap)
	}
}

// End finishes the level if still open and closes the log.
func (l *Local) End() error {
	_, span := tracer.Start(context.Background(), "driver.local.end")
	defer span.End()
	s := l.session
	if err := s.End(ReasonAborted); err != nil {
		span.RecordError(err)
	}
	reason, _ := s.Engine().EndReason()
	span.SetAttributes(attribute.String("session", s.ID()), attribute.Int64("ticks", int64(s.Tick())), attribute.String("reason", reason))
	if l.cfg.Index != nil {
		l.cfg.Index.EndSession(s.ID(), reason)
	}
	if l.logw != nil {
		if err := l.logw.Close(); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}
