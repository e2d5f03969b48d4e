// Package driver runs level sessions. A Session owns every piece of mutable
// simulation state and advances it one fixed tick at a time; Local and Replay
// feed it commands from live input or from a recorded log.
package driver

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tactica.ai/internal/persistence/cmdlog"
	"tactica.ai/internal/persistence/snapshot"
	"tactica.ai/internal/sim/bt"
	"tactica.ai/internal/sim/clock"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/simerr"
	"tactica.ai/internal/sim/trigger"
	"tactica.ai/internal/sim/world"
)

// ReasonAborted ends a level that was stopped from outside its own rules.
const ReasonAborted = "aborted"

type SessionConfig struct {
	// ID names the session in logs and the index. Empty generates a uuid.
	ID    string
	Level *level.Level
	Map   *level.Map
	// Seed overrides the level seed when non-zero.
	Seed     int32
	Step     time.Duration
	MaxDelta time.Duration
	// Behaviors builds behavior tree nodes; nil uses bt.DefaultRegistry.
	Behaviors *bt.Registry
	// Bus receives notifications; nil creates a private bus.
	Bus *notify.Bus
}

// State is the committed view of a session after a tick. It is immutable once
// published and safe to read from any goroutine.
type State struct {
	Session    string                   `json:"session"`
	Level      string                   `json:"level"`
	Tick       uint64                   `json:"tick"`
	LevelState string                   `json:"level_state"`
	Digest     string                   `json:"digest"`
	Actors     []world.Actor            `json:"actors"`
	Vars       map[string]trigger.Value `json:"vars"`
	Fired      []string                 `json:"fired,omitempty"`
	EndReason  string                   `json:"end_reason,omitempty"`
}

type actorTree struct {
	behavior string
	loop     bool
	tree     *bt.Tree
}

// Session is one level run. Step must be called from a single goroutine;
// Latest may be called from any.
type Session struct {
	id   string
	lv   *level.Level
	lmap *level.Map
	seed int32

	store  *world.Store
	clock  *clock.Clock
	rand   *fixedmath.Rand
	bus    *notify.Bus
	engine *trigger.Engine

	btReg *bt.Registry
	trees map[world.ActorID]*actorTree

	tick        uint64
	initialized bool
	failed      error

	latest atomic.Pointer[State]
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Level == nil {
		return nil, simerr.Configf("session: no level")
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.Level.Seed
	}
	bus := cfg.Bus
	if bus == nil {
		bus = notify.NewBus()
	}
	reg := cfg.Behaviors
	if reg == nil {
		reg = bt.DefaultRegistry()
	}
	clk := clock.New(cfg.Step)
	clk.SetMaxDelta(cfg.MaxDelta)

	s := &Session{
		id:    id,
		lv:    cfg.Level,
		lmap:  cfg.Map,
		seed:  seed,
		store: world.NewStore(),
		clock: clk,
		rand:  fixedmath.NewRand(seed),
		bus:   bus,
		btReg: reg,
		trees: map[world.ActorID]*actorTree{},
	}
	if cfg.Map != nil {
		s.store.SetBounds(cfg.Map.Bounds())
	}
	s.engine = trigger.NewEngine(trigger.Env{
		World:   s.store,
		Spatial: s.store,
		Events:  s.store,
		Bus:     bus,
		Rand:    s.rand,
	})
	return s, nil
}

func (s *Session) ID() string { return s.id }
func (s *Session) Seed() int32 { return s.seed }
func (s *Session) Tick() uint64 { return s.tick }
func (s *Session) Clock() *clock.Clock { return s.clock }
func (s *Session) Bus() *notify.Bus { return s.bus }
func (s *Session) World() *world.Store { return s.store }
func (s *Session) Engine() *trigger.Engine { return s.engine }
func (s *Session) Rand() *fixedmath.Rand { return s.rand }
func (s *Session) Level() *level.Level { return s.lv }
func (s *Session) Map() *level.Map { return s.lmap }

// Failed returns the error that stopped the session, if any.
func (s *Session) Failed() error { return s.failed }

// Latest is the state committed by the last Step, or nil before the first.
func (s *Session) Latest() *State { return s.latest.Load() }

// Ended reports whether the level has reached its terminal state.
func (s *Session) Ended() bool { return s.engine.State() == trigger.StateEnded }

// Init loads the level, checks every behavior tree definition and spawns the
// starting units. Their unit_spawned events reach rules on tick 0.
func (s *Session) Init() error {
	if s.initialized {
		return simerr.New(simerr.CodeState, "session already initialized")
	}
	for _, name := range world.SortedKeys(s.lv.Behaviors) {
		if _, err := bt.Build(s.btReg, s.lv.Behaviors[name].Root); err != nil {
			return fmt.Errorf("level %s: behavior %s: %w", s.lv.ID, name, err)
		}
	}
	if err := s.engine.LoadLevel(s.lv, s.lmap); err != nil {
		return err
	}
	for _, u := range s.lv.Units {
		s.store.Spawn(u.Spec())
	}
	s.initialized = true
	s.publish(nil, "")
	return nil
}

func (s *Session) Start() error {
	if !s.initialized {
		return simerr.New(simerr.CodeState, "session not initialized")
	}
	return s.engine.StartLevel()
}

// End finishes the level with reason if its rules have not already done so.
func (s *Session) End(reason string) error {
	switch s.engine.State() {
	case trigger.StateLoaded, trigger.StateRunning, trigger.StatePaused:
		if reason == "" {
			reason = ReasonAborted
		}
		return s.engine.EndLevel(reason, nil)
	}
	return nil
}

// Step runs exactly one tick: apply commands, tick behavior trees in
// ascending actor id, integrate movement, evaluate triggers, digest. A fixed
// math domain violation fails the session; every later Step returns the same
// error.
func (s *Session) Step(cmds []command.Command) (entry cmdlog.Entry, err error) {
	if s.failed != nil {
		return entry, s.failed
	}
	if !s.initialized {
		return entry, simerr.New(simerr.CodeState, "session not initialized")
	}
	tick := s.tick
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if !ok || !errors.Is(e, simerr.ErrDomain) {
			panic(r)
		}
		s.failed = fmt.Errorf("tick %d: %w", tick, e)
		err = s.failed
	}()

	s.store.SetTick(tick)
	for _, c := range cmds {
		s.apply(c)
	}
	if s.engine.State() == trigger.StateRunning {
		s.tickTrees(tick)
		s.store.Integrate()
	}

	events := s.store.DrainEvents()
	s.publishWorld(tick, events)

	fired, err := s.engine.Tick(tick, events)
	if err != nil {
		s.failed = fmt.Errorf("tick %d: %w", tick, err)
		return entry, s.failed
	}
	names := make([]string, len(fired))
	for i, f := range fired {
		names[i] = f.Rule
	}

	entry = cmdlog.Entry{
		Tick:     tick,
		Commands: cmds,
		Fired:    names,
		Digest:   s.digest(tick),
	}
	s.publish(names, entry.Digest)
	s.tick++
	return entry, nil
}

func (s *Session) apply(c command.Command) {
	if !c.Kind.IsControl() {
		command.Apply(s.store, s.store, c)
		return
	}
	// out-of-state control commands are ignored the same way on replay
	switch c.Kind {
	case command.KindPause:
		_ = s.engine.PauseLevel()
	case command.KindResume:
		_ = s.engine.ResumeLevel()
	case command.KindEnd:
		_ = s.End(c.Name)
	}
}

func (s *Session) tickTrees(tick uint64) {
	ctx := &bt.Context{
		Tick:    tick,
		World:   s.store,
		Spatial: s.store,
		Rand:    s.rand,
		Vars:    s.engine.Vars(),
	}
	for _, a := range s.store.All() {
		if !a.Alive() || a.Behavior == "" {
			continue
		}
		at := s.trees[a.ID]
		if at == nil || at.behavior != a.Behavior {
			def, ok := s.lv.Behaviors[a.Behavior]
			if !ok {
				continue
			}
			tree, err := bt.Build(s.btReg, def.Root)
			if err != nil {
				// checked in Init
				continue
			}
			if at != nil {
				at.tree.Stop()
			}
			at = &actorTree{behavior: a.Behavior, loop: def.Loop, tree: tree}
			s.trees[a.ID] = at
			tree.Start(a)
		} else if at.tree.IsOver() {
			if !at.loop {
				continue
			}
			at.tree.Start(a)
		}
		at.tree.Update(ctx)
	}

	for id, at := range s.trees {
		if a := s.store.Get(id); a == nil || !a.Alive() || a.Behavior == "" {
			at.tree.Stop()
			delete(s.trees, id)
		}
	}
}

func (s *Session) publishWorld(tick uint64, events []world.Event) {
	for _, ev := range events {
		var kind notify.Kind
		switch ev.Type {
		case world.EventUnitSpawned:
			kind = notify.KindUnitSpawned
		case world.EventUnitRemoved:
			kind = notify.KindUnitRemoved
		default:
			continue
		}
		s.bus.Publish(notify.Notification{
			Kind:  kind,
			Tick:  tick,
			Level: s.lv.ID,
			Unit:  uint64(ev.Unit),
			Name:  ev.Tag,
		})
	}
}

func (s *Session) digest(tick uint64) string {
	d := world.NewDigest(tick)
	s.store.WriteDigest(d)
	d.I64(int64(s.rand.Seed()))
	d.U64(s.rand.Draws())
	s.engine.WriteDigest(d)
	return d.Sum()
}

func (s *Session) publish(fired []string, digest string) {
	st := &State{
		Session:    s.id,
		Level:      s.lv.ID,
		Tick:       s.tick,
		LevelState: s.engine.State().String(),
		Digest:     digest,
		Actors:     s.store.Export().Actors,
		Vars:       s.engine.Vars().Snapshot(),
		Fired:      fired,
	}
	st.EndReason, _ = s.engine.EndReason()
	s.latest.Store(st)
}

// Snapshot captures the session right after the tick recorded in last. It
// must be called from the goroutine that calls Step.
func (s *Session) Snapshot(last cmdlog.Entry) snapshot.SnapshotV1 {
	reason, _ := s.engine.EndReason()
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			Session: s.id,
			Level:   s.lv.ID,
			Tick:    last.Tick,
			Digest:  last.Digest,
		},
		Seed:         s.rand.Seed(),
		SeedDraws:    s.rand.Draws(),
		World:        s.store.Export(),
		LevelState:   s.engine.State().String(),
		RunningTicks: s.engine.RunningTicks(),
		Vars:         s.engine.Vars().Snapshot(),
		FiredOnce:    s.engine.FiredOnce(),
		Pending:      s.engine.Scheduler().Pending(),
		Held:         s.engine.Held(),
		EndReason:    reason,
	}
}
