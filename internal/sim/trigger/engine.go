// Package trigger runs a level session: the level state machine, declarative
// trigger rules, the variable store and the tick scheduler.
package trigger

import (
	"fmt"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/script"
	"tactica.ai/internal/sim/simerr"
	"tactica.ai/internal/sim/world"
)

type State uint8

const (
	StateUnloaded State = iota
	StateLoaded
	StateRunning
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	}
	return "unloaded"
}

// Env is what the engine reads and mutates. Events receives events raised by
// actions; they reach rules on the following tick.
type Env struct {
	World   world.Registry
	Spatial world.Spatial
	Events  world.Emitter
	Bus     *notify.Bus
	Rand    *fixedmath.Rand
}

// Fired records one rule firing.
type Fired struct {
	Tick  uint64          `json:"tick"`
	Rule  string          `json:"rule"`
	Event world.EventType `json:"event"`
	Unit  world.ActorID   `json:"unit,omitempty"`
}

// Context is passed to conditions, actions and scheduled tasks.
type Context struct {
	Tick  uint64
	Rule  string
	Event world.Event

	e *Engine
}

func (c *Context) Engine() *Engine { return c.e }

type rule struct {
	id         string
	event      world.EventType
	name       string
	fireOnce   bool
	fired      bool
	conditions []Condition
	actions    []Action
}

type Engine struct {
	env   Env
	state State

	level *level.Level
	lmap  *level.Map
	rules []*rule

	vars    *Vars
	sched   *Scheduler
	lua     *script.Runtime
	running uint64
	tick    uint64

	// held keeps world events raised while the level is paused; rules see
	// them on the first running tick after resume.
	held []world.Event

	endReason  string
	endPayload map[string]any
}

func NewEngine(env Env) *Engine {
	return &Engine{env: env, vars: NewVars(), sched: NewScheduler()}
}

func (e *Engine) State() State { return e.state }
func (e *Engine) Level() *level.Level { return e.level }
func (e *Engine) Vars() *Vars { return e.vars }
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Held returns the world events waiting for the level to resume.
func (e *Engine) Held() []world.Event { return append([]world.Event(nil), e.held...) }

// RunningTicks counts ticks evaluated while Running. Scheduled tasks are
// keyed on it, so a paused level does not age its tasks.
func (e *Engine) RunningTicks() uint64 { return e.running }

// EndReason is set once the level has ended.
func (e *Engine) EndReason() (string, map[string]any) { return e.endReason, e.endPayload }

func (e *Engine) stateErr(op string) error {
	return simerr.WithMetadata(simerr.CodeState, op+": invalid in state "+e.state.String(),
		map[string]string{"op": op, "state": e.state.String()})
}

// LoadLevel validates lv against m and builds every rule. Any unknown event,
// condition or action type fails the load and leaves the engine Unloaded.
func (e *Engine) LoadLevel(lv *level.Level, m *level.Map) error {
	if e.state != StateUnloaded {
		return e.stateErr("load")
	}
	if err := level.Validate(lv, m); err != nil {
		return err
	}
	b := &builder{level: lv, lmap: m}
	rules := make([]*rule, 0, len(lv.Triggers))
	for _, def := range lv.Triggers {
		r, err := b.build(def)
		if err != nil {
			return err
		}
		rules = append(rules, r)
	}
	vars := NewVars()
	for _, name := range world.SortedKeys(lv.Variables) {
		v, err := ValueOf(lv.Variables[name])
		if err != nil {
			return simerr.Wrap(simerr.CodeConfig, "level "+lv.ID+": variable "+name, err)
		}
		vars.Set(name, v)
	}

	e.level, e.lmap, e.rules, e.vars = lv, m, rules, vars
	e.sched = NewScheduler()
	e.running = 0
	e.endReason, e.endPayload = "", nil
	if b.scripts {
		e.lua = script.New()
	}
	if e.env.Rand == nil {
		e.env.Rand = fixedmath.NewRand(lv.Seed)
	}
	e.state = StateLoaded
	e.notify(notify.Notification{Kind: notify.KindLevelLoaded})
	return nil
}

func (e *Engine) StartLevel() error {
	if e.state != StateLoaded {
		return e.stateErr("start")
	}
	e.state = StateRunning
	if e.env.Events != nil {
		e.env.Events.Emit(world.Event{Type: world.EventLevelStarted, Name: e.level.ID})
	}
	e.notify(notify.Notification{Kind: notify.KindLevelStarted})
	return nil
}

func (e *Engine) PauseLevel() error {
	if e.state != StateRunning {
		return e.stateErr("pause")
	}
	e.state = StatePaused
	e.notify(notify.Notification{Kind: notify.KindLevelPaused})
	return nil
}

func (e *Engine) ResumeLevel() error {
	if e.state != StatePaused {
		return e.stateErr("resume")
	}
	e.state = StateRunning
	e.notify(notify.Notification{Kind: notify.KindLevelResumed})
	return nil
}

// EndLevel stops evaluation for good and publishes level_ended with reason
// and payload.
func (e *Engine) EndLevel(reason string, payload map[string]any) error {
	switch e.state {
	case StateLoaded, StateRunning, StatePaused:
	default:
		return e.stateErr("end")
	}
	e.state = StateEnded
	e.endReason, e.endPayload = reason, payload
	e.notify(notify.Notification{Kind: notify.KindLevelEnded, Reason: reason, Payload: payload})
	return nil
}

// UnloadLevel discards rules, variables and pending tasks.
func (e *Engine) UnloadLevel() error {
	if e.state == StateUnloaded {
		return e.stateErr("unload")
	}
	e.level, e.lmap, e.rules, e.lua = nil, nil, nil, nil
	e.vars.Clear()
	e.held = nil
	e.sched = NewScheduler()
	e.running = 0
	e.state = StateUnloaded
	return nil
}

// Schedule queues fn to run delay running-ticks from now. A delay below one
// tick runs on the next tick.
func (e *Engine) Schedule(delay int, fn TaskFunc) TaskID {
	if delay < 1 {
		delay = 1
	}
	return e.sched.Add(e.running+uint64(delay), fn)
}

// Cancel drops a pending task. Unknown or fired tasks return false.
func (e *Engine) Cancel(id TaskID) bool { return e.sched.Cancel(id) }

// Tick evaluates one simulation tick. Outside Running it does nothing.
// events are the world events pending for this tick, in emission order.
// While paused they are held and delivered ahead of the events of the first
// running tick.
func (e *Engine) Tick(tick uint64, events []world.Event) ([]Fired, error) {
	if e.state == StatePaused {
		e.held = append(e.held, events...)
		return nil, nil
	}
	if e.state != StateRunning {
		return nil, nil
	}
	e.tick = tick
	e.running++
	if len(e.held) > 0 {
		events = append(e.held, events...)
		e.held = nil
	}

	for e.state == StateRunning {
		_, fn, ok := e.sched.PopDue(e.running)
		if !ok {
			break
		}
		if err := fn(&Context{Tick: tick, e: e}); err != nil {
			return nil, fmt.Errorf("scheduled task: %w", err)
		}
	}

	pending := make([]world.Event, 0, len(events)+1)
	pending = append(pending, events...)
	pending = append(pending, world.Event{Type: world.EventTick, Tick: tick})

	var fired []Fired
	for _, r := range e.rules {
		if e.state != StateRunning {
			break
		}
		if r.fireOnce && r.fired {
			continue
		}
		for _, ev := range pending {
			if ev.Type != r.event || (r.name != "" && ev.Name != r.name) {
				continue
			}
			ctx := &Context{Tick: tick, Rule: r.id, Event: ev, e: e}
			if !r.holds(ctx) {
				continue
			}
			fired = append(fired, Fired{Tick: tick, Rule: r.id, Event: ev.Type, Unit: ev.Unit})
			e.notify(notify.Notification{Kind: notify.KindTriggerFired, Rule: r.id, Unit: uint64(ev.Unit), Name: string(ev.Type)})
			if r.fireOnce {
				r.fired = true
			}
			if err := runActions(ctx, r.actions); err != nil {
				return fired, fmt.Errorf("rule %s: %w", r.id, err)
			}
			if r.fireOnce || e.state != StateRunning {
				break
			}
		}
	}
	return fired, nil
}

func (r *rule) holds(ctx *Context) bool {
	for _, c := range r.conditions {
		if !c(ctx) {
			return false
		}
	}
	return true
}

func runActions(ctx *Context, actions []Action) error {
	for _, a := range actions {
		if ctx.e.state != StateRunning {
			return nil
		}
		if err := a(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) notify(n notify.Notification) {
	n.Tick = e.tick
	if e.level != nil {
		n.Level = e.level.ID
	}
	e.env.Bus.Publish(n)
}

func (e *Engine) emit(ev world.Event) {
	if e.env.Events != nil {
		e.env.Events.Emit(ev)
	}
}

// FiredOnce lists fire-once rules that have fired, in declared order.
func (e *Engine) FiredOnce() []string {
	var out []string
	for _, r := range e.rules {
		if r.fired {
			out = append(out, r.id)
		}
	}
	return out
}

// WriteDigest folds the engine's deterministic state into d.
func (e *Engine) WriteDigest(d *world.Digest) {
	d.U64(uint64(e.state))
	d.U64(e.running)
	for _, r := range e.rules {
		d.Str(r.id)
		d.Bool(r.fired)
	}
	e.vars.WriteDigest(d)
	for _, t := range e.sched.Pending() {
		d.U64(uint64(t.ID))
		d.U64(t.Due)
	}
	d.U64(uint64(len(e.held)))
	for _, ev := range e.held {
		d.Str(string(ev.Type))
		d.U64(ev.Tick)
		d.U64(uint64(ev.Unit))
		d.Str(ev.Name)
	}
	d.Str(e.endReason)
}
