package trigger

import (
	"errors"
	"fmt"

	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/simerr"
	"tactica.ai/internal/sim/world"
)

// builder turns level rule definitions into closures. Every unknown type name
// is a config error here, never at evaluation.
type builder struct {
	level   *level.Level
	lmap    *level.Map
	rule    string
	scripts bool
}

func (b *builder) errf(format string, args ...any) error {
	return simerr.WithMetadata(simerr.CodeConfig, fmt.Sprintf(format, args...),
		map[string]string{"level": b.level.ID, "rule": b.rule})
}

func (b *builder) wrap(err error) error {
	var se *simerr.Error
	if errors.As(err, &se) && se.Code == simerr.CodeConfig {
		return simerr.Wrap(simerr.CodeConfig, "level "+b.level.ID+": rule "+b.rule, err)
	}
	return err
}

func (b *builder) build(def level.Rule) (*rule, error) {
	b.rule = def.ID
	ev := world.EventType(def.Event)
	if !world.IsKnownEvent(ev) {
		return nil, b.errf("unknown event type %q", def.Event)
	}
	r := &rule{id: def.ID, event: ev, name: def.Name, fireOnce: def.FireOnce}
	for _, c := range def.Conditions {
		f, ok := conditionFactories[c.Type]
		if !ok {
			return nil, b.errf("unknown condition type %q", c.Type)
		}
		cond, err := f(b, c)
		if err != nil {
			return nil, err
		}
		r.conditions = append(r.conditions, cond)
	}
	if len(def.Actions) == 0 {
		return nil, b.errf("rule has no actions")
	}
	actions, err := b.actions(def.Actions)
	if err != nil {
		return nil, err
	}
	r.actions = actions
	return r, nil
}

func (b *builder) actions(defs []level.Action) ([]Action, error) {
	out := make([]Action, 0, len(defs))
	for _, a := range defs {
		f, ok := actionFactories[a.Type]
		if !ok {
			return nil, b.errf("unknown action type %q", a.Type)
		}
		act, err := f(b, a)
		if err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, nil
}

// ConditionTypes and ActionTypes list the registered type names.
func ConditionTypes() []string { return world.SortedKeys(conditionFactories) }
func ActionTypes() []string { return world.SortedKeys(actionFactories) }

// scriptHost exposes the engine to a Lua script run by a rule.
type scriptHost struct {
	ctx *Context
}

func (h *scriptHost) Tick() uint64 { return h.ctx.Tick }

func (h *scriptHost) Var(name string) (any, bool) {
	v, ok := h.ctx.e.vars.Get(name)
	if !ok {
		return nil, false
	}
	return v.Any(), true
}

func (h *scriptHost) SetVar(name string, raw any) error {
	v, err := ValueOf(raw)
	if err != nil {
		return err
	}
	h.ctx.e.setVar(name, v)
	return nil
}

func (h *scriptHost) Random() float64 { return h.ctx.e.env.Rand.Float() }

func (h *scriptHost) RandomInt(lo, hi int) int { return h.ctx.e.env.Rand.Intn(lo, hi) }

func (h *scriptHost) CountCamp(camp int) int {
	n := 0
	for _, a := range h.ctx.e.env.World.ByCamp(camp) {
		if a.Alive() {
			n++
		}
	}
	return n
}

func (h *scriptHost) Message(text string) {
	h.ctx.e.notify(notify.Notification{Kind: notify.KindMessage, Rule: h.ctx.Rule, Text: text})
}

func (h *scriptHost) Emit(name string) {
	h.ctx.e.notify(notify.Notification{Kind: notify.KindCustom, Rule: h.ctx.Rule, Name: name})
	h.ctx.e.emit(world.Event{Type: world.EventCustom, Name: name})
}

func (h *scriptHost) End(reason string) error {
	return h.ctx.e.EndLevel(reason, nil)
}
