package trigger

import (
	"fmt"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/script"
	"tactica.ai/internal/sim/world"
)

// Action is a built rule action.
type Action func(ctx *Context) error

type actionFactory func(b *builder, def level.Action) (Action, error)

var actionFactories map[string]actionFactory

func init() {
	// delay refers back to the table, so it is filled at init.
	actionFactories = map[string]actionFactory{
		"spawn_unit":   buildSpawnUnit,
		"remove_unit":  buildRemoveUnit,
		"move_unit":    buildMoveUnit,
		"set_variable": buildSetVariable,
		"play_effect":  buildPlayEffect,
		"play_sound":   buildPlaySound,
		"show_message": buildShowMessage,
		"change_camp":  buildChangeCamp,
		"damage_unit":  buildDamageUnit,
		"victory":      buildEnding(notify.KindVictory, "victory"),
		"defeat":       buildEnding(notify.KindDefeat, "defeat"),
		"custom":       buildCustom,
		"delay":        buildDelay,
		"cancel_task":  buildCancelTask,
		"script":       buildScript,
	}
}

func point(def level.Action) (fixedmath.Vec2, bool) {
	if def.X == nil || def.Y == nil {
		return fixedmath.Vec2{}, false
	}
	return fixedmath.Vec2{X: fixedmath.FromFloat(*def.X), Y: fixedmath.FromFloat(*def.Y)}, true
}

func buildSpawnUnit(b *builder, def level.Action) (Action, error) {
	if def.Kind == "" {
		return nil, b.errf("spawn_unit needs kind")
	}
	pos, ok := point(def)
	if !ok {
		return nil, b.errf("spawn_unit needs x and y")
	}
	spec := world.SpawnSpec{
		Tag:      def.Tag,
		Kind:     def.Kind,
		Pos:      pos,
		Speed:    fixedmath.FromFloat(def.Speed),
		HP:       def.HP,
		Attack:   def.Attack,
		Range:    fixedmath.FromFloat(def.Range),
		Behavior: def.Behavior,
	}
	if def.Camp != nil {
		spec.Camp = *def.Camp
	}
	// A tag still alive skips the spawn, so repeating rules reinforce
	// without duplicating.
	return func(ctx *Context) error {
		if spec.Tag != "" && ctx.e.env.World.ByTag(spec.Tag) != nil {
			return nil
		}
		ctx.e.env.World.Spawn(spec)
		return nil
	}, nil
}

// buildRemoveUnit removes the tagged actor, or the event's unit without a tag.
// A missing actor is not an error.
func buildRemoveUnit(b *builder, def level.Action) (Action, error) {
	tag := def.Tag
	return func(ctx *Context) error {
		if a := subject(ctx, tag); a != nil {
			ctx.e.env.World.Remove(a.ID)
		}
		return nil
	}, nil
}

func buildMoveUnit(b *builder, def level.Action) (Action, error) {
	dest, ok := point(def)
	if !ok {
		return nil, b.errf("move_unit needs x and y")
	}
	tag := def.Tag
	return func(ctx *Context) error {
		if a := subject(ctx, tag); a != nil {
			ctx.e.env.World.MoveTo(a.ID, dest)
		}
		return nil
	}, nil
}

func buildSetVariable(b *builder, def level.Action) (Action, error) {
	if def.Name == "" {
		return nil, b.errf("set_variable needs name")
	}
	v, err := ValueOf(def.Value)
	if err != nil {
		return nil, b.errf("set_variable %s: %v", def.Name, err)
	}
	op := def.Op
	switch op {
	case "", "set":
		op = "set"
	case "add", "sub":
		if v.Kind != KindNumber {
			return nil, b.errf("set_variable %s: %s needs a number", def.Name, op)
		}
	default:
		return nil, b.errf("set_variable %s: unknown op %q", def.Name, op)
	}
	name := def.Name
	return func(ctx *Context) error {
		next := v
		if op != "set" {
			cur, ok := ctx.e.vars.Get(name)
			if ok && cur.Kind != KindNumber {
				return fmt.Errorf("set_variable %s: %s on non-number %s", name, op, cur)
			}
			if op == "add" {
				next = Number(cur.Num + v.Num)
			} else {
				next = Number(cur.Num - v.Num)
			}
		}
		ctx.e.setVar(name, next)
		return nil
	}, nil
}

// setVar writes immediately; the variable_changed event is seen next tick.
func (e *Engine) setVar(name string, v Value) {
	e.vars.Set(name, v)
	e.emit(world.Event{Type: world.EventVariableChanged, Name: name})
}

func buildPlayEffect(b *builder, def level.Action) (Action, error) {
	if def.Name == "" {
		return nil, b.errf("play_effect needs name")
	}
	payload := copyPayload(def.Payload)
	if pos, ok := point(def); ok {
		payload["x"], payload["y"] = pos.X.Float(), pos.Y.Float()
	}
	tag, name := def.Tag, def.Name
	return func(ctx *Context) error {
		n := notify.Notification{Kind: notify.KindEffect, Name: name, Payload: payload}
		if a := subject(ctx, tag); a != nil {
			n.Unit = uint64(a.ID)
		}
		ctx.e.notify(n)
		return nil
	}, nil
}

func buildPlaySound(b *builder, def level.Action) (Action, error) {
	if def.Name == "" {
		return nil, b.errf("play_sound needs name")
	}
	name, payload := def.Name, def.Payload
	return func(ctx *Context) error {
		ctx.e.notify(notify.Notification{Kind: notify.KindSound, Name: name, Payload: payload})
		return nil
	}, nil
}

func buildShowMessage(b *builder, def level.Action) (Action, error) {
	if def.Text == "" {
		return nil, b.errf("show_message needs text")
	}
	text, name := def.Text, def.Name
	return func(ctx *Context) error {
		ctx.e.notify(notify.Notification{Kind: notify.KindMessage, Name: name, Text: text})
		return nil
	}, nil
}

func buildChangeCamp(b *builder, def level.Action) (Action, error) {
	if def.Camp == nil {
		return nil, b.errf("change_camp needs camp")
	}
	camp, tag := *def.Camp, def.Tag
	return func(ctx *Context) error {
		if a := subject(ctx, tag); a != nil {
			ctx.e.env.World.SetCamp(a.ID, camp)
		}
		return nil
	}, nil
}

// buildDamageUnit deals value damage; source names the instigating tag.
func buildDamageUnit(b *builder, def level.Action) (Action, error) {
	amount, ok := numberOf(def.Value)
	if !ok || amount.Int() < 1 {
		return nil, b.errf("damage_unit needs a positive value")
	}
	tag, source, n := def.Tag, def.Source, amount.Int()
	return func(ctx *Context) error {
		a := subject(ctx, tag)
		if a == nil {
			return nil
		}
		var from world.ActorID
		if s := ctx.e.env.World.ByTag(source); s != nil {
			from = s.ID
		}
		ctx.e.env.World.Damage(a.ID, n, from)
		return nil
	}, nil
}

func buildEnding(kind notify.Kind, defReason string) actionFactory {
	return func(b *builder, def level.Action) (Action, error) {
		reason := def.Reason
		if reason == "" {
			reason = defReason
		}
		payload := def.Payload
		return func(ctx *Context) error {
			ctx.e.notify(notify.Notification{Kind: kind, Rule: ctx.Rule, Reason: reason, Payload: payload})
			return ctx.e.EndLevel(reason, payload)
		}, nil
	}
}

func buildCustom(b *builder, def level.Action) (Action, error) {
	if def.Name == "" {
		return nil, b.errf("custom needs name")
	}
	name, payload := def.Name, def.Payload
	return func(ctx *Context) error {
		ctx.e.notify(notify.Notification{Kind: notify.KindCustom, Rule: ctx.Rule, Name: name, Payload: payload})
		ctx.e.emit(world.Event{Type: world.EventCustom, Name: name, Unit: ctx.Event.Unit, Tag: ctx.Event.Tag})
		return nil
	}, nil
}

// buildDelay schedules nested actions. With task_var the task id is stored
// in that variable so cancel_task can find it.
func buildDelay(b *builder, def level.Action) (Action, error) {
	if def.Ticks < 1 {
		return nil, b.errf("delay needs ticks >= 1")
	}
	if len(def.Actions) == 0 {
		return nil, b.errf("delay needs actions")
	}
	nested, err := b.actions(def.Actions)
	if err != nil {
		return nil, err
	}
	ticks, taskVar := def.Ticks, def.TaskVar
	return func(ctx *Context) error {
		rule, ev := ctx.Rule, ctx.Event
		id := ctx.e.Schedule(ticks, func(tc *Context) error {
			tc.Rule, tc.Event = rule, ev
			return runActions(tc, nested)
		})
		if taskVar != "" {
			ctx.e.setVar(taskVar, Number(fixedmath.FromInt(int(id))))
		}
		return nil
	}, nil
}

// buildCancelTask cancels the task whose id is held in the named variable.
// A fired, cancelled or unknown task is a no-op.
func buildCancelTask(b *builder, def level.Action) (Action, error) {
	if def.Name == "" {
		return nil, b.errf("cancel_task needs name")
	}
	name := def.Name
	return func(ctx *Context) error {
		id, ok := ctx.e.vars.Number(name)
		if !ok {
			return nil
		}
		ctx.e.Cancel(TaskID(id.Int()))
		return nil
	}, nil
}

func buildScript(b *builder, def level.Action) (Action, error) {
	if def.Text == "" {
		return nil, b.errf("script needs text")
	}
	if err := script.Check(def.Text); err != nil {
		return nil, b.wrap(err)
	}
	b.scripts = true
	src := def.Text
	return func(ctx *Context) error {
		return ctx.e.lua.Run(src, &scriptHost{ctx: ctx})
	}, nil
}

func copyPayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}
