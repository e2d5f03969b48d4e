package trigger

import (
	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/world"
)

// Condition is a built rule condition.
type Condition func(ctx *Context) bool

type conditionFactory func(b *builder, def level.Condition) (Condition, error)

var conditionFactories = map[string]conditionFactory{
	"unit_id":    buildUnitID,
	"camp":       buildCamp,
	"unit_count": buildUnitCount,
	"variable":   buildVariable,
	"in_region":  buildInRegion,
	"hp_below":   buildHPBelow,
}

// subject resolves the actor a condition or action talks about: the tagged
// actor when a tag is given, else the event's unit.
func subject(ctx *Context, tag string) *world.Actor {
	reg := ctx.e.env.World
	if tag != "" {
		return reg.ByTag(tag)
	}
	if ctx.Event.Unit == 0 {
		return nil
	}
	return reg.Get(ctx.Event.Unit)
}

func buildUnitID(b *builder, def level.Condition) (Condition, error) {
	if def.Tag == "" && def.ID == 0 {
		return nil, b.errf("unit_id needs tag or id")
	}
	tag, id := def.Tag, world.ActorID(def.ID)
	return func(ctx *Context) bool {
		if id != 0 && ctx.Event.Unit != id {
			return false
		}
		if tag != "" && ctx.Event.Tag != tag {
			return false
		}
		return true
	}, nil
}

func buildCamp(b *builder, def level.Condition) (Condition, error) {
	if def.Camp == nil {
		return nil, b.errf("camp needs camp")
	}
	camp, tag := *def.Camp, def.Tag
	return func(ctx *Context) bool {
		if tag == "" {
			return ctx.Event.Camp == camp
		}
		a := ctx.e.env.World.ByTag(tag)
		return a != nil && a.Camp == camp
	}, nil
}

func buildUnitCount(b *builder, def level.Condition) (Condition, error) {
	op, err := b.cmp(def.Op)
	if err != nil {
		return nil, err
	}
	want, ok := numberOf(def.Value)
	if !ok {
		return nil, b.errf("unit_count value must be a number")
	}
	var region *world.Region
	if def.Region != "" {
		r := b.region(def.Region)
		region = &r
	}
	camp := def.Camp
	return func(ctx *Context) bool {
		var actors []*world.Actor
		switch {
		case region != nil:
			actors = ctx.e.env.Spatial.InRegion(*region)
		case camp != nil:
			actors = ctx.e.env.World.ByCamp(*camp)
		default:
			actors = ctx.e.env.World.All()
		}
		n := 0
		for _, a := range actors {
			if a.Alive() && (camp == nil || a.Camp == *camp) {
				n++
			}
		}
		return op.Eval(fixedmath.FromInt(n), want)
	}, nil
}

func buildVariable(b *builder, def level.Condition) (Condition, error) {
	if def.Name == "" {
		return nil, b.errf("variable needs name")
	}
	op, err := b.cmp(def.Op)
	if err != nil {
		return nil, err
	}
	want, err := ValueOf(def.Value)
	if err != nil {
		return nil, b.errf("variable %s: %v", def.Name, err)
	}
	if want.Kind != KindNumber && op != fixedmath.CmpEQ && op != fixedmath.CmpNE {
		return nil, b.errf("variable %s: %s only compares numbers", def.Name, op)
	}
	name := def.Name
	return func(ctx *Context) bool {
		got, ok := ctx.e.vars.Get(name)
		if !ok {
			return false
		}
		if want.Kind == KindNumber && got.Kind == KindNumber {
			return op.Eval(got.Num, want.Num)
		}
		eq := got.Equal(want)
		if op == fixedmath.CmpNE {
			return !eq
		}
		return op == fixedmath.CmpEQ && eq
	}, nil
}

func buildInRegion(b *builder, def level.Condition) (Condition, error) {
	if def.Region == "" {
		return nil, b.errf("in_region needs region")
	}
	r := b.region(def.Region)
	tag := def.Tag
	return func(ctx *Context) bool {
		a := subject(ctx, tag)
		return a != nil && r.Contains(a.Pos)
	}, nil
}

func buildHPBelow(b *builder, def level.Condition) (Condition, error) {
	value, hasValue := numberOf(def.Value)
	percent := fixedmath.FromFloat(def.Percent)
	if !hasValue && percent <= 0 {
		return nil, b.errf("hp_below needs value or percent")
	}
	tag := def.Tag
	return func(ctx *Context) bool {
		a := subject(ctx, tag)
		if a == nil {
			return false
		}
		if percent > 0 {
			return fixedmath.FromInt(a.HP*100) < fixedmath.Mul(percent, fixedmath.FromInt(a.MaxHP))
		}
		return fixedmath.FromInt(a.HP) < value
	}, nil
}

func numberOf(raw any) (fixedmath.Fixed, bool) {
	if raw == nil {
		return 0, false
	}
	v, err := ValueOf(raw)
	if err != nil || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

func (b *builder) cmp(s string) (fixedmath.Cmp, error) {
	if s == "" {
		return fixedmath.CmpEQ, nil
	}
	op, ok := fixedmath.ParseCmp(s)
	if !ok {
		return "", b.errf("unknown operator %q", s)
	}
	return op, nil
}

// region looks up a map region; level.Validate has already checked it exists.
func (b *builder) region(name string) world.Region {
	return b.lmap.Regions[name].Region()
}
