package bt

import (
	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/world"
)

// Condition is a leaf that answers immediately and never runs.
type Condition struct {
	pred func(ctx *Context) bool
}

func NewCondition(pred func(ctx *Context) bool) *Condition { return &Condition{pred: pred} }

func (c *Condition) Tick(ctx *Context) Status {
	if c.pred(ctx) {
		return Success
	}
	return Failure
}

func (c *Condition) Reset() {}

// Action is a stateless leaf; stateful actions implement Node directly.
type Action struct {
	run func(ctx *Context) Status
}

func NewAction(run func(ctx *Context) Status) *Action { return &Action{run: run} }

func (a *Action) Tick(ctx *Context) Status { return a.run(ctx) }
func (a *Action) Reset() {}

func hostile(self *world.Actor) func(*world.Actor) bool {
	return func(o *world.Actor) bool { return o.Alive() && o.HostileTo(self) }
}

func targetOf(ctx *Context) *world.Actor {
	if ctx.Self.Target == 0 {
		return nil
	}
	t := ctx.World.Get(ctx.Self.Target)
	if !t.Alive() {
		return nil
	}
	return t
}

func reach(self *world.Actor) fixedmath.Fixed {
	if self.Range > 0 {
		return self.Range
	}
	return fixedmath.One
}

func hpBelow(value int, percent fixedmath.Fixed) func(*Context) bool {
	return func(ctx *Context) bool {
		self := ctx.Self
		if percent > 0 {
			// hp/max < percent/100, kept in integers
			return fixedmath.FromInt(self.HP*100) < fixedmath.Mul(percent, fixedmath.FromInt(self.MaxHP))
		}
		return self.HP < value
	}
}

func enemyInRange(r fixedmath.Fixed) func(*Context) bool {
	return func(ctx *Context) bool {
		rng := r
		if rng == 0 {
			rng = reach(ctx.Self)
		}
		return ctx.Spatial.Nearest(ctx.Self.Pos, rng, hostile(ctx.Self)) != nil
	}
}

func hasTarget(ctx *Context) bool { return targetOf(ctx) != nil }

func chance(p fixedmath.Fixed) func(*Context) bool {
	return func(ctx *Context) bool { return ctx.Rand.Chance(p) }
}

// variableCmp treats a missing variable as false.
func variableCmp(name string, op fixedmath.Cmp, value fixedmath.Fixed) func(*Context) bool {
	return func(ctx *Context) bool {
		if ctx.Vars == nil {
			return false
		}
		v, ok := ctx.Vars.Number(name)
		if !ok {
			return false
		}
		return op.Eval(v, value)
	}
}

func inRegion(r world.Region) func(*Context) bool {
	return func(ctx *Context) bool { return r.Contains(ctx.Self.Pos) }
}

func findTarget(r fixedmath.Fixed) func(*Context) Status {
	return func(ctx *Context) Status {
		t := ctx.Spatial.Nearest(ctx.Self.Pos, r, hostile(ctx.Self))
		if t == nil {
			return Failure
		}
		ctx.Self.Target = t.ID
		return Success
	}
}

func attack(damage int) func(*Context) Status {
	return func(ctx *Context) Status {
		t := targetOf(ctx)
		if t == nil || ctx.Self.Pos.Dist(t.Pos) > reach(ctx.Self) {
			return Failure
		}
		dmg := damage
		if dmg <= 0 {
			dmg = ctx.Self.Attack
		}
		if !ctx.World.Damage(t.ID, dmg, ctx.Self.ID) {
			return Failure
		}
		return Success
	}
}

func moveToTarget(r fixedmath.Fixed) func(*Context) Status {
	return func(ctx *Context) Status {
		t := targetOf(ctx)
		if t == nil {
			return Failure
		}
		rng := r
		if rng == 0 {
			rng = reach(ctx.Self)
		}
		if ctx.Self.Pos.Dist(t.Pos) <= rng {
			ctx.Self.Moving = false
			return Success
		}
		ctx.World.MoveTo(ctx.Self.ID, t.Pos)
		return Running
	}
}

// MoveTo walks the subject to a fixed point. It fails if the movement is
// cancelled by someone else before arrival.
type MoveTo struct {
	dest   fixedmath.Vec2
	issued bool
}

func (m *MoveTo) Tick(ctx *Context) Status {
	self := ctx.Self
	if self.Pos == m.dest {
		m.issued = false
		return Success
	}
	if !m.issued {
		if !ctx.World.MoveTo(self.ID, m.dest) {
			return Failure
		}
		m.issued = true
		return Running
	}
	if !self.Moving || self.Dest != m.dest {
		m.issued = false
		return Failure
	}
	return Running
}

func (m *MoveTo) Reset() { m.issued = false }

// Wait runs for ticks ticks, succeeding on the last one.
type Wait struct {
	ticks   int
	elapsed int
}

func (w *Wait) Tick(ctx *Context) Status {
	w.elapsed++
	if w.elapsed >= w.ticks {
		w.elapsed = 0
		return Success
	}
	return Running
}

func (w *Wait) Reset() { w.elapsed = 0 }
