package bt

import (
	"errors"
	"testing"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/simerr"
	"tactica.ai/internal/sim/world"
)

type fakeVars map[string]fixedmath.Fixed

func (v fakeVars) Number(name string) (fixedmath.Fixed, bool) {
	f, ok := v[name]
	return f, ok
}

type rig struct {
	t     *testing.T
	store *world.Store
	rand  *fixedmath.Rand
	tick  uint64
	vars  fakeVars
}

func newRig(t *testing.T) *rig {
	return &rig{t: t, store: world.NewStore(), rand: fixedmath.NewRand(1), vars: fakeVars{}}
}

func (r *rig) ctx() *Context {
	return &Context{Tick: r.tick, World: r.store, Spatial: r.store, Rand: r.rand, Vars: r.vars}
}

func (r *rig) build(def Def) *Tree {
	r.t.Helper()
	tr, err := Build(DefaultRegistry(), def)
	if err != nil {
		r.t.Fatalf("build: %v", err)
	}
	return tr
}

// step ticks the tree, then integrates movement, like a session does.
func (r *rig) step(tr *Tree) Status {
	st := tr.Update(r.ctx())
	r.store.Integrate()
	r.tick++
	return st
}

func leaf(typ string, data map[string]any) Def { return Def{Type: typ, Data: data} }

func TestSequenceOfTwoOneTickActionsTakesTwoTicks(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5})
	tr := r.build(Def{Type: "sequence", Children: []Def{leaf("idle", nil), leaf("idle", nil)}})
	tr.Start(self)

	if st := r.step(tr); st != Running || tr.IsOver() {
		t.Fatalf("tick 1: status=%v over=%v", st, tr.IsOver())
	}
	if st := r.step(tr); st != Success || !tr.IsOver() {
		t.Fatalf("tick 2: status=%v over=%v", st, tr.IsOver())
	}
	if st := r.step(tr); st != Success {
		t.Fatalf("terminal tree must keep its result, got %v", st)
	}
}

func TestSequenceFailureResets(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5})
	tr := r.build(Def{Type: "sequence", Children: []Def{leaf("idle", nil), leaf("fail", nil), leaf("idle", nil)}})
	tr.Start(self)
	r.step(tr)
	if st := r.step(tr); st != Failure || !tr.IsOver() {
		t.Fatalf("status=%v over=%v", st, tr.IsOver())
	}
}

func TestSelectorAdvancesOnFailure(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5})
	tr := r.build(Def{Type: "selector", Children: []Def{leaf("fail", nil), leaf("idle", nil)}})
	tr.Start(self)
	if st := r.step(tr); st != Running {
		t.Fatalf("tick 1: %v", st)
	}
	if st := r.step(tr); st != Success {
		t.Fatalf("tick 2: %v", st)
	}

	all := r.build(Def{Type: "selector", Children: []Def{leaf("fail", nil)}})
	all.Start(self)
	if st := r.step(all); st != Failure {
		t.Fatalf("all-fail selector: %v", st)
	}
}

func TestDecorators(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5})

	inv := r.build(Def{Type: "inverter", Children: []Def{leaf("fail", nil)}})
	inv.Start(self)
	if st := r.step(inv); st != Success {
		t.Fatalf("inverter: %v", st)
	}

	rep := r.build(Def{Type: "repeat", Data: map[string]any{"count": 3}, Children: []Def{leaf("idle", nil)}})
	rep.Start(self)
	got := []Status{r.step(rep), r.step(rep), r.step(rep)}
	if got[0] != Running || got[1] != Running || got[2] != Success {
		t.Fatalf("repeat x3: %v", got)
	}

	until := r.build(Def{Type: "repeat", Children: []Def{leaf("fail", nil)}})
	until.Start(self)
	if st := r.step(until); st != Success {
		t.Fatalf("repeat until failure: %v", st)
	}

	succ := r.build(Def{Type: "succeeder", Children: []Def{leaf("fail", nil)}})
	succ.Start(self)
	if st := r.step(succ); st != Success {
		t.Fatalf("succeeder: %v", st)
	}
}

func TestRateLimitThrottles(t *testing.T) {
	r := newRig(t)
	node, err := DefaultRegistry().Build(Def{Type: "rate_limit", Data: map[string]any{"ticks": 5.0}, Children: []Def{leaf("idle", nil)}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var got []Status
	for tick := uint64(0); tick < 7; tick++ {
		r.tick = tick
		got = append(got, node.Tick(r.ctx()))
	}
	want := []Status{Success, Failure, Failure, Failure, Failure, Success, Failure}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tick %d: got %v want %v (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestWaitRunsForTicks(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5})
	tr := r.build(leaf("wait", map[string]any{"ticks": 3}))
	tr.Start(self)
	got := []Status{r.step(tr), r.step(tr), r.step(tr)}
	if got[0] != Running || got[1] != Running || got[2] != Success {
		t.Fatalf("wait 3: %v", got)
	}
}

func TestHuntAndAttack(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "knight", Camp: 1, HP: 10, Attack: 5, Range: fixedmath.One, Speed: fixedmath.One})
	enemy := r.store.Spawn(world.SpawnSpec{Kind: "orc", Camp: 2, HP: 10, Pos: fixedmath.V2(3, 0)})

	tr := r.build(Def{Type: "sequence", Children: []Def{
		leaf("find_target", map[string]any{"range": 10}),
		leaf("move_to_target", nil),
		leaf("attack", nil),
	}})
	tr.Start(self)

	ticks := 0
	for !tr.IsOver() && ticks < 20 {
		r.step(tr)
		ticks++
	}
	if ticks != 5 || tr.Result() != Success {
		t.Fatalf("ticks=%d result=%v", ticks, tr.Result())
	}
	if enemy.HP != 5 {
		t.Fatalf("enemy hp=%d want 5", enemy.HP)
	}
	if self.Pos != fixedmath.V2(2, 0) {
		t.Fatalf("self pos=%v", self.Pos)
	}
}

func TestMoveToArrives(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5, Speed: fixedmath.FromInt(2)})
	tr := r.build(leaf("move_to", map[string]any{"x": 4, "y": 0}))
	tr.Start(self)
	var got []Status
	for !tr.IsOver() {
		got = append(got, r.step(tr))
	}
	// issue, move 2, arrive, report
	if len(got) != 3 || got[2] != Success || self.Pos != fixedmath.V2(4, 0) {
		t.Fatalf("statuses=%v pos=%v", got, self.Pos)
	}
}

func TestConditions(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", Camp: 1, HP: 10, Range: fixedmath.FromInt(2)})
	r.store.Spawn(world.SpawnSpec{Kind: "e", Camp: 2, HP: 10, Pos: fixedmath.V2(5, 0)})
	r.vars["alarm"] = fixedmath.FromInt(3)
	self.HP = 4

	check := func(def Def, want Status) {
		t.Helper()
		tr := r.build(def)
		tr.Start(self)
		if st := tr.Update(r.ctx()); st != want {
			t.Fatalf("%s %v: got %v want %v", def.Type, def.Data, st, want)
		}
	}
	check(leaf("hp_below", map[string]any{"value": 5}), Success)
	check(leaf("hp_below", map[string]any{"percent": 30}), Failure)
	check(leaf("hp_below", map[string]any{"percent": 50}), Success)
	check(leaf("enemy_in_range", nil), Failure)
	check(leaf("enemy_in_range", map[string]any{"range": 6}), Success)
	check(leaf("has_target", nil), Failure)
	check(leaf("variable", map[string]any{"name": "alarm", "op": ">=", "value": 3}), Success)
	check(leaf("variable", map[string]any{"name": "missing", "op": "==", "value": 0}), Failure)
	check(leaf("in_region", map[string]any{"min_x": -1, "min_y": -1, "max_x": 1, "max_y": 1}), Success)
}

func TestChanceIsSeeded(t *testing.T) {
	run := func() []Status {
		r := newRig(t)
		self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5})
		node, err := DefaultRegistry().Build(leaf("chance", map[string]any{"p": 0.5}))
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		ctx := r.ctx()
		ctx.Self = self
		var out []Status
		for i := 0; i < 32; i++ {
			out = append(out, node.Tick(ctx))
		}
		return out
	}
	a, b := run(), run()
	successes := 0
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs between identical seeds", i)
		}
		if a[i] == Success {
			successes++
		}
	}
	if successes == 0 || successes == len(a) {
		t.Fatalf("chance 0.5 produced %d/%d successes", successes, len(a))
	}
}

func TestStopAndRestart(t *testing.T) {
	r := newRig(t)
	self := r.store.Spawn(world.SpawnSpec{Kind: "u", HP: 5})
	tr := r.build(leaf("wait", map[string]any{"ticks": 10}))
	tr.Start(self)
	r.step(tr)
	tr.Stop()
	if !tr.IsOver() || tr.Result() != Failure {
		t.Fatalf("stop: over=%v result=%v", tr.IsOver(), tr.Result())
	}
	if st := r.step(tr); st != Failure {
		t.Fatalf("stopped tree ticked: %v", st)
	}
	tr.Start(self)
	if tr.IsOver() || r.step(tr) != Running {
		t.Fatalf("restart did not reset tree")
	}
}

func TestBuildErrorsAreConfigErrors(t *testing.T) {
	bad := []Def{
		{Type: "teleport"},
		{Type: "sequence"},
		{Type: "inverter", Children: []Def{leaf("idle", nil), leaf("idle", nil)}},
		{Type: "idle", Children: []Def{leaf("idle", nil)}},
		leaf("chance", map[string]any{"p": 2}),
		leaf("chance", nil),
		leaf("wait", map[string]any{"ticks": "soon"}),
		leaf("variable", map[string]any{"name": "x", "op": "~", "value": 1}),
		{Type: "sequence", Children: []Def{leaf("idle", nil), {Type: "nope"}}},
	}
	for _, def := range bad {
		_, err := DefaultRegistry().Build(def)
		if err == nil {
			t.Fatalf("%+v: expected error", def)
		}
		if !errors.Is(err, simerr.ErrConfig) {
			t.Fatalf("%+v: want config error, got %v", def, err)
		}
	}
}
