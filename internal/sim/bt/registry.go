package bt

import (
	"sort"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/simerr"
	"tactica.ai/internal/sim/world"
)

// Def is the declarative form of a node as found in level files.
type Def struct {
	Type     string         `json:"type" yaml:"type"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Children []Def          `json:"children,omitempty" yaml:"children,omitempty"`
}

// Arity constrains how many children a node type accepts.
type Arity uint8

const (
	Leaf      Arity = iota // no children
	Decorator              // exactly one
	Composite              // one or more
)

// Factory builds a node from its definition and already-built children.
type Factory func(def Def, children []Node) (Node, error)

type registration struct {
	arity   Arity
	factory Factory
}

// Registry maps node type tags to constructors. Unknown tags fail Build.
type Registry struct {
	types map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{types: map[string]registration{}}
}

func (r *Registry) Register(typ string, arity Arity, f Factory) {
	r.types[typ] = registration{arity: arity, factory: f}
}

func (r *Registry) Has(typ string) bool {
	_, ok := r.types[typ]
	return ok
}

func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.types))
	for k := range r.types {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build materializes a definition tree. Every error is a config error.
func (r *Registry) Build(def Def) (Node, error) {
	reg, ok := r.types[def.Type]
	if !ok {
		return nil, simerr.Configf("bt: unknown node type %q", def.Type)
	}
	switch reg.arity {
	case Leaf:
		if len(def.Children) != 0 {
			return nil, simerr.Configf("bt %s: leaf takes no children", def.Type)
		}
	case Decorator:
		if len(def.Children) != 1 {
			return nil, simerr.Configf("bt %s: decorator takes exactly one child, got %d", def.Type, len(def.Children))
		}
	case Composite:
		if len(def.Children) == 0 {
			return nil, simerr.Configf("bt %s: composite needs children", def.Type)
		}
	}
	children := make([]Node, 0, len(def.Children))
	for _, cd := range def.Children {
		c, err := r.Build(cd)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return reg.factory(def, children)
}

var defaultRegistry = newDefaultRegistry()

// DefaultRegistry returns the registry with every built-in node type.
func DefaultRegistry() *Registry { return defaultRegistry }

func newDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("sequence", Composite, func(_ Def, ch []Node) (Node, error) { return NewSequence(ch...), nil })
	r.Register("selector", Composite, func(_ Def, ch []Node) (Node, error) { return NewSelector(ch...), nil })

	r.Register("inverter", Decorator, func(_ Def, ch []Node) (Node, error) { return NewInverter(ch[0]), nil })
	r.Register("succeeder", Decorator, func(_ Def, ch []Node) (Node, error) { return NewSucceeder(ch[0]), nil })
	r.Register("repeat", Decorator, func(d Def, ch []Node) (Node, error) {
		a := newArgs(d)
		n := a.int("count", 0)
		if a.err == nil && n < 0 {
			a.fail("count", "must be >= 0")
		}
		return NewRepeat(ch[0], n), a.err
	})
	r.Register("rate_limit", Decorator, func(d Def, ch []Node) (Node, error) {
		a := newArgs(d)
		n := a.int("ticks", 0)
		if a.err == nil && n <= 0 {
			a.fail("ticks", "must be > 0")
		}
		return NewRateLimit(ch[0], uint64(n)), a.err
	})

	r.Register("hp_below", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		if !a.has("value") && !a.has("percent") {
			a.fail("value", "value or percent required")
		}
		return NewCondition(hpBelow(a.int("value", 0), a.fixed("percent", 0))), a.err
	})
	r.Register("enemy_in_range", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		return NewCondition(enemyInRange(a.fixed("range", 0))), a.err
	})
	r.Register("has_target", Leaf, func(d Def, _ []Node) (Node, error) {
		return NewCondition(hasTarget), nil
	})
	r.Register("chance", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		p := a.requireFixed("p")
		if a.err == nil && (p < 0 || p > fixedmath.One) {
			a.fail("p", "must be within [0, 1]")
		}
		return NewCondition(chance(p)), a.err
	})
	r.Register("variable", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		name := a.str("name", "")
		if a.err == nil && name == "" {
			a.fail("name", "required")
		}
		op, ok := fixedmath.ParseCmp(a.str("op", "=="))
		if !ok {
			a.fail("op", "unknown operator %q", a.str("op", ""))
		}
		return NewCondition(variableCmp(name, op, a.requireFixed("value"))), a.err
	})
	r.Register("in_region", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		reg := world.Region{
			Min: fixedmath.Vec2{X: a.requireFixed("min_x"), Y: a.requireFixed("min_y")},
			Max: fixedmath.Vec2{X: a.requireFixed("max_x"), Y: a.requireFixed("max_y")},
		}
		return NewCondition(inRegion(reg)), a.err
	})

	r.Register("find_target", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		return NewAction(findTarget(a.fixed("range", 0))), a.err
	})
	r.Register("move_to", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		return &MoveTo{dest: fixedmath.Vec2{X: a.requireFixed("x"), Y: a.requireFixed("y")}}, a.err
	})
	r.Register("move_to_target", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		return NewAction(moveToTarget(a.fixed("range", 0))), a.err
	})
	r.Register("attack", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		return NewAction(attack(a.int("damage", 0))), a.err
	})
	r.Register("wait", Leaf, func(d Def, _ []Node) (Node, error) {
		a := newArgs(d)
		n := a.int("ticks", 1)
		if a.err == nil && n <= 0 {
			a.fail("ticks", "must be > 0")
		}
		return &Wait{ticks: n}, a.err
	})
	r.Register("idle", Leaf, func(Def, []Node) (Node, error) {
		return NewAction(func(*Context) Status { return Success }), nil
	})
	r.Register("fail", Leaf, func(Def, []Node) (Node, error) {
		return NewAction(func(*Context) Status { return Failure }), nil
	})
	return r
}
