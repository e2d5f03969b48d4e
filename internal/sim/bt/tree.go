package bt

import "tactica.ai/internal/sim/world"

// Tree binds a root node to the actor it controls.
type Tree struct {
	root    Node
	subject *world.Actor

	started bool
	over    bool
	result  Status
}

func NewTree(root Node) *Tree { return &Tree{root: root} }

// Build is shorthand for materializing def with reg and wrapping it.
func Build(reg *Registry, def Def) (*Tree, error) {
	root, err := reg.Build(def)
	if err != nil {
		return nil, err
	}
	return NewTree(root), nil
}

// Start binds subject and resets every node to its initial state.
func (t *Tree) Start(subject *world.Actor) {
	t.subject = subject
	t.root.Reset()
	t.started = true
	t.over = false
	t.result = Running
}

// Update ticks the root once. It is a no-op on a tree that was never started
// or has finished; the last result is returned in that case.
func (t *Tree) Update(ctx *Context) Status {
	if !t.started || t.over {
		return t.result
	}
	ctx.Self = t.subject
	st := t.root.Tick(ctx)
	if st != Running {
		t.over = true
	}
	t.result = st
	return st
}

// Stop terminates the tree between ticks. A stopped tree reports Failure.
func (t *Tree) Stop() {
	if t.over {
		return
	}
	t.root.Reset()
	t.over = true
	t.result = Failure
}

func (t *Tree) IsOver() bool { return t.over }
func (t *Tree) Result() Status { return t.result }
func (t *Tree) Subject() *world.Actor { return t.subject }
