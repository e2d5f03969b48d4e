// Package bt is the behavior tree engine. Trees are ticked once per fixed step
// and every decision goes through fixed math and the session RNG.
package bt

import (
	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/world"
)

type Status uint8

const (
	Running Status = iota
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "running"
	}
}

// Vars exposes numeric level variables to conditions.
type Vars interface {
	Number(name string) (fixedmath.Fixed, bool)
}

// Context is what a node sees during a tick. Self is the tree's subject.
type Context struct {
	Tick    uint64
	Self    *world.Actor
	World   world.Registry
	Spatial world.Spatial
	Rand    *fixedmath.Rand
	Vars    Vars
}

type Node interface {
	Tick(ctx *Context) Status
	// Reset clears node-local progress so the next Tick starts fresh.
	Reset()
}

// Sequence runs its current child once per tick. A successful child advances
// the cursor; the sequence succeeds after the last child succeeds.
type Sequence struct {
	children []Node
	cur      int
}

func NewSequence(children ...Node) *Sequence { return &Sequence{children: children} }

func (s *Sequence) Tick(ctx *Context) Status {
	if len(s.children) == 0 {
		return Success
	}
	switch s.children[s.cur].Tick(ctx) {
	case Running:
		return Running
	case Failure:
		s.Reset()
		return Failure
	}
	s.cur++
	if s.cur == len(s.children) {
		s.Reset()
		return Success
	}
	return Running
}

func (s *Sequence) Reset() {
	s.cur = 0
	for _, c := range s.children {
		c.Reset()
	}
}

// Selector is the mirror of Sequence: the first success wins, a failure
// moves on to the next child.
type Selector struct {
	children []Node
	cur      int
}

func NewSelector(children ...Node) *Selector { return &Selector{children: children} }

func (s *Selector) Tick(ctx *Context) Status {
	if len(s.children) == 0 {
		return Failure
	}
	switch s.children[s.cur].Tick(ctx) {
	case Running:
		return Running
	case Success:
		s.Reset()
		return Success
	}
	s.cur++
	if s.cur == len(s.children) {
		s.Reset()
		return Failure
	}
	return Running
}

func (s *Selector) Reset() {
	s.cur = 0
	for _, c := range s.children {
		c.Reset()
	}
}
