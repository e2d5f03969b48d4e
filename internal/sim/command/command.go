// Package command is the player input model. Commands are the only outside
// influence on a session; a session replayed with the same commands per tick
// reproduces the same state.
package command

import (
	"fmt"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/world"
)

type Kind string

const (
	KindMove    Kind = "move"
	KindAttack  Kind = "attack"
	KindStop    Kind = "stop"
	KindSpawn   Kind = "spawn"
	KindRemove  Kind = "remove"
	KindSetCamp Kind = "set_camp"
	// KindSignal raises a custom world event that trigger rules can match by name.
	KindSignal Kind = "signal"

	// Level controls are applied by the session, not the world.
	KindPause  Kind = "pause"
	KindResume Kind = "resume"
	KindEnd    Kind = "end"
)

// IsControl reports whether k drives the level state machine.
func (k Kind) IsControl() bool {
	return k == KindPause || k == KindResume || k == KindEnd
}

// Command is one player instruction. Positions are fixed point so that the
// recorded form replays bit-exactly.
type Command struct {
	Kind   Kind          `json:"kind"`
	Actor  world.ActorID `json:"actor,omitempty"`
	Target world.ActorID `json:"target,omitempty"`

	Pos  fixedmath.Vec2 `json:"pos,omitempty"`
	Camp int            `json:"camp,omitempty"`

	// spawn
	Tag      string          `json:"tag,omitempty"`
	Unit     string          `json:"unit,omitempty"`
	HP       int             `json:"hp,omitempty"`
	Attack   int             `json:"attack,omitempty"`
	Range    fixedmath.Fixed `json:"range,omitempty"`
	Speed    fixedmath.Fixed `json:"speed,omitempty"`
	Behavior string          `json:"behavior,omitempty"`

	// signal name or end reason
	Name string `json:"name,omitempty"`
}

// Validate checks the command's shape. It does not look at the world.
func (c Command) Validate() error {
	switch c.Kind {
	case KindMove, KindStop, KindRemove, KindSetCamp:
		if c.Actor == 0 {
			return fmt.Errorf("%s: missing actor", c.Kind)
		}
	case KindAttack:
		if c.Actor == 0 || c.Target == 0 {
			return fmt.Errorf("attack: missing actor or target")
		}
		if c.Actor == c.Target {
			return fmt.Errorf("attack: actor targets itself")
		}
	case KindSpawn:
		if c.Unit == "" {
			return fmt.Errorf("spawn: missing unit kind")
		}
		if c.HP < 0 || c.Attack < 0 || c.Range < 0 || c.Speed < 0 {
			return fmt.Errorf("spawn: negative stat")
		}
	case KindSignal:
		if c.Name == "" {
			return fmt.Errorf("signal: missing name")
		}
	case KindPause, KindResume, KindEnd:
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// Apply mutates the world for a non-control command and emits a command
// event. A command naming a missing actor is dropped and reports false:
// the actor may have died since the command was issued.
func Apply(reg world.Registry, em world.Emitter, c Command) bool {
	var subject *world.Actor
	if c.Actor != 0 {
		subject = reg.Get(c.Actor)
		if subject == nil {
			return false
		}
	}
	switch c.Kind {
	case KindMove:
		subject.Target = 0
		reg.MoveTo(c.Actor, c.Pos)
	case KindAttack:
		t := reg.Get(c.Target)
		if t == nil || !subject.HostileTo(t) {
			return false
		}
		subject.Target = t.ID
	case KindStop:
		subject.Target = 0
		reg.Stop(c.Actor)
	case KindSpawn:
		if c.Tag != "" && reg.ByTag(c.Tag) != nil {
			return false
		}
		a := reg.Spawn(world.SpawnSpec{
			Tag: c.Tag, Kind: c.Unit, Camp: c.Camp, Pos: c.Pos,
			Speed: c.Speed, HP: c.HP, Attack: c.Attack, Range: c.Range, Behavior: c.Behavior,
		})
		subject = a
	case KindRemove:
		reg.Remove(c.Actor)
	case KindSetCamp:
		reg.SetCamp(c.Actor, c.Camp)
	case KindSignal:
	default:
		return false
	}
	ev := world.Event{Type: world.EventCommand, Name: string(c.Kind)}
	if c.Kind == KindSignal {
		ev = world.Event{Type: world.EventCustom, Name: c.Name}
	}
	if subject != nil {
		ev.Unit, ev.Tag, ev.Camp = subject.ID, subject.Tag, subject.Camp
	}
	em.Emit(ev)
	return true
}
