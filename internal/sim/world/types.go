// Package world holds the actor registry and spatial capability the
// simulation kernel consumes, plus an in-memory Store implementing both.
package world

import "tactica.ai/internal/sim/fixedmath"

type ActorID uint64

type Actor struct {
	ID   ActorID `json:"id"`
	Tag  string  `json:"tag,omitempty"`
	Kind string  `json:"kind"`
	Camp int     `json:"camp"`

	Pos    fixedmath.Vec2  `json:"pos"`
	Facing fixedmath.Fixed `json:"facing"`
	Speed  fixedmath.Fixed `json:"speed"`

	// Dest is meaningful only while Moving.
	Dest   fixedmath.Vec2 `json:"dest"`
	Moving bool           `json:"moving,omitempty"`

	HP     int             `json:"hp"`
	MaxHP  int             `json:"max_hp"`
	Attack int             `json:"attack"`
	Range  fixedmath.Fixed `json:"range"`

	Target   ActorID `json:"target,omitempty"`
	Behavior string  `json:"behavior,omitempty"`
}

func (a *Actor) Alive() bool { return a != nil && a.HP > 0 }

// HostileTo reports whether two actors are on different camps.
func (a *Actor) HostileTo(o *Actor) bool { return a.Camp != o.Camp }

// SpawnSpec describes a unit to create.
type SpawnSpec struct {
	Tag      string
	Kind     string
	Camp     int
	Pos      fixedmath.Vec2
	Speed    fixedmath.Fixed
	HP       int
	Attack   int
	Range    fixedmath.Fixed
	Behavior string
}

// Region is an axis-aligned rectangle, inclusive on all edges.
type Region struct {
	Min fixedmath.Vec2 `json:"min"`
	Max fixedmath.Vec2 `json:"max"`
}

func (r Region) Contains(p fixedmath.Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Clamp returns the point of r closest to p.
func (r Region) Clamp(p fixedmath.Vec2) fixedmath.Vec2 {
	return fixedmath.Vec2{
		X: fixedmath.Clamp(p.X, r.Min.X, r.Max.X),
		Y: fixedmath.Clamp(p.Y, r.Min.Y, r.Max.Y),
	}
}

// MaxExtent bounds every coordinate, in whole units, of a world without a map.
const MaxExtent = 1 << 24

// Extent is the area positions are held to when no map bounds are set.
func Extent() Region {
	return Region{
		Min: fixedmath.V2(-MaxExtent, -MaxExtent),
		Max: fixedmath.V2(MaxExtent, MaxExtent),
	}
}

// Registry is the actor capability set the kernel mutates through.
type Registry interface {
	Get(id ActorID) *Actor
	ByTag(tag string) *Actor
	All() []*Actor
	ByCamp(camp int) []*Actor
	Spawn(spec SpawnSpec) *Actor
	Remove(id ActorID) bool
	SetCamp(id ActorID, camp int) bool
	Damage(id ActorID, amount int, source ActorID) bool
	MoveTo(id ActorID, dest fixedmath.Vec2) bool
	Stop(id ActorID) bool
}

// Spatial answers region and proximity queries.
type Spatial interface {
	InRegion(r Region) []*Actor
	Nearest(from fixedmath.Vec2, maxDist fixedmath.Fixed, match func(*Actor) bool) *Actor
}
