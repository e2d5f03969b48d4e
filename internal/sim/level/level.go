// Package level loads level and map documents. Both are accepted as JSON or
// YAML and are validated against embedded JSON Schemas before decoding.
package level

import (
	"tactica.ai/internal/sim/bt"
	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/world"
)

type Level struct {
	ID        string              `json:"id"`
	Name      string              `json:"name,omitempty"`
	Map       string              `json:"map,omitempty"`
	Seed      int32               `json:"seed,omitempty"`
	Variables map[string]any      `json:"variables,omitempty"`
	Units     []Unit              `json:"units,omitempty"`
	Behaviors map[string]Behavior `json:"behaviors,omitempty"`
	Triggers  []Rule              `json:"triggers,omitempty"`
}

// Unit is a starting unit. Numbers arrive as decimals and are converted to
// fixed point once, here.
type Unit struct {
	Tag      string  `json:"tag,omitempty"`
	Kind     string  `json:"kind"`
	Camp     int     `json:"camp,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	HP       int     `json:"hp,omitempty"`
	Attack   int     `json:"attack,omitempty"`
	Range    float64 `json:"range,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Behavior string  `json:"behavior,omitempty"`
}

func (u Unit) Spec() world.SpawnSpec {
	return world.SpawnSpec{
		Tag:      u.Tag,
		Kind:     u.Kind,
		Camp:     u.Camp,
		Pos:      fixedmath.Vec2{X: fixedmath.FromFloat(u.X), Y: fixedmath.FromFloat(u.Y)},
		Speed:    fixedmath.FromFloat(u.Speed),
		HP:       u.HP,
		Attack:   u.Attack,
		Range:    fixedmath.FromFloat(u.Range),
		Behavior: u.Behavior,
	}
}

// Behavior is a named behavior tree. A looping tree is restarted on the tick
// after it finishes.
type Behavior struct {
	Loop bool   `json:"loop,omitempty"`
	Root bt.Def `json:"root"`
}

type Rule struct {
	ID         string      `json:"id"`
	Event      string      `json:"event"`
	Name       string      `json:"name,omitempty"`
	FireOnce   bool        `json:"fire_once,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	Actions    []Action    `json:"actions"`
}

// Condition is the union of every condition's fields; Type selects which
// ones are read.
type Condition struct {
	Type    string  `json:"type"`
	Tag     string  `json:"tag,omitempty"`
	ID      uint64  `json:"id,omitempty"`
	Camp    *int    `json:"camp,omitempty"`
	Op      string  `json:"op,omitempty"`
	Value   any     `json:"value,omitempty"`
	Name    string  `json:"name,omitempty"`
	Region  string  `json:"region,omitempty"`
	Percent float64 `json:"percent,omitempty"`
}

// Action is the union of every action's fields; Type selects which ones are read.
type Action struct {
	Type     string         `json:"type"`
	Tag      string         `json:"tag,omitempty"`
	Kind     string         `json:"kind,omitempty"`
	Camp     *int           `json:"camp,omitempty"`
	X        *float64       `json:"x,omitempty"`
	Y        *float64       `json:"y,omitempty"`
	HP       int            `json:"hp,omitempty"`
	Attack   int            `json:"attack,omitempty"`
	Range    float64        `json:"range,omitempty"`
	Speed    float64        `json:"speed,omitempty"`
	Behavior string         `json:"behavior,omitempty"`
	Name     string         `json:"name,omitempty"`
	Op       string         `json:"op,omitempty"`
	Value    any            `json:"value,omitempty"`
	Text     string         `json:"text,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Ticks    int            `json:"ticks,omitempty"`
	Actions  []Action       `json:"actions,omitempty"`
	Source   string         `json:"source,omitempty"`
	TaskVar  string         `json:"task_var,omitempty"`
}

type Map struct {
	ID      string          `json:"id"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Regions map[string]Rect `json:"regions,omitempty"`
}

type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (r Rect) Region() world.Region {
	return world.Region{
		Min: fixedmath.Vec2{X: fixedmath.FromFloat(r.MinX), Y: fixedmath.FromFloat(r.MinY)},
		Max: fixedmath.Vec2{X: fixedmath.FromFloat(r.MaxX), Y: fixedmath.FromFloat(r.MaxY)},
	}
}

// Bounds is the whole map as a region.
func (m *Map) Bounds() world.Region {
	return world.Region{Max: fixedmath.V2(m.Width, m.Height)}
}
