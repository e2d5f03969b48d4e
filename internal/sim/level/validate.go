package level

import (
	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/simerr"
)

// Validate checks references that a schema cannot express: unique tags and
// rule ids, known behaviors and regions, units inside the map. Type names of
// nodes, conditions and actions are checked by the engines that build them.
func Validate(lv *Level, m *Map) error {
	if lv == nil {
		return simerr.Configf("level: nil level")
	}
	if m != nil && lv.Map != "" && lv.Map != m.ID {
		return simerr.Configf("level %s: wants map %q, got %q", lv.ID, lv.Map, m.ID)
	}
	if m == nil && lv.Map != "" {
		return simerr.Configf("level %s: map %q not provided", lv.ID, lv.Map)
	}

	tags := map[string]bool{}
	for i, u := range lv.Units {
		if u.Tag != "" {
			if tags[u.Tag] {
				return simerr.Configf("level %s: duplicate unit tag %q", lv.ID, u.Tag)
			}
			tags[u.Tag] = true
		}
		if err := checkBehavior(lv, u.Behavior); err != nil {
			return err
		}
		if m != nil && !m.Bounds().Contains(fixedmath.Vec2{X: fixedmath.FromFloat(u.X), Y: fixedmath.FromFloat(u.Y)}) {
			return simerr.Configf("level %s: unit %d (%s) outside map %s", lv.ID, i, u.Kind, m.ID)
		}
	}

	ids := map[string]bool{}
	for _, r := range lv.Triggers {
		if ids[r.ID] {
			return simerr.Configf("level %s: duplicate trigger id %q", lv.ID, r.ID)
		}
		ids[r.ID] = true
		for _, c := range r.Conditions {
			if c.Region != "" {
				if err := checkRegion(lv, m, c.Region); err != nil {
					return err
				}
			}
		}
		if err := checkActions(lv, r.Actions); err != nil {
			return err
		}
	}
	return nil
}

func checkActions(lv *Level, actions []Action) error {
	for _, a := range actions {
		if err := checkBehavior(lv, a.Behavior); err != nil {
			return err
		}
		if err := checkActions(lv, a.Actions); err != nil {
			return err
		}
	}
	return nil
}

func checkBehavior(lv *Level, name string) error {
	if name == "" {
		return nil
	}
	if _, ok := lv.Behaviors[name]; !ok {
		return simerr.Configf("level %s: unknown behavior %q", lv.ID, name)
	}
	return nil
}

func checkRegion(lv *Level, m *Map, name string) error {
	if m == nil {
		return simerr.Configf("level %s: region %q used without a map", lv.ID, name)
	}
	if _, ok := m.Regions[name]; !ok {
		return simerr.Configf("level %s: unknown region %q", lv.ID, name)
	}
	return nil
}
