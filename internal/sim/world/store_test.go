package world

import (
	"testing"

	"tactica.ai/internal/sim/fixedmath"
)

func spawn(s *Store, tag string, camp, x, y int) *Actor {
	return s.Spawn(SpawnSpec{Tag: tag, Kind: "soldier", Camp: camp, Pos: fixedmath.V2(x, y), HP: 10, Speed: fixedmath.FromInt(2)})
}

func TestStoreSequentialIDsAndOrder(t *testing.T) {
	s := NewStore()
	a := spawn(s, "a", 1, 0, 0)
	b := spawn(s, "b", 2, 5, 0)
	c := spawn(s, "c", 1, 9, 0)
	if a.ID != 1 || b.ID != 2 || c.ID != 3 {
		t.Fatalf("ids: %d %d %d", a.ID, b.ID, c.ID)
	}
	if !s.Remove(b.ID) {
		t.Fatalf("remove b failed")
	}
	if s.Remove(b.ID) {
		t.Fatalf("second remove must be a no-op")
	}
	d := spawn(s, "d", 2, 1, 1)
	if d.ID != 4 {
		t.Fatalf("id reuse: %d", d.ID)
	}
	all := s.All()
	if len(all) != 3 || all[0] != a || all[1] != c || all[2] != d {
		t.Fatalf("unexpected order: %+v", all)
	}
	if got := s.ByCamp(1); len(got) != 2 {
		t.Fatalf("ByCamp(1)=%d", len(got))
	}
	if s.ByTag("b") != nil || s.ByTag("d") != d {
		t.Fatalf("tag index stale")
	}
}

func TestDamageKillsAndEmits(t *testing.T) {
	s := NewStore()
	s.SetTick(7)
	a := spawn(s, "a", 1, 0, 0)
	b := spawn(s, "b", 2, 1, 0)
	a.Target = b.ID
	s.DrainEvents()

	s.Damage(b.ID, 4, a.ID)
	s.Damage(b.ID, 100, a.ID)
	if s.Get(b.ID) != nil {
		t.Fatalf("dead actor still registered")
	}
	if a.Target != 0 {
		t.Fatalf("target not cleared on removal")
	}
	evs := s.DrainEvents()
	want := []EventType{EventUnitDamaged, EventUnitDamaged, EventUnitDied, EventUnitRemoved}
	if len(evs) != len(want) {
		t.Fatalf("events=%+v", evs)
	}
	for i, ev := range evs {
		if ev.Type != want[i] || ev.Tick != 7 {
			t.Fatalf("event %d = %+v want %s@7", i, ev, want[i])
		}
	}
	if evs[1].Amount != 100 || evs[2].Source != a.ID {
		t.Fatalf("event payloads: %+v", evs)
	}
}

func TestIntegrateMovesAndArrives(t *testing.T) {
	s := NewStore()
	a := spawn(s, "a", 1, 0, 0)
	s.MoveTo(a.ID, fixedmath.V2(0, 5))
	s.DrainEvents()
	s.Integrate()
	if a.Pos != fixedmath.V2(0, 2) || !a.Moving {
		t.Fatalf("after 1 step pos=%v moving=%v", a.Pos, a.Moving)
	}
	if a.Facing != fixedmath.Deg90 {
		t.Fatalf("facing=%v", a.Facing.Float())
	}
	s.Integrate()
	s.Integrate()
	if a.Pos != fixedmath.V2(0, 5) || a.Moving {
		t.Fatalf("after 3 steps pos=%v moving=%v", a.Pos, a.Moving)
	}
	evs := s.DrainEvents()
	if len(evs) != 1 || evs[0].Type != EventUnitArrived {
		t.Fatalf("events=%+v", evs)
	}
}

func TestNearestAndRegion(t *testing.T) {
	s := NewStore()
	me := spawn(s, "me", 1, 0, 0)
	spawn(s, "far", 2, 10, 0)
	near := spawn(s, "near", 2, 3, 4)
	spawn(s, "tie", 2, -3, 4)
	spawn(s, "friend", 1, 1, 0)

	enemy := func(a *Actor) bool { return a.HostileTo(me) }
	if got := s.Nearest(me.Pos, 0, enemy); got != near {
		t.Fatalf("nearest=%+v want lower id on tie", got)
	}
	if got := s.Nearest(me.Pos, fixedmath.FromInt(4), enemy); got != nil {
		t.Fatalf("nearest within 4 should be nil, got %+v", got)
	}
	r := Region{Min: fixedmath.V2(-1, -1), Max: fixedmath.V2(3, 4)}
	if got := s.InRegion(r); len(got) != 3 {
		t.Fatalf("InRegion=%d want 3 (edges inclusive)", len(got))
	}
}

func TestPositionsHeldToBounds(t *testing.T) {
	s := NewStore()
	far := spawn(s, "far", 1, MaxExtent+5, -MaxExtent-5)
	if far.Pos != fixedmath.V2(MaxExtent, -MaxExtent) {
		t.Fatalf("unbounded spawn at %+v", far.Pos)
	}

	s.SetBounds(Region{Max: fixedmath.V2(40, 40)})
	a := spawn(s, "a", 1, 10, 10)
	s.MoveTo(a.ID, fixedmath.V2(60000, -3))
	if a.Dest != fixedmath.V2(40, 0) || !a.Moving {
		t.Fatalf("dest=%+v moving=%v", a.Dest, a.Moving)
	}
	for i := 0; i < 40; i++ {
		s.Integrate()
	}
	if a.Pos != fixedmath.V2(40, 0) || a.Moving {
		t.Fatalf("pos=%+v moving=%v", a.Pos, a.Moving)
	}
	s.Place(a.ID, fixedmath.V2(-7, 99))
	if a.Pos != fixedmath.V2(0, 40) {
		t.Fatalf("placed at %+v", a.Pos)
	}
}

func TestDigestStableAndSensitive(t *testing.T) {
	build := func() *Store {
		s := NewStore()
		spawn(s, "a", 1, 0, 0)
		spawn(s, "b", 2, 5, 5)
		return s
	}
	sum := func(s *Store) string {
		d := NewDigest(3)
		s.WriteDigest(d)
		return d.Sum()
	}
	s1, s2 := build(), build()
	if sum(s1) != sum(s2) {
		t.Fatalf("identical stores hash differently")
	}
	s2.Damage(2, 1, 0)
	if sum(s1) == sum(s2) {
		t.Fatalf("digest ignored hp change")
	}
}

func TestExportImport(t *testing.T) {
	s := NewStore()
	spawn(s, "a", 1, 0, 0)
	spawn(s, "b", 2, 5, 5)
	s.Remove(1)
	st := s.Export()

	r := NewStore()
	r.Import(st)
	if r.Len() != 1 || r.ByTag("b") == nil {
		t.Fatalf("import lost actors: %+v", r.Export())
	}
	if n := r.Spawn(SpawnSpec{Kind: "x", HP: 1}); n.ID != 3 {
		t.Fatalf("next id after import=%d want 3", n.ID)
	}
}
