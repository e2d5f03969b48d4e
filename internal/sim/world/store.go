package world

import (
	"sort"

	"tactica.ai/internal/sim/fixedmath"
)

// Store is the in-memory reference Registry and Spatial. Actor ids are
// assigned sequentially and iteration is always in ascending id order.
type Store struct {
	actors map[ActorID]*Actor
	order  []ActorID
	tags   map[string]ActorID
	nextID ActorID

	tick   uint64
	events []Event

	bounds Region
}

func NewStore() *Store {
	return &Store{
		actors: map[ActorID]*Actor{},
		tags:   map[string]ActorID{},
		nextID: 1,
		bounds: Extent(),
	}
}

// SetBounds holds every position the store accepts to r. Actors already
// outside r are left where they are until they next move.
func (s *Store) SetBounds(r Region) { s.bounds = r }

func (s *Store) Bounds() Region { return s.bounds }

// SetTick stamps subsequently emitted events.
func (s *Store) SetTick(tick uint64) { s.tick = tick }

func (s *Store) Emit(ev Event) {
	ev.Tick = s.tick
	s.events = append(s.events, ev)
}

// DrainEvents returns the buffered events in emission order and clears the buffer.
func (s *Store) DrainEvents() []Event {
	out := s.events
	s.events = nil
	return out
}

func (s *Store) Len() int { return len(s.order) }

func (s *Store) Get(id ActorID) *Actor { return s.actors[id] }

func (s *Store) ByTag(tag string) *Actor {
	if tag == "" {
		return nil
	}
	id, ok := s.tags[tag]
	if !ok {
		return nil
	}
	return s.actors[id]
}

func (s *Store) All() []*Actor {
	out := make([]*Actor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.actors[id])
	}
	return out
}

func (s *Store) ByCamp(camp int) []*Actor {
	var out []*Actor
	for _, id := range s.order {
		if a := s.actors[id]; a.Camp == camp {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Spawn(spec SpawnSpec) *Actor {
	hp := spec.HP
	if hp <= 0 {
		hp = 1
	}
	a := &Actor{
		ID:       s.nextID,
		Tag:      spec.Tag,
		Kind:     spec.Kind,
		Camp:     spec.Camp,
		Pos:      s.bounds.Clamp(spec.Pos),
		Speed:    spec.Speed,
		HP:       hp,
		MaxHP:    hp,
		Attack:   spec.Attack,
		Range:    spec.Range,
		Behavior: spec.Behavior,
	}
	s.nextID++
	s.insert(a)
	s.Emit(Event{Type: EventUnitSpawned, Unit: a.ID, Tag: a.Tag, Camp: a.Camp})
	return a
}

func (s *Store) insert(a *Actor) {
	s.actors[a.ID] = a
	// ids only grow, so appending keeps order sorted
	s.order = append(s.order, a.ID)
	if a.Tag != "" {
		s.tags[a.Tag] = a.ID
	}
}

// Remove deletes an actor. Removing an unknown id is a no-op returning false.
func (s *Store) Remove(id ActorID) bool {
	a := s.actors[id]
	if a == nil {
		return false
	}
	delete(s.actors, id)
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	if i < len(s.order) && s.order[i] == id {
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
	if a.Tag != "" && s.tags[a.Tag] == id {
		delete(s.tags, a.Tag)
	}
	for _, o := range s.actors {
		if o.Target == id {
			o.Target = 0
		}
	}
	s.Emit(Event{Type: EventUnitRemoved, Unit: id, Tag: a.Tag, Camp: a.Camp})
	return true
}

func (s *Store) SetCamp(id ActorID, camp int) bool {
	a := s.actors[id]
	if a == nil {
		return false
	}
	if a.Camp == camp {
		return true
	}
	a.Camp = camp
	if t := s.actors[a.Target]; t != nil && !a.HostileTo(t) {
		a.Target = 0
	}
	s.Emit(Event{Type: EventCampChanged, Unit: id, Tag: a.Tag, Camp: camp})
	return true
}

// Damage lowers hp. An actor reaching zero hp dies and is removed.
func (s *Store) Damage(id ActorID, amount int, source ActorID) bool {
	a := s.actors[id]
	if a == nil || amount <= 0 {
		return false
	}
	a.HP -= amount
	if a.HP < 0 {
		a.HP = 0
	}
	s.Emit(Event{Type: EventUnitDamaged, Unit: id, Tag: a.Tag, Source: source, Camp: a.Camp, Amount: amount})
	if a.HP == 0 {
		s.Emit(Event{Type: EventUnitDied, Unit: id, Tag: a.Tag, Source: source, Camp: a.Camp})
		s.Remove(id)
	}
	return true
}

func (s *Store) MoveTo(id ActorID, dest fixedmath.Vec2) bool {
	a := s.actors[id]
	if a == nil {
		return false
	}
	dest = s.bounds.Clamp(dest)
	if a.Pos == dest {
		a.Moving = false
		return true
	}
	a.Dest = dest
	a.Moving = true
	return true
}

// Place teleports an actor and cancels any movement.
func (s *Store) Place(id ActorID, pos fixedmath.Vec2) bool {
	a := s.actors[id]
	if a == nil {
		return false
	}
	a.Pos = s.bounds.Clamp(pos)
	a.Moving = false
	return true
}

func (s *Store) Stop(id ActorID) bool {
	a := s.actors[id]
	if a == nil {
		return false
	}
	a.Moving = false
	return true
}

func (s *Store) InRegion(r Region) []*Actor {
	var out []*Actor
	for _, id := range s.order {
		if a := s.actors[id]; r.Contains(a.Pos) {
			out = append(out, a)
		}
	}
	return out
}

// Nearest returns the closest matching actor within maxDist. Ties go to the
// lower id. A non-positive maxDist means unbounded.
func (s *Store) Nearest(from fixedmath.Vec2, maxDist fixedmath.Fixed, match func(*Actor) bool) *Actor {
	var best *Actor
	var bestDist fixedmath.Fixed
	for _, id := range s.order {
		a := s.actors[id]
		if match != nil && !match(a) {
			continue
		}
		d := from.Dist(a.Pos)
		if maxDist > 0 && d > maxDist {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}

// Integrate advances every moving actor by its speed, in ascending id order,
// and emits unit_arrived on arrival.
func (s *Store) Integrate() {
	for _, id := range s.order {
		a := s.actors[id]
		if !a.Moving {
			continue
		}
		if a.Speed <= 0 {
			continue
		}
		delta := a.Dest.Sub(a.Pos)
		if !delta.IsZero() {
			a.Facing = delta.Heading()
		}
		pos, arrived := a.Pos.StepToward(a.Dest, a.Speed)
		a.Pos = pos
		if arrived {
			a.Moving = false
			s.Emit(Event{Type: EventUnitArrived, Unit: a.ID, Tag: a.Tag, Camp: a.Camp})
		}
	}
}

// State is the serializable content of a Store.
type State struct {
	NextID ActorID `json:"next_id"`
	Actors []Actor `json:"actors"`
}

func (s *Store) Export() State {
	out := State{NextID: s.nextID, Actors: make([]Actor, 0, len(s.order))}
	for _, id := range s.order {
		out.Actors = append(out.Actors, *s.actors[id])
	}
	return out
}

// Import replaces the store content. Pending events are dropped.
func (s *Store) Import(st State) {
	s.actors = map[ActorID]*Actor{}
	s.tags = map[string]ActorID{}
	s.order = s.order[:0]
	s.events = nil
	actors := append([]Actor(nil), st.Actors...)
	sort.Slice(actors, func(i, j int) bool { return actors[i].ID < actors[j].ID })
	for i := range actors {
		a := actors[i]
		s.insert(&a)
	}
	s.nextID = st.NextID
	if s.nextID == 0 {
		s.nextID = 1
	}
}
