package world

type EventType string

const (
	EventTick            EventType = "tick"
	EventLevelStarted    EventType = "level_started"
	EventUnitSpawned     EventType = "unit_spawned"
	EventUnitRemoved     EventType = "unit_removed"
	EventUnitDamaged     EventType = "unit_damaged"
	EventUnitDied        EventType = "unit_died"
	EventCampChanged     EventType = "camp_changed"
	EventUnitArrived     EventType = "unit_arrived"
	EventVariableChanged EventType = "variable_changed"
	EventCommand         EventType = "command"
	EventCustom          EventType = "custom"
)

var knownEvents = map[EventType]struct{}{
	EventTick:            {},
	EventLevelStarted:    {},
	EventUnitSpawned:     {},
	EventUnitRemoved:     {},
	EventUnitDamaged:     {},
	EventUnitDied:        {},
	EventCampChanged:     {},
	EventUnitArrived:     {},
	EventVariableChanged: {},
	EventCommand:         {},
	EventCustom:          {},
}

func IsKnownEvent(t EventType) bool {
	_, ok := knownEvents[t]
	return ok
}

// Event is something that happened in the world during a tick. Unit is the
// subject actor (zero when none); Source is the instigator for damage.
type Event struct {
	Type   EventType `json:"type"`
	Tick   uint64    `json:"tick"`
	Unit   ActorID   `json:"unit,omitempty"`
	Tag    string    `json:"tag,omitempty"`
	Source ActorID   `json:"source,omitempty"`
	Camp   int       `json:"camp,omitempty"`
	Amount int       `json:"amount,omitempty"`
	// Name carries the custom event name, variable name or command kind.
	Name string `json:"name,omitempty"`
}

// Emitter accepts events produced outside the store.
type Emitter interface {
	Emit(ev Event)
}
