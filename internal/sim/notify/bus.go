// Package notify is the engine's outward notification sink.
package notify

import "sync"

type Kind string

const (
	KindLevelLoaded  Kind = "level_loaded"
	KindLevelStarted Kind = "level_started"
	KindLevelPaused  Kind = "level_paused"
	KindLevelResumed Kind = "level_resumed"
	KindLevelEnded   Kind = "level_ended"
	KindTriggerFired Kind = "trigger_fired"
	KindVictory      Kind = "victory"
	KindDefeat       Kind = "defeat"
	KindUnitSpawned  Kind = "unit_spawned"
	KindUnitRemoved  Kind = "unit_removed"
	KindMessage      Kind = "message"
	KindEffect       Kind = "effect"
	KindSound        Kind = "sound"
	KindCustom       Kind = "custom"
)

type Notification struct {
	Kind    Kind           `json:"kind"`
	Tick    uint64         `json:"tick"`
	Level   string         `json:"level,omitempty"`
	Rule    string         `json:"rule,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Unit    uint64         `json:"unit,omitempty"`
	Name    string         `json:"name,omitempty"`
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Observer func(Notification)

type entry struct {
	id   uint64
	kind Kind // empty: every kind
	fn   Observer
}

// Bus delivers notifications to observers in registration order. Publishing
// with no observers is a no-op.
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn for one kind and returns a function that removes it.
func (b *Bus) Subscribe(kind Kind, fn Observer) (cancel func()) {
	return b.add(kind, fn)
}

// SubscribeAll registers fn for every kind.
func (b *Bus) SubscribeAll(fn Observer) (cancel func()) {
	return b.add("", fn)
}

func (b *Bus) add(kind Kind, fn Observer) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.entries = append(b.entries, entry{id: id, kind: kind, fn: fn})
	return func() { b.remove(id) }
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(n Notification) {
	if b == nil {
		return
	}
	b.mu.Lock()
	snapshot := append([]entry(nil), b.entries...)
	b.mu.Unlock()
	for _, e := range snapshot {
		if e.kind == "" || e.kind == n.Kind {
			e.fn(n)
		}
	}
}

// Recorder is an observer that keeps every notification it sees.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Observe(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.all))
	for i, n := range r.all {
		out[i] = n.Kind
	}
	return out
}
