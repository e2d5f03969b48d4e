package simtest

import (
	"testing"

	"tactica.ai/internal/sim/level"
)

// SkirmishLevel is a small fight that exercises every subsystem: looping
// behavior trees with random branches, movement, damage, rule chains, delayed
// spawns, a scripted rule and victory or defeat.
const SkirmishLevel = `{
  "id": "skirmish",
  "map": "field",
  "seed": 20240611,
  "variables": {"kills": 0, "score": 0, "phase": "opening"},
  "units": [
    {"tag": "hero", "kind": "knight", "camp": 1, "x": 2, "y": 2, "hp": 30, "attack": 3, "range": 1.5, "speed": 0.5, "behavior": "hunter"},
    {"tag": "orc1", "kind": "orc", "camp": 2, "x": 10, "y": 2, "hp": 6, "attack": 1, "range": 1.5, "speed": 0.25, "behavior": "brawler"},
    {"tag": "orc2", "kind": "orc", "camp": 2, "x": 10, "y": 6, "hp": 6, "attack": 1, "range": 1.5, "speed": 0.25, "behavior": "brawler"}
  ],
  "behaviors": {
    "hunter": {"loop": true, "root": {"type": "selector", "children": [
      {"type": "sequence", "children": [
        {"type": "find_target", "data": {"range": 40}},
        {"type": "move_to_target"},
        {"type": "attack"}
      ]},
      {"type": "idle"}
    ]}},
    "brawler": {"loop": true, "root": {"type": "sequence", "children": [
      {"type": "chance", "data": {"p": 0.5}},
      {"type": "find_target", "data": {"range": 40}},
      {"type": "move_to_target"},
      {"type": "attack"}
    ]}}
  },
  "triggers": [
    {"id": "intro", "event": "level_started", "fire_once": true, "actions": [
      {"type": "show_message", "text": "hold the field"},
      {"type": "set_variable", "name": "phase", "value": "fight"}
    ]},
    {"id": "kill", "event": "unit_died", "conditions": [{"type": "camp", "camp": 2}], "actions": [
      {"type": "set_variable", "name": "kills", "op": "add", "value": 1},
      {"type": "play_effect", "name": "smoke"}
    ]},
    {"id": "reinforce", "event": "tick", "fire_once": true, "conditions": [{"type": "variable", "name": "kills", "op": ">=", "value": 1}], "actions": [
      {"type": "delay", "ticks": 20, "actions": [
        {"type": "spawn_unit", "tag": "late", "kind": "orc", "camp": 2, "x": 30, "y": 30, "hp": 4, "attack": 1, "range": 1.5, "speed": 0.25, "behavior": "brawler"}
      ]}
    ]},
    {"id": "bonus", "event": "custom", "name": "bonus", "actions": [
      {"type": "script", "text": "sim.set('score', sim.get('score') + sim.random_int(1, 10))"}
    ]},
    {"id": "base", "event": "unit_arrived", "conditions": [{"type": "in_region", "region": "base"}], "actions": [
      {"type": "play_sound", "name": "horn"}
    ]},
    {"id": "win", "event": "tick", "fire_once": true, "conditions": [
      {"type": "variable", "name": "kills", "op": ">=", "value": 3},
      {"type": "unit_count", "camp": 2, "op": "==", "value": 0}
    ], "actions": [{"type": "victory", "payload": {"stars": 3}}]},
    {"id": "lose", "event": "unit_died", "conditions": [{"type": "unit_id", "tag": "hero"}], "actions": [
      {"type": "defeat", "reason": "hero fell"}
    ]}
  ]
}`

const FieldMap = `{"id": "field", "width": 40, "height": 40, "regions": {"base": {"min_x": 0, "min_y": 0, "max_x": 6, "max_y": 6}}}`

// Skirmish parses the fixture level and map.
func Skirmish(t testing.TB) (*level.Level, *level.Map) {
	t.Helper()
	lv, err := level.ParseLevel([]byte(SkirmishLevel), level.FormatJSON)
	if err != nil {
		t.Fatalf("parse level: %v", err)
	}
	m, err := level.ParseMap([]byte(FieldMap), level.FormatJSON)
	if err != nil {
		t.Fatalf("parse map: %v", err)
	}
	return lv, m
}
