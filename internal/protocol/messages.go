package protocol

import (
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/trigger"
	"tactica.ai/internal/sim/world"
)

// SUBSCRIBE (client -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// Kinds filters notifications; empty means every kind.
	Kinds    []string `json:"kinds,omitempty"`
	MaxQueue int      `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ClientID        string   `json:"client_id"`
	SessionID       string   `json:"session_id"`
	Level           string   `json:"level"`
	Seed            int32    `json:"seed"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Tick            uint64   `json:"tick"`
	Kinds           []string `json:"kinds,omitempty"`
}

// NOTIFY (server -> client): one engine notification.
type NotifyMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	Notification    notify.Notification `json:"notification"`
	// Dropped counts notifications discarded for this client since the last
	// NOTIFY it received.
	Dropped uint64 `json:"dropped,omitempty"`
}

// COMMAND (client -> server): queued for the next tick.
type CommandMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id,omitempty"`
	Command         command.Command `json:"command"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// STATE_REQ (client -> server)
type StateReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
}

// STATE (server -> client, also served over HTTP): the last committed tick.
type StateMsg struct {
	Type            string                   `json:"type"`
	ProtocolVersion string                   `json:"protocol_version"`
	ReqID           string                   `json:"req_id,omitempty"`
	SessionID       string                   `json:"session_id"`
	Level           string                   `json:"level"`
	Tick            uint64                   `json:"tick"`
	LevelState      string                   `json:"level_state"`
	Digest          string                   `json:"digest"`
	Actors          []world.Actor            `json:"actors"`
	Vars            map[string]trigger.Value `json:"vars"`
	Fired           []string                 `json:"fired,omitempty"`
	EndReason       string                   `json:"end_reason,omitempty"`
}

func NewAck(forID string, tick uint64) AckMsg {
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: forID, Accepted: true, ServerTick: tick}
}

func NewReject(forID, code, msg string, tick uint64) AckMsg {
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: forID, Code: code, Message: msg, ServerTick: tick}
}

// WantsKind reports whether a subscription with kinds should see k.
func WantsKind(kinds []string, k notify.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == string(k) {
			return true
		}
	}
	return false
}
