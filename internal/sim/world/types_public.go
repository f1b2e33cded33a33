package world

import (
	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/scene"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry carries every input of a tick, so replaying the entries in
// order against the same starting scene reproduces each digest.
type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Scenes   []scene.Scene     `json:"scenes,omitempty"`
	Joins    []RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
}

type RecordedJoin struct {
	AgentID string     `json:"agent_id"`
	Name    string     `json:"name"`
	Spawn   [3]float64 `json:"spawn"`
	Yaw     float64    `json:"yaw,omitempty"`
}

type RecordedCommand struct {
	AgentID string          `json:"agent_id"`
	Cmd     protocol.CmdMsg `json:"cmd"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "INTERACTION_BEGIN"
	PropID  string         `json:"prop_id,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Pos     [3]float64     `json:"pos"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StepInput is everything a single tick consumes.
type StepInput struct {
	Scenes   []scene.Scene
	Joins    []JoinRequest
	Leaves   []string
	Commands []CommandEnvelope
}

// AgentView is a read-only copy of an agent's state.
type AgentView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Pos      [3]float64 `json:"pos"`
	Yaw      float64    `json:"yaw"`
	TargetID string     `json:"target_id,omitempty"`
}

// PropView is a read-only copy of a prop's state.
type PropView struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Pos          [3]float64     `json:"pos"`
	Prompt       string         `json:"prompt"`
	Range        float64        `json:"range"`
	Interactable bool           `json:"interactable"`
	Engaged      []string       `json:"engaged,omitempty"`
	State        map[string]any `json:"state,omitempty"`
}
