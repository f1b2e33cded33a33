package bridge

import "interactworld.ai/internal/protocol"

// Status is returned by interactworld.get_status.
type Status struct {
	Connected   bool                 `json:"connected"`
	Paused      bool                 `json:"paused,omitempty"`
	AgentID     string               `json:"agent_id,omitempty"`
	WorldWSURL  string               `json:"world_ws_url"`
	World       protocol.WorldParams `json:"world"`
	LastTick    uint64               `json:"last_tick"`
	Position    *[3]float64          `json:"position,omitempty"`
	Yaw         float64              `json:"yaw"`
	Target      *Target              `json:"target,omitempty"`
	Engaged     []string             `json:"engaged,omitempty"`
	EventCursor uint64               `json:"event_cursor"`
	LastError   string               `json:"last_error,omitempty"`
}

// Target mirrors the last TARGET the world sent for the session's agent.
type Target struct {
	Tick     uint64 `json:"tick"`
	TargetID string `json:"target_id"`
	Kind     string `json:"kind,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

type GetTargetOpts struct {
	WaitChange bool `json:"wait_change"`
	TimeoutMS  int  `json:"timeout_ms"`
}

type TargetResult struct {
	AgentID string  `json:"agent_id"`
	Target  *Target `json:"target"`
}

// Event is one server message kept in the session's event buffer.
type Event struct {
	Cursor  uint64         `json:"cursor"`
	Type    string         `json:"type"`
	Tick    uint64         `json:"tick,omitempty"`
	PropID  string         `json:"prop_id,omitempty"`
	Action  string         `json:"action,omitempty"`
	State   map[string]any `json:"state,omitempty"`
	RefID   string         `json:"ref_id,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

type GetEventsResult struct {
	Events     []Event `json:"events"`
	NextCursor uint64  `json:"next_cursor"`
	// Truncated is set when events after sinceCursor were already evicted.
	Truncated bool `json:"truncated,omitempty"`
}

type CmdArgs struct {
	TargetID string      `json:"target_id,omitempty"`
	Pos      *[3]float64 `json:"pos,omitempty"`
	Yaw      *float64    `json:"yaw,omitempty"`
}

type CmdResult struct {
	Sent    bool   `json:"sent"`
	CmdID   string `json:"cmd_id"`
	AgentID string `json:"agent_id"`
}
