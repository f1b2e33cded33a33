package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Spawn           *[3]float64       `json:"spawn,omitempty"`
	Yaw             float64           `json:"yaw,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id,omitempty"`
	AgentID         string      `json:"agent_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	WorldID         string  `json:"world_id"`
	TickRateHz      int     `json:"tick_rate_hz"`
	DetectionRadius float64 `json:"detection_radius"`
	ConeEnabled     bool    `json:"cone_enabled"`
	ConeMinDot      float64 `json:"cone_min_dot,omitempty"`
}

// CMD (client -> server). BEGIN/END act on TargetID, or on the agent's
// current target when TargetID is empty. MOVE sets position and yaw.
type CmdMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ID              string      `json:"id,omitempty"`
	Cmd             string      `json:"cmd"`
	TargetID        string      `json:"target_id,omitempty"`
	Pos             *[3]float64 `json:"pos,omitempty"`
	Yaw             *float64    `json:"yaw,omitempty"`
}

// TARGET (server -> client). Sent when the agent's target changes, and again
// when the current target's prompt text changes. Empty TargetID means none.
type TargetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`
	TargetID        string `json:"target_id"`
	Kind            string `json:"kind,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
}

// INTERACTION (server -> client). Sent to the interactor whose interaction
// with a prop opened or closed.
type InteractionMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	AgentID         string         `json:"agent_id"`
	PropID          string         `json:"prop_id"`
	Action          string         `json:"action"`
	State           map[string]any `json:"state,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RefID           string `json:"ref_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(refID, code, message string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RefID:           refID,
		Code:            code,
		Message:         message,
	}
}
