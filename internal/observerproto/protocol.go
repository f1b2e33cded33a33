package observerproto

// Version is the observer protocol version (separate from the agent WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryTicks thins the feed to one TICK per N ticks.
	EveryTicks int `json:"every_ticks,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz      int     `json:"tick_rate_hz"`
	CellSize        float64 `json:"cell_size"`
	DetectionRadius float64 `json:"detection_radius"`
	ConeEnabled     bool    `json:"cone_enabled"`
	ConeMinDot      float64 `json:"cone_min_dot,omitempty"`
}

// Server -> Client. Sent after a tick is stepped.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Agents []AgentState `json:"agents"`
	Props  []PropState  `json:"props"`
	Joins  []JoinInfo   `json:"joins,omitempty"`
	Leaves []string     `json:"leaves,omitempty"`
	// Audits carries interaction effects and prop removals since the last TICK sent.
	Audits []AuditEntry `json:"audits,omitempty"`
}

type JoinInfo struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type AgentState struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Pos      [3]float64 `json:"pos"`
	Yaw      float64    `json:"yaw"`
	TargetID string     `json:"target_id,omitempty"`
}

type PropState struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Pos          [3]float64     `json:"pos"`
	Prompt       string         `json:"prompt"`
	Interactable bool           `json:"interactable"`
	Engaged      []string       `json:"engaged,omitempty"`
	State        map[string]any `json:"state,omitempty"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	PropID string `json:"prop_id"`
	Reason string `json:"reason,omitempty"`
}
