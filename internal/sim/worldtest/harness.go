package worldtest

import (
	"encoding/json"
	"testing"

	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/scene"
	world "interactworld.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step()/StepFor() issues CMD via StepOnce()
// - Per-agent Out channels carry TARGET/INTERACTION/ERROR JSON
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	DefaultAgentID string

	sessions map[string]*session
}

func NewHarness(t *testing.T, cfg world.WorldConfig, sc scene.Scene, agentName string, spawn [3]float64, yaw float64) *Harness {
	t.Helper()

	w, err := world.NewWithScene(cfg, sc)
	if err != nil {
		t.Fatalf("world.NewWithScene: %v", err)
	}
	h := &Harness{
		T:        t,
		W:        w,
		sessions: map[string]*session{},
	}
	h.DefaultAgentID = h.Join(agentName, spawn, yaw)
	return h
}

type session struct {
	AgentID string
	Out     chan []byte

	Targets      []protocol.TargetMsg
	Interactions []protocol.InteractionMsg
	Errors       []protocol.ErrorMsg
}

func (h *Harness) Join(agentName string, spawn [3]float64, yaw float64) string {
	h.T.Helper()

	out := make(chan []byte, 64)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		Name:  agentName,
		Spawn: spawn,
		Yaw:   yaw,
		Out:   out,
		Resp:  resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.AgentID == "" {
		h.T.Fatalf("join returned empty agent id")
	}
	s := &session{AgentID: jr.Welcome.AgentID, Out: out}
	h.sessions[s.AgentID] = s
	h.drainAll()
	return s.AgentID
}

func (h *Harness) Leave(agentID string) {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, []string{agentID}, nil)
	h.drainAll()
}

// Step sends cmds for the default agent and advances one tick.
func (h *Harness) Step(cmds ...protocol.CmdMsg) string {
	return h.StepFor(h.DefaultAgentID, cmds...)
}

func (h *Harness) StepFor(agentID string, cmds ...protocol.CmdMsg) string {
	h.T.Helper()
	envs := make([]world.CommandEnvelope, 0, len(cmds))
	for _, c := range cmds {
		envs = append(envs, world.CommandEnvelope{AgentID: agentID, Cmd: c})
	}
	_, digest := h.W.StepOnce(nil, nil, envs)
	h.drainAll()
	return digest
}

func (h *Harness) StepNoop() string {
	h.T.Helper()
	_, digest := h.W.StepOnce(nil, nil, nil)
	h.drainAll()
	return digest
}

func (h *Harness) StepScene(sc scene.Scene) string {
	h.T.Helper()
	_, digest := h.W.Step(world.StepInput{Scenes: []scene.Scene{sc}})
	h.drainAll()
	return digest
}

func (h *Harness) Targets(agentID string) []protocol.TargetMsg {
	return h.session(agentID).Targets
}

func (h *Harness) LastTarget(agentID string) (protocol.TargetMsg, bool) {
	ts := h.session(agentID).Targets
	if len(ts) == 0 {
		return protocol.TargetMsg{}, false
	}
	return ts[len(ts)-1], true
}

func (h *Harness) Interactions(agentID string) []protocol.InteractionMsg {
	return h.session(agentID).Interactions
}

func (h *Harness) Errors(agentID string) []protocol.ErrorMsg {
	return h.session(agentID).Errors
}

// ClearMessages forgets everything received so far.
func (h *Harness) ClearMessages() {
	for _, s := range h.sessions {
		s.Targets = nil
		s.Interactions = nil
		s.Errors = nil
	}
}

func (h *Harness) session(agentID string) *session {
	h.T.Helper()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return s
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		for {
			select {
			case b := <-s.Out:
				h.decode(s, b)
				continue
			default:
			}
			break
		}
	}
}

func (h *Harness) decode(s *session, b []byte) {
	h.T.Helper()
	base, err := protocol.DecodeBase(b)
	if err != nil {
		h.T.Fatalf("decode message: %v", err)
	}
	switch base.Type {
	case protocol.TypeTarget:
		var m protocol.TargetMsg
		if err := json.Unmarshal(b, &m); err != nil {
			h.T.Fatalf("unmarshal TARGET: %v", err)
		}
		s.Targets = append(s.Targets, m)
	case protocol.TypeInteraction:
		var m protocol.InteractionMsg
		if err := json.Unmarshal(b, &m); err != nil {
			h.T.Fatalf("unmarshal INTERACTION: %v", err)
		}
		s.Interactions = append(s.Interactions, m)
	case protocol.TypeError:
		var m protocol.ErrorMsg
		if err := json.Unmarshal(b, &m); err != nil {
			h.T.Fatalf("unmarshal ERROR: %v", err)
		}
		s.Errors = append(s.Errors, m)
	default:
		h.T.Fatalf("unexpected message type %q", base.Type)
	}
}

func Begin(targetID string) protocol.CmdMsg {
	return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdBegin, TargetID: targetID}
}

func End(targetID string) protocol.CmdMsg {
	return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdEnd, TargetID: targetID}
}

func Move(pos [3]float64, yaw float64) protocol.CmdMsg {
	return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdMove, Pos: &pos, Yaw: &yaw}
}
