package world

import (
	"fmt"
	"sort"

	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/interact"
)

func (w *World) joinAgent(req JoinRequest) JoinResponse {
	n := w.nextAgentNum.Add(1)
	id := fmt.Sprintf("A%d", n)

	w.addAgent(id, req.Name, req.Spawn, req.Yaw, req.Out)

	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         id,
		Tick:            w.nowTick,
		WorldParams: protocol.WorldParams{
			WorldID:         w.cfg.ID,
			TickRateHz:      w.cfg.TickRateHz,
			DetectionRadius: w.cfg.DetectionRadius,
			ConeEnabled:     w.cfg.ConeEnabled,
			ConeMinDot:      w.cfg.ConeMinDot,
		},
	}}
}

func (w *World) addAgent(id, name string, pos [3]float64, yaw float64, out chan []byte) *agentState {
	a := interact.NewAgent(w.cfg.agentConfig(id, pos, yaw), w.index)
	st := &agentState{agent: a, name: name, out: out}
	st.unsub = a.Subscribe(func(*interact.Agent, interact.Interactable) {
		st.targetDirty = true
	})
	w.agents[id] = st
	return st
}

// handleLeave closes every interaction the agent still has open before
// dropping it, so props never hold a departed interactor.
func (w *World) handleLeave(agentID string) {
	st := w.agents[agentID]
	if st == nil {
		return
	}
	w.cause = "LEAVE"
	for _, pid := range w.sortedPropIDs() {
		p := w.props[pid]
		if p.Core().IsEngaged(st.agent) {
			st.agent.OnInteractionEnded(p)
		}
	}
	w.cause = ""
	if st.unsub != nil {
		st.unsub()
	}
	delete(w.agents, agentID)
}

func (w *World) sortedAgentIDs() []string {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) sortedPropIDs() []string {
	ids := make([]string, 0, len(w.props))
	for id := range w.props {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
