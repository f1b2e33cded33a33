package world

import (
	"context"
	"errors"
)

// Views copy state out of the world. Like every other accessor that reads
// world state, they must be called only when the world is stopped or from
// the world loop goroutine.

func (w *World) AgentViews() []AgentView {
	out := make([]AgentView, 0, len(w.agents))
	for _, id := range w.sortedAgentIDs() {
		st := w.agents[id]
		targetID, _, _ := describeTarget(st.agent.CurrentTarget())
		out = append(out, AgentView{
			ID:       id,
			Name:     st.name,
			Pos:      st.agent.Position().ToArray(),
			Yaw:      st.agent.Yaw(),
			TargetID: targetID,
		})
	}
	return out
}

func (w *World) PropViews() []PropView {
	out := make([]PropView, 0, len(w.props))
	for _, id := range w.sortedPropIDs() {
		p := w.props[id]
		core := p.Core()
		v := PropView{
			ID:           id,
			Kind:         p.Kind(),
			Pos:          core.Position().ToArray(),
			Prompt:       core.InteractionPrompt(),
			Range:        core.Range(),
			Interactable: core.Interactable(),
			State:        p.State(),
		}
		for _, i := range core.Engaged() {
			v.Engaged = append(v.Engaged, agentIDOf(i))
		}
		out = append(out, v)
	}
	return out
}

// StateView is a point-in-time copy of the world for admin endpoints.
type StateView struct {
	WorldID string      `json:"world_id"`
	Tick    uint64      `json:"tick"`
	Agents  []AgentView `json:"agents"`
	Props   []PropView  `json:"props"`
}

func (w *World) stateView() StateView {
	return StateView{
		WorldID: w.cfg.ID,
		Tick:    w.tick.Load(),
		Agents:  w.AgentViews(),
		Props:   w.PropViews(),
	}
}

var errWorldStopped = errors.New("world stopped")

// RequestState asks the world loop goroutine for a StateView.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestState(ctx context.Context) (StateView, error) {
	if w == nil {
		return StateView{}, errors.New("world not available")
	}
	resp := make(chan StateView, 1)
	select {
	case w.views <- resp:
	case <-w.done:
		return StateView{}, errWorldStopped
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
	select {
	case v := <-resp:
		return v, nil
	case <-w.done:
		return StateView{}, errWorldStopped
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
}
