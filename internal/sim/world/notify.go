package world

import (
	"encoding/json"

	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/interact"
	"interactworld.ai/internal/sim/props"
)

// flushTargets sends TARGET to every agent whose target changed this tick,
// or whose target's prompt text changed since the last send.
func (w *World) flushTargets(nowTick uint64, ids []string) {
	for _, id := range ids {
		st := w.agents[id]
		targetID, kind, prompt := describeTarget(st.agent.CurrentTarget())
		if !st.targetDirty && targetID == st.sentTargetID && prompt == st.sentPrompt {
			continue
		}
		st.targetDirty = false
		st.sentTargetID = targetID
		st.sentPrompt = prompt

		b, err := json.Marshal(protocol.TargetMsg{
			Type:            protocol.TypeTarget,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			AgentID:         id,
			TargetID:        targetID,
			Kind:            kind,
			Prompt:          prompt,
		})
		if err != nil {
			continue
		}
		w.send(st.out, b)
	}
}

func describeTarget(t interact.Interactable) (id, kind, prompt string) {
	if t == nil {
		return "", "", ""
	}
	if p, ok := t.(props.Prop); ok {
		return p.ID(), p.Kind(), p.InteractionPrompt()
	}
	return "", "", t.InteractionPrompt()
}

// onPropChange is registered on every placed prop. It audits the effect and
// tells the acting agent what happened.
func (w *World) onPropChange(p props.Prop, i interact.Interactor, action string) {
	actor := agentIDOf(i)
	state := p.State()
	w.auditEvent(w.nowTick, actor, "INTERACTION_"+action, p, w.cause, state)

	st := w.agents[actor]
	if st == nil {
		return
	}
	b, err := json.Marshal(protocol.InteractionMsg{
		Type:            protocol.TypeInteraction,
		ProtocolVersion: protocol.Version,
		Tick:            w.nowTick,
		AgentID:         actor,
		PropID:          p.ID(),
		Action:          action,
		State:           state,
	})
	if err != nil {
		return
	}
	w.send(st.out, b)
}
