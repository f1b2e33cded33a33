package world

import (
	"encoding/json"

	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/props"
)

func (w *World) applyCmd(st *agentState, cmd protocol.CmdMsg) {
	switch cmd.Cmd {
	case protocol.CmdMove:
		if cmd.Pos == nil && cmd.Yaw == nil {
			w.sendError(st, cmd.ID, protocol.ErrBadRequest, "MOVE needs pos or yaw")
			return
		}
		if cmd.Pos != nil {
			st.agent.SetPosition(geom.FromArray(*cmd.Pos))
		}
		if cmd.Yaw != nil {
			st.agent.SetYaw(*cmd.Yaw)
		}
	case protocol.CmdBegin:
		p, ok := w.cmdTarget(st, cmd)
		if !ok {
			return
		}
		if p.Core().IsEngaged(st.agent) {
			return
		}
		if !p.CanInteract(st.agent) {
			w.sendError(st, cmd.ID, protocol.ErrInvalidTarget, "cannot interact with "+p.ID())
			return
		}
		w.cause = "CMD"
		st.agent.OnInteractionStarted(p)
		w.cause = ""
	case protocol.CmdEnd:
		p, ok := w.cmdTarget(st, cmd)
		if !ok {
			return
		}
		w.cause = "CMD"
		st.agent.OnInteractionEnded(p)
		w.cause = ""
	default:
		w.sendError(st, cmd.ID, protocol.ErrBadRequest, "unknown cmd: "+cmd.Cmd)
	}
}

// cmdTarget resolves the prop a BEGIN/END acts on: the named one, or the
// agent's current target when none is named.
func (w *World) cmdTarget(st *agentState, cmd protocol.CmdMsg) (props.Prop, bool) {
	if cmd.TargetID != "" {
		p := w.props[cmd.TargetID]
		if p == nil {
			w.sendError(st, cmd.ID, protocol.ErrInvalidTarget, "unknown target: "+cmd.TargetID)
			return nil, false
		}
		return p, true
	}
	p, ok := st.agent.CurrentTarget().(props.Prop)
	if !ok || p == nil {
		w.sendError(st, cmd.ID, protocol.ErrInvalidTarget, "no current target")
		return nil, false
	}
	return p, true
}

func (w *World) sendError(st *agentState, refID, code, message string) {
	b, err := json.Marshal(protocol.NewError(refID, code, message))
	if err != nil {
		return
	}
	w.send(st.out, b)
}
