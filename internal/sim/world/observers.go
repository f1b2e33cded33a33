package world

import (
	"encoding/json"

	"interactworld.ai/internal/observerproto"
)

// ObserverJoinRequest registers a read-only spectator feed.
type ObserverJoinRequest struct {
	SessionID  string
	TickOut    chan []byte
	EveryTicks int
}

type observerState struct {
	out   chan []byte
	every uint64
}

func (w *World) addObserver(req ObserverJoinRequest) {
	every := uint64(1)
	if req.EveryTicks > 1 {
		every = uint64(req.EveryTicks)
	}
	w.observers[req.SessionID] = &observerState{out: req.TickOut, every: every}
}

// broadcastObservers sends one TICK to each observer due this tick. Slow
// observers lose ticks rather than stall the loop.
func (w *World) broadcastObservers(nowTick uint64, digest string, joins []RecordedJoin, leaves []string) {
	if len(w.observers) == 0 {
		w.tickAudits = w.tickAudits[:0]
		return
	}

	var msg []byte
	sentAny := false
	for _, o := range w.observers {
		if nowTick%o.every != 0 {
			continue
		}
		if msg == nil {
			b, err := json.Marshal(w.observerTick(nowTick, digest, joins, leaves))
			if err != nil {
				w.logf("tick %d: observer tick: %v", nowTick, err)
				return
			}
			msg = b
		}
		w.send(o.out, msg)
		sentAny = true
	}
	if sentAny {
		w.tickAudits = w.tickAudits[:0]
	}
}

func (w *World) observerTick(nowTick uint64, digest string, joins []RecordedJoin, leaves []string) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Digest:          digest,
		Leaves:          leaves,
		Audits:          append([]observerproto.AuditEntry(nil), w.tickAudits...),
	}
	for _, j := range joins {
		msg.Joins = append(msg.Joins, observerproto.JoinInfo{AgentID: j.AgentID, Name: j.Name})
	}
	for _, a := range w.AgentViews() {
		msg.Agents = append(msg.Agents, observerproto.AgentState{
			ID:       a.ID,
			Name:     a.Name,
			Pos:      a.Pos,
			Yaw:      a.Yaw,
			TargetID: a.TargetID,
		})
	}
	for _, p := range w.PropViews() {
		msg.Props = append(msg.Props, observerproto.PropState{
			ID:           p.ID,
			Kind:         p.Kind,
			Pos:          p.Pos,
			Prompt:       p.Prompt,
			Interactable: p.Interactable,
			Engaged:      p.Engaged,
			State:        p.State,
		})
	}
	return msg
}
