package world

import (
	"time"

	"interactworld.ai/internal/sim/scene"
)

func (w *World) stepInternal(in StepInput) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	w.nowTick = nowTick

	// Scene reloads land first so this tick's scans see the new layout.
	recordedScenes := make([]scene.Scene, 0, len(in.Scenes))
	for _, s := range in.Scenes {
		if err := w.ApplyScene(s); err != nil {
			w.logf("tick %d: scene rejected: %v", nowTick, err)
			continue
		}
		recordedScenes = append(recordedScenes, s)
	}

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(in.Leaves))
	for _, id := range in.Leaves {
		if _, ok := w.agents[id]; ok {
			w.handleLeave(id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(in.Joins))
	for _, req := range in.Joins {
		resp := w.joinAgent(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{
			AgentID: resp.Welcome.AgentID,
			Name:    req.Name,
			Spawn:   req.Spawn,
			Yaw:     req.Yaw,
		})
	}

	// Apply commands in server receive order (the inbox order).
	recorded := make([]RecordedCommand, 0, len(in.Commands))
	for _, env := range in.Commands {
		st := w.agents[env.AgentID]
		if st == nil {
			continue
		}
		recorded = append(recorded, RecordedCommand{AgentID: env.AgentID, Cmd: env.Cmd})
		w.applyCmd(st, env.Cmd)
	}

	ids := w.sortedAgentIDs()
	for _, id := range ids {
		w.agents[id].agent.Scan()
	}
	w.flushTargets(nowTick, ids)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{
			Tick:     nowTick,
			Scenes:   recordedScenes,
			Joins:    recordedJoins,
			Leaves:   recordedLeaves,
			Commands: recorded,
			Digest:   digest,
		}); err != nil {
			w.logf("tick %d: tick log: %v", nowTick, err)
		}
	}

	w.maybeSnapshot(nowTick, digest)
	w.broadcastObservers(nowTick, digest, recordedJoins, recordedLeaves)

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS)
	return digest
}
