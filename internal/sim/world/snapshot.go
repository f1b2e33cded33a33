package world

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/sim/interact"
	"interactworld.ai/internal/sim/scene"
)

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// ConfigFromSnapshot rebuilds the config a snapshot was taken under.
func ConfigFromSnapshot(s snapshot.SnapshotV1) WorldConfig {
	return WorldConfig{
		ID:              s.Header.WorldID,
		TickRateHz:      s.TickRate,
		CellSize:        s.CellSize,
		DetectionRadius: s.DetectionRadius,
		ConeEnabled:     s.ConeEnabled,
		ConeMinDot:      s.ConeMinDot,
		ConeFallThrough: s.ConeFallThrough,
		DefaultRange:    s.DefaultRange,
		DefaultPrompt:   s.DefaultPrompt,
	}
}

// ExportSnapshot captures the state as of the end of nowTick.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	return w.exportSnapshot(nowTick, w.stateDigest(nowTick))
}

func (w *World) exportSnapshot(nowTick uint64, digest string) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
			Digest:  digest,
		},
		TickRate:        w.cfg.TickRateHz,
		CellSize:        w.cfg.CellSize,
		DetectionRadius: w.cfg.DetectionRadius,
		ConeEnabled:     w.cfg.ConeEnabled,
		ConeMinDot:      w.cfg.ConeMinDot,
		ConeFallThrough: w.cfg.ConeFallThrough,
		DefaultRange:    w.cfg.DefaultRange,
		DefaultPrompt:   w.cfg.DefaultPrompt,
		Counters:        snapshot.CountersV1{NextAgent: w.nextAgentNum.Load()},
	}

	specs := make(map[string]scene.PropSpec, len(w.scene.Props))
	for _, ps := range w.scene.Props {
		specs[strings.TrimSpace(ps.ID)] = ps
	}
	// Index order is the resolver's tie-break order; import re-inserts in it.
	for _, id := range w.index.IDs() {
		p, ps := w.props[id], specs[id]
		if p == nil {
			continue
		}
		pv := snapshot.PropV1{
			ID:          p.ID(),
			Kind:        ps.Kind,
			Pos:         ps.Pos,
			Range:       ps.Range,
			Prompt:      ps.Prompt,
			Disabled:    ps.Disabled,
			Open:        ps.Open,
			OpenPrompt:  ps.OpenPrompt,
			ClosePrompt: ps.ClosePrompt,
			Layer:       ps.Layer,
		}
		for _, i := range p.Core().Engaged() {
			pv.Engaged = append(pv.Engaged, agentIDOf(i))
		}
		pv.State, _ = json.Marshal(p.State())
		s.Props = append(s.Props, pv)
	}

	for _, id := range w.sortedAgentIDs() {
		st := w.agents[id]
		s.Agents = append(s.Agents, snapshot.AgentV1{
			ID:   id,
			Name: st.name,
			Pos:  st.agent.Position().ToArray(),
			Yaw:  st.agent.Yaw(),
		})
	}
	return s
}

// ImportSnapshot loads s into an empty world and resumes on the tick after
// it. Restored agents have no connection. Targets are rescanned and the
// resulting digest must match the one recorded in s.
//
// This must be called only when the world is stopped.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if len(w.props) != 0 || len(w.agents) != 0 {
		return fmt.Errorf("import snapshot: world %s is not empty", w.cfg.ID)
	}
	if s.Header.WorldID != "" && s.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("import snapshot: world id mismatch: world=%s snapshot=%s", w.cfg.ID, s.Header.WorldID)
	}
	w.nowTick = s.Header.Tick

	var sc scene.Scene
	for _, pv := range s.Props {
		sc.Props = append(sc.Props, scene.PropSpec{
			ID:          pv.ID,
			Kind:        pv.Kind,
			Pos:         pv.Pos,
			Range:       pv.Range,
			Prompt:      pv.Prompt,
			Disabled:    pv.Disabled,
			Open:        pv.Open,
			OpenPrompt:  pv.OpenPrompt,
			ClosePrompt: pv.ClosePrompt,
			Layer:       pv.Layer,
		})
	}
	if err := w.ApplyScene(sc); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	maxAgent := s.Counters.NextAgent
	for _, av := range s.Agents {
		if _, dup := w.agents[av.ID]; dup {
			return fmt.Errorf("import snapshot: duplicate agent %s", av.ID)
		}
		w.addAgent(av.ID, av.Name, av.Pos, av.Yaw, nil)
		if n, ok := agentNum(av.ID); ok && n > maxAgent {
			maxAgent = n
		}
	}
	w.nextAgentNum.Store(maxAgent)

	for _, pv := range s.Props {
		p := w.props[strings.TrimSpace(pv.ID)]
		if err := p.RestoreState(pv.State); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		engaged := make([]interact.Interactor, 0, len(pv.Engaged))
		for _, id := range pv.Engaged {
			st := w.agents[id]
			if st == nil {
				return fmt.Errorf("import snapshot: prop %s engaged by unknown agent %q", pv.ID, id)
			}
			engaged = append(engaged, st.agent)
		}
		p.Core().RestoreEngaged(engaged...)
	}

	ids := w.sortedAgentIDs()
	for _, id := range ids {
		st := w.agents[id]
		st.agent.Scan()
		st.targetDirty = false
		st.sentTargetID, _, st.sentPrompt = describeTarget(st.agent.CurrentTarget())
	}

	if s.Header.Digest != "" {
		if got := w.stateDigest(s.Header.Tick); got != s.Header.Digest {
			return fmt.Errorf("import snapshot: digest mismatch at tick %d: got %s want %s", s.Header.Tick, got, s.Header.Digest)
		}
	}
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

// maybeSnapshot hands a snapshot to the sink every SnapshotEveryTicks ticks.
// A busy sink loses the snapshot; the next one supersedes it.
func (w *World) maybeSnapshot(nowTick uint64, digest string) {
	every := uint64(w.cfg.SnapshotEveryTicks)
	if w.snapshotSink == nil || every == 0 || nowTick == 0 || nowTick%every != 0 {
		return
	}
	select {
	case w.snapshotSink <- w.exportSnapshot(nowTick, digest):
	default:
		w.logf("tick %d: snapshot sink busy; skipped", nowTick)
	}
}

func agentNum(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, "A")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	return n, err == nil
}
