package world

import (
	"fmt"
	"strings"

	"interactworld.ai/internal/sim/interact"
	"interactworld.ai/internal/sim/props"
	"interactworld.ai/internal/sim/scene"
)

// ApplyScene brings the placed props in line with s. Existing props keep
// their runtime state and open interactions; props missing from s are
// destroyed, which ends their open interactions. A prop whose kind changed
// is replaced.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ApplyScene(s scene.Scene) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("apply scene: %w", err)
	}

	keep := make(map[string]bool, len(s.Props))
	for _, ps := range s.Props {
		id := strings.TrimSpace(ps.ID)
		keep[id] = true
		if p := w.props[id]; p != nil {
			if strings.EqualFold(p.Kind(), ps.Kind) {
				w.updateProp(p, ps)
				continue
			}
			w.removeProp(id, "SCENE_REPLACED")
		}
		if err := w.placeProp(ps); err != nil {
			return fmt.Errorf("apply scene: %w", err)
		}
	}

	for _, id := range w.sortedPropIDs() {
		if !keep[id] {
			w.removeProp(id, "SCENE_REMOVED")
		}
	}
	w.scene = scene.Scene{Props: append([]scene.PropSpec(nil), s.Props...)}
	return nil
}

func (w *World) placeProp(ps scene.PropSpec) error {
	p, err := ps.Build(w.cfg.DefaultRange, w.cfg.DefaultPrompt)
	if err != nil {
		return err
	}
	if err := w.index.Insert(p.ID(), p, ps.Position(), ps.LayerMask()); err != nil {
		return err
	}
	p.OnChange(w.onPropChange)
	w.props[p.ID()] = p
	return nil
}

func (w *World) updateProp(p props.Prop, ps scene.PropSpec) {
	core := p.Core()
	pos := ps.Position()
	if core.Position() != pos {
		core.SetPosition(pos)
		w.index.Move(p.ID(), pos)
	}
	w.index.SetLayer(p.ID(), ps.LayerMask())

	rng := ps.Range
	if rng == 0 {
		rng = w.cfg.DefaultRange
	}
	core.SetRange(rng)
	core.SetInteractable(!ps.Disabled)

	switch v := p.(type) {
	case *props.Door:
		v.SetPrompts(ps.OpenPrompt, ps.ClosePrompt)
	default:
		core.SetPrompt(ps.ResolvedPrompt(w.cfg.DefaultPrompt))
	}
}

func (w *World) removeProp(id, reason string) {
	p := w.props[id]
	if p == nil {
		return
	}
	w.cause = reason
	p.Core().Destroy()
	w.cause = ""
	w.index.Remove(id)
	delete(w.props, id)
	w.auditEvent(w.nowTick, "WORLD", "PROP_REMOVED", p, reason, nil)
}

// PropByID looks up a placed prop.
func (w *World) PropByID(id string) (props.Prop, bool) {
	p, ok := w.props[id]
	return p, ok
}

func agentIDOf(i interact.Interactor) string {
	if a, ok := i.(*interact.Agent); ok {
		return a.ID()
	}
	return ""
}
