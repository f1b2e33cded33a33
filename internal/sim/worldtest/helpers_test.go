package worldtest

import (
	"interactworld.ai/internal/sim/scene"
	world "interactworld.ai/internal/sim/world"
)

func doorScene() scene.Scene {
	return scene.Scene{Props: []scene.PropSpec{
		{ID: "front_door", Kind: "door", Pos: [3]float64{0, 0, 4}},
	}}
}

func buttonScene(prompt string) scene.Scene {
	return scene.Scene{Props: []scene.PropSpec{
		{ID: "lift", Kind: "button", Pos: [3]float64{0, 0, 0}, Prompt: prompt},
	}}
}

func coneConfig() world.WorldConfig {
	return world.WorldConfig{
		ID:              "test",
		TickRateHz:      20,
		DetectionRadius: 2.5,
		ConeEnabled:     true,
	}
}

func flatConfig() world.WorldConfig {
	return world.WorldConfig{
		ID:              "test",
		TickRateHz:      20,
		DetectionRadius: 2.5,
	}
}

func propView(h *Harness, id string) (world.PropView, bool) {
	for _, v := range h.W.PropViews() {
		if v.ID == id {
			return v, true
		}
	}
	return world.PropView{}, false
}

type tickRecorder struct {
	entries []world.TickLogEntry
}

func (r *tickRecorder) WriteTick(e world.TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

type auditRecorder struct {
	entries []world.AuditEntry
}

func (r *auditRecorder) WriteAudit(e world.AuditEntry) error {
	r.entries = append(r.entries, e)
	return nil
}
