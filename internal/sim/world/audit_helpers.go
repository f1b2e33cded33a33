package world

import (
	"interactworld.ai/internal/observerproto"
	"interactworld.ai/internal/sim/props"
)

func (w *World) auditEvent(tick uint64, actor string, action string, p props.Prop, reason string, details map[string]any) {
	if len(w.observers) > 0 {
		w.tickAudits = append(w.tickAudits, observerproto.AuditEntry{
			Tick:   tick,
			Actor:  actor,
			Action: action,
			PropID: p.ID(),
			Reason: reason,
		})
	}
	if w.auditLogger == nil {
		return
	}
	if err := w.auditLogger.WriteAudit(AuditEntry{
		Tick:    tick,
		Actor:   actor,
		Action:  action,
		PropID:  p.ID(),
		Kind:    p.Kind(),
		Pos:     p.Core().Position().ToArray(),
		Reason:  reason,
		Details: details,
	}); err != nil {
		w.logf("tick %d: audit log: %v", tick, err)
	}
}
