package world

import (
	"context"
	"time"

	"interactworld.ai/internal/sim/scene"
)

func (w *World) Run(ctx context.Context) error {
	defer w.doneOnce.Do(func() { close(w.done) })
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending StepInput
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case s := <-w.scenes:
			pending.Scenes = append(pending.Scenes, s)
		case req := <-w.join:
			pending.Joins = append(pending.Joins, req)
		case id := <-w.leave:
			pending.Leaves = append(pending.Leaves, id)
		case env := <-w.inbox:
			pending.Commands = append(pending.Commands, env)
		case resp := <-w.views:
			resp <- w.stateView()
		case req := <-w.observerJoin:
			w.addObserver(req)
		case id := <-w.observerLeave:
			delete(w.observers, id)
		case <-ticker.C:
			w.stepInternal(pending)
			pending.Scenes = pending.Scenes[:0]
			pending.Joins = pending.Joins[:0]
			pending.Leaves = pending.Leaves[:0]
			pending.Commands = pending.Commands[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Done is closed once Run has returned. Senders on the world's channels
// select on it so they do not block on a stopped loop.
func (w *World) Done() <-chan struct{} { return w.done }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, cmds []CommandEnvelope) (tick uint64, digest string) {
	return w.Step(StepInput{Joins: joins, Leaves: leaves, Commands: cmds})
}

// Step is StepOnce with scene updates.
func (w *World) Step(in StepInput) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.stepInternal(in)
	return tick, digest
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) Inbox() chan<- CommandEnvelope    { return w.inbox }
func (w *World) Join() chan<- JoinRequest         { return w.join }
func (w *World) Leave() chan<- string             { return w.leave }
func (w *World) SceneUpdates() chan<- scene.Scene { return w.scenes }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// send never blocks the world loop; a full client queue loses the message.
func (w *World) send(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
	default:
		w.dropped++
	}
}
