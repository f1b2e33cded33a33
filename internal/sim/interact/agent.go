package interact

import "interactworld.ai/internal/sim/geom"

const DefaultDetectionRadius = 2.0

// RefineMode decides what happens when the closest eligible candidate is
// rejected by a refiner.
type RefineMode int

const (
	// RefineClear leaves the agent without a target for that tick.
	RefineClear RefineMode = iota
	// RefineFallThrough picks the closest eligible candidate that passes
	// every refiner instead.
	RefineFallThrough
)

type AgentConfig struct {
	ID     string
	Pos    geom.Vec3
	Yaw    float64
	Radius float64
	// Mask filters the spatial query. Zero means AllLayers.
	Mask       Layer
	Refiners   []Refiner
	RefineMode RefineMode
}

// Agent is the stock Interactor: it scans its neighborhood once per tick and
// holds at most one current target.
type Agent struct {
	id     string
	pos    geom.Vec3
	yaw    float64
	radius float64
	mask   Layer

	query    Query
	refiners []Refiner
	mode     RefineMode

	target    Interactable
	observers observerList
}

var _ Interactor = (*Agent)(nil)

func NewAgent(cfg AgentConfig, q Query) *Agent {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultDetectionRadius
	}
	if cfg.Mask == 0 {
		cfg.Mask = AllLayers
	}
	return &Agent{
		id:       cfg.ID,
		pos:      cfg.Pos,
		yaw:      cfg.Yaw,
		radius:   cfg.Radius,
		mask:     cfg.Mask,
		query:    q,
		refiners: append([]Refiner(nil), cfg.Refiners...),
		mode:     cfg.RefineMode,
	}
}

func (a *Agent) ID() string { return a.id }

func (a *Agent) Position() geom.Vec3 { return a.pos }

func (a *Agent) SetPosition(p geom.Vec3) { a.pos = p }

func (a *Agent) Yaw() float64 { return a.yaw }

func (a *Agent) SetYaw(deg float64) { a.yaw = deg }

func (a *Agent) Forward() geom.Vec3 { return geom.YawForward(a.yaw) }

func (a *Agent) Radius() float64 { return a.radius }

func (a *Agent) SetRadius(r float64) {
	if r > 0 {
		a.radius = r
	}
}

func (a *Agent) SetMask(m Layer) {
	if m == 0 {
		m = AllLayers
	}
	a.mask = m
}

// CurrentTarget returns the target chosen by the last scan. A target that has
// been destroyed since then reads as nil; the next scan clears it for good.
func (a *Agent) CurrentTarget() Interactable {
	if d, ok := a.target.(destroyable); ok && d.Destroyed() {
		return nil
	}
	return a.target
}

func (a *Agent) OnInteractionStarted(x Interactable) {
	if a == nil || isNil(x) {
		return
	}
	x.OnInteractionBegin(a)
}

func (a *Agent) OnInteractionEnded(x Interactable) {
	if a == nil || isNil(x) {
		return
	}
	x.OnInteractionEnd(a)
}

// Subscribe registers fn for target changes. The returned func removes it.
func (a *Agent) Subscribe(fn TargetChangedFunc) (unsubscribe func()) {
	return a.observers.add(fn)
}

// Scan resolves this tick's target. When it differs by identity from the
// previous one, the target is replaced and observers are notified exactly
// once with the new value (nil when nothing qualified).
func (a *Agent) Scan() (target Interactable, changed bool) {
	next := a.resolve()
	if next == a.target {
		return a.target, false
	}
	a.target = next
	a.observers.notify(a, next)
	return next, true
}

func (a *Agent) ObserverCount() int { return a.observers.len() }
