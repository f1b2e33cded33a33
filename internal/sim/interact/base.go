package interact

import (
	"sort"

	"interactworld.ai/internal/sim/geom"
)

const (
	DefaultPrompt = "Interact"
	DefaultRange  = 2.0
)

// Effects are the two variation points of an interactable. BeginEffect runs
// once per opened interaction, EndEffect once per closed one.
type Effects interface {
	BeginEffect(i Interactor)
	EndEffect(i Interactor)
}

// EffectFuncs adapts plain functions to Effects. Nil funcs are skipped.
type EffectFuncs struct {
	Begin func(i Interactor)
	End   func(i Interactor)
}

func (f EffectFuncs) BeginEffect(i Interactor) {
	if f.Begin != nil {
		f.Begin(i)
	}
}

func (f EffectFuncs) EndEffect(i Interactor) {
	if f.End != nil {
		f.End(i)
	}
}

type Config struct {
	Prompt   string
	Range    float64
	Disabled bool
}

// Base carries the bookkeeping shared by every interactable: eligibility,
// range, prompt and the engaged-set. Concrete props embed it and hand it
// their Effects.
type Base struct {
	pos       geom.Vec3
	prompt    string
	rng       float64
	enabled   bool
	destroyed bool

	// engaged maps each interactor with an open interaction to the sequence
	// number it was engaged at.
	engaged map[Interactor]uint64
	seq     uint64

	fx Effects
}

var _ Interactable = (*Base)(nil)

func NewBase(pos geom.Vec3, cfg Config, fx Effects) *Base {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Range <= 0 {
		cfg.Range = DefaultRange
	}
	if fx == nil {
		fx = EffectFuncs{}
	}
	return &Base{
		pos:     pos,
		prompt:  cfg.Prompt,
		rng:     cfg.Range,
		enabled: !cfg.Disabled,
		engaged: map[Interactor]uint64{},
		fx:      fx,
	}
}

func (b *Base) CanInteract(i Interactor) bool {
	if b == nil || isNil(i) || !b.enabled || b.destroyed {
		return false
	}
	return geom.Distance(b.pos, i.Position()) <= b.rng
}

func (b *Base) OnInteractionBegin(i Interactor) {
	if !b.CanInteract(i) {
		return
	}
	if _, ok := b.engaged[i]; ok {
		return
	}
	b.seq++
	b.engaged[i] = b.seq
	b.fx.BeginEffect(i)
}

func (b *Base) OnInteractionEnd(i Interactor) {
	if b == nil || isNil(i) {
		return
	}
	if _, ok := b.engaged[i]; !ok {
		return
	}
	delete(b.engaged, i)
	b.fx.EndEffect(i)
}

func (b *Base) InteractionPrompt() string { return b.prompt }

// SetInteractable toggles eligibility. Open interactions are left alone so
// they can finish; only new ones are blocked.
func (b *Base) SetInteractable(enabled bool) { b.enabled = enabled }

func (b *Base) Interactable() bool { return b.enabled && !b.destroyed }

func (b *Base) SetPrompt(p string) { b.prompt = p }

func (b *Base) Range() float64 { return b.rng }

func (b *Base) SetRange(r float64) {
	if r > 0 {
		b.rng = r
	}
}

func (b *Base) Position() geom.Vec3 { return b.pos }

func (b *Base) SetPosition(p geom.Vec3) { b.pos = p }

func (b *Base) IsEngaged(i Interactor) bool {
	if b == nil || isNil(i) {
		return false
	}
	_, ok := b.engaged[i]
	return ok
}

func (b *Base) EngagedCount() int { return len(b.engaged) }

// RestoreEngaged re-opens interactions, in order, without running effects
// or checking range. It rebuilds saved state and is not a way to interact.
func (b *Base) RestoreEngaged(is ...Interactor) {
	for _, i := range is {
		if isNil(i) {
			continue
		}
		if _, ok := b.engaged[i]; ok {
			continue
		}
		b.seq++
		b.engaged[i] = b.seq
	}
}

// Engaged returns the engaged interactors in the order they were engaged.
func (b *Base) Engaged() []Interactor {
	type entry struct {
		i   Interactor
		seq uint64
	}
	tmp := make([]entry, 0, len(b.engaged))
	for i, seq := range b.engaged {
		tmp = append(tmp, entry{i: i, seq: seq})
	}
	sort.Slice(tmp, func(x, y int) bool { return tmp[x].seq < tmp[y].seq })
	out := make([]Interactor, len(tmp))
	for k, e := range tmp {
		out[k] = e.i
	}
	return out
}

// Destroy ends every open interaction (running end effects in engagement
// order) and blocks all further interaction.
func (b *Base) Destroy() {
	if b.destroyed {
		return
	}
	for _, i := range b.Engaged() {
		b.OnInteractionEnd(i)
	}
	b.destroyed = true
}

func (b *Base) Destroyed() bool { return b.destroyed }
