package props

import (
	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/interact"
)

const DefaultButtonPrompt = "Press"

// Button is held down while at least one interaction with it is open.
type Button struct {
	*interact.Base

	id      string
	pressed bool
	presses int
	hooks   changeHooks
}

var _ Prop = (*Button)(nil)

func NewButton(id string, pos geom.Vec3, cfg interact.Config) *Button {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultButtonPrompt
	}
	b := &Button{id: id}
	b.Base = interact.NewBase(pos, cfg, b)
	return b
}

func (b *Button) ID() string { return b.id }

func (b *Button) Kind() string { return KindButton }

func (b *Button) Core() *interact.Base { return b.Base }

func (b *Button) Pressed() bool { return b.pressed }

// Presses counts interactions begun over the button's lifetime.
func (b *Button) Presses() int { return b.presses }

func (b *Button) OnChange(fn ChangeFunc) {
	if fn != nil {
		b.hooks = append(b.hooks, fn)
	}
}

func (b *Button) State() map[string]any {
	return map[string]any{"pressed": b.pressed, "presses": b.presses}
}

func (b *Button) RestoreState(raw []byte) error {
	var st struct {
		Pressed bool `json:"pressed"`
		Presses int  `json:"presses"`
	}
	if err := decodeState(b, raw, &st); err != nil {
		return err
	}
	b.pressed = st.Pressed
	b.presses = st.Presses
	return nil
}

// The engaged-set is already updated when effects run.

func (b *Button) BeginEffect(i interact.Interactor) {
	b.presses++
	b.pressed = b.EngagedCount() > 0
	b.hooks.fire(b, i, "BEGIN")
}

func (b *Button) EndEffect(i interact.Interactor) {
	b.pressed = b.EngagedCount() > 0
	b.hooks.fire(b, i, "END")
}
