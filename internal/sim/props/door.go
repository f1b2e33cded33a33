package props

import (
	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/interact"
)

const (
	DefaultOpenPrompt  = "Open Door"
	DefaultClosePrompt = "Close Door"
)

// Door toggles between open and closed each time an interaction begins.
// Ending the interaction does nothing. The prompt always names the next
// toggle.
type Door struct {
	*interact.Base

	id          string
	open        bool
	openPrompt  string
	closePrompt string
	hooks       changeHooks
}

var _ Prop = (*Door)(nil)

func NewDoor(id string, pos geom.Vec3, cfg interact.Config, open bool) *Door {
	d := &Door{
		id:          id,
		open:        open,
		openPrompt:  DefaultOpenPrompt,
		closePrompt: DefaultClosePrompt,
	}
	d.Base = interact.NewBase(pos, cfg, d)
	d.syncPrompt()
	return d
}

func (d *Door) ID() string { return d.id }

func (d *Door) Kind() string { return KindDoor }

func (d *Door) Core() *interact.Base { return d.Base }

func (d *Door) IsOpen() bool { return d.open }

func (d *Door) OnChange(fn ChangeFunc) {
	if fn != nil {
		d.hooks = append(d.hooks, fn)
	}
}

// SetPrompts replaces the open/close prompt text. Empty restores the default.
func (d *Door) SetPrompts(openPrompt, closePrompt string) {
	if openPrompt == "" {
		openPrompt = DefaultOpenPrompt
	}
	if closePrompt == "" {
		closePrompt = DefaultClosePrompt
	}
	d.openPrompt = openPrompt
	d.closePrompt = closePrompt
	d.syncPrompt()
}

func (d *Door) State() map[string]any {
	return map[string]any{"open": d.open}
}

func (d *Door) RestoreState(raw []byte) error {
	var st struct {
		Open bool `json:"open"`
	}
	if err := decodeState(d, raw, &st); err != nil {
		return err
	}
	d.open = st.Open
	d.syncPrompt()
	return nil
}

func (d *Door) BeginEffect(i interact.Interactor) {
	d.open = !d.open
	d.syncPrompt()
	d.hooks.fire(d, i, "BEGIN")
}

func (d *Door) EndEffect(i interact.Interactor) {
	d.hooks.fire(d, i, "END")
}

func (d *Door) syncPrompt() {
	if d.open {
		d.SetPrompt(d.closePrompt)
		return
	}
	d.SetPrompt(d.openPrompt)
}
