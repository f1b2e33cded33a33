// Package props holds the concrete interactables placed in a world.
package props

import (
	"encoding/json"
	"fmt"
	"strings"

	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/interact"
)

const (
	KindDoor   = "door"
	KindButton = "button"
)

// Prop is an interactable the world can place, look up and report on.
type Prop interface {
	interact.Interactable
	ID() string
	Kind() string
	Core() *interact.Base
	// State is a small, JSON-friendly view of the prop's own state.
	State() map[string]any
	// RestoreState sets the prop's own state from the JSON form of State.
	// It runs no effects and fires no hooks.
	RestoreState(raw []byte) error
	// OnChange registers fn to run after every begin/end effect.
	OnChange(fn ChangeFunc)
}

// ChangeFunc observes effects: action is "BEGIN" or "END".
type ChangeFunc func(p Prop, i interact.Interactor, action string)

// Spec describes a prop to build.
type Spec struct {
	ID          string
	Kind        string
	Pos         geom.Vec3
	Range       float64
	Prompt      string
	Disabled    bool
	Open        bool
	OpenPrompt  string
	ClosePrompt string
}

func New(s Spec) (Prop, error) {
	if strings.TrimSpace(s.ID) == "" {
		return nil, fmt.Errorf("prop: missing id")
	}
	cfg := interact.Config{Prompt: s.Prompt, Range: s.Range, Disabled: s.Disabled}
	switch strings.ToLower(s.Kind) {
	case KindDoor:
		d := NewDoor(s.ID, s.Pos, cfg, s.Open)
		d.SetPrompts(s.OpenPrompt, s.ClosePrompt)
		return d, nil
	case KindButton:
		return NewButton(s.ID, s.Pos, cfg), nil
	default:
		return nil, fmt.Errorf("prop %s: unknown kind %q", s.ID, s.Kind)
	}
}

type changeHooks []ChangeFunc

func (h changeHooks) fire(p Prop, i interact.Interactor, action string) {
	for _, fn := range h {
		fn(p, i, action)
	}
}

func decodeState(p Prop, raw []byte, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("prop %s: restore state: %w", p.ID(), err)
	}
	return nil
}
