// Package scene loads the prop layout of a world from YAML.
package scene

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/interact"
	"interactworld.ai/internal/sim/props"
)

type Scene struct {
	Props []PropSpec `yaml:"props" json:"props"`
}

type PropSpec struct {
	ID          string     `yaml:"id" json:"id"`
	Kind        string     `yaml:"kind" json:"kind"`
	Pos         [3]float64 `yaml:"pos" json:"pos"`
	Range       float64    `yaml:"range" json:"range,omitempty"`
	Prompt      string     `yaml:"prompt" json:"prompt,omitempty"`
	Disabled    bool       `yaml:"disabled" json:"disabled,omitempty"`
	Open        bool       `yaml:"open" json:"open,omitempty"`
	OpenPrompt  string     `yaml:"open_prompt" json:"open_prompt,omitempty"`
	ClosePrompt string     `yaml:"close_prompt" json:"close_prompt,omitempty"`
	Layer       uint32     `yaml:"layer" json:"layer,omitempty"`
}

func Load(path string) (Scene, error) {
	var s Scene
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	return Parse(b)
}

func Parse(b []byte) (Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("scene.yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("scene.yaml: %w", err)
	}
	return s, nil
}

func (s Scene) Validate() error {
	seen := map[string]bool{}
	for i, p := range s.Props {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("props[%d]: missing id", i)
		}
		if seen[id] {
			return fmt.Errorf("props[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		switch strings.ToLower(p.Kind) {
		case props.KindDoor, props.KindButton:
		default:
			return fmt.Errorf("props[%d] %s: unknown kind %q", i, id, p.Kind)
		}
		if p.Range < 0 {
			return fmt.Errorf("props[%d] %s: negative range", i, id)
		}
	}
	return nil
}

func (p PropSpec) Position() geom.Vec3 { return geom.FromArray(p.Pos) }

func (p PropSpec) LayerMask() interact.Layer { return interact.Layer(p.Layer) }

// ResolvedPrompt is the prompt a prop built from p shows: the configured
// text, or the kind's default when empty. Doors derive theirs from
// OpenPrompt/ClosePrompt instead.
func (p PropSpec) ResolvedPrompt(defaultPrompt string) string {
	if p.Prompt != "" {
		return p.Prompt
	}
	if strings.ToLower(p.Kind) == props.KindButton {
		return props.DefaultButtonPrompt
	}
	return defaultPrompt
}

// Build turns the spec into a prop. defaultRange/defaultPrompt fill gaps.
func (p PropSpec) Build(defaultRange float64, defaultPrompt string) (props.Prop, error) {
	rng := p.Range
	if rng == 0 {
		rng = defaultRange
	}
	return props.New(props.Spec{
		ID:          strings.TrimSpace(p.ID),
		Kind:        p.Kind,
		Pos:         p.Position(),
		Range:       rng,
		Prompt:      p.ResolvedPrompt(defaultPrompt),
		Disabled:    p.Disabled,
		Open:        p.Open,
		OpenPrompt:  p.OpenPrompt,
		ClosePrompt: p.ClosePrompt,
	})
}
