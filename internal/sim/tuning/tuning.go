package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int     `yaml:"tick_rate_hz"`
	CellSize   float64 `yaml:"cell_size"`

	// SnapshotEveryTicks is how often the server writes a snapshot; 0 disables.
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Interactor Interactor `yaml:"interactor"`
	Props      Props      `yaml:"props"`
	RateLimits RateLimits `yaml:"rate_limits"`
}

type Interactor struct {
	DetectionRadius float64 `yaml:"detection_radius"`
	Cone            Cone    `yaml:"cone"`
}

// Cone configures forward-facing target refinement.
type Cone struct {
	Enabled bool    `yaml:"enabled"`
	MinDot  float64 `yaml:"min_dot"`
	// FallThrough picks the next-best candidate in the cone instead of
	// clearing the target when the closest one is outside it.
	FallThrough bool `yaml:"fall_through"`
}

type Props struct {
	DefaultRange  float64 `yaml:"default_range"`
	DefaultPrompt string  `yaml:"default_prompt"`
}

type RateLimits struct {
	CommandsPerSecond float64 `yaml:"commands_per_second"`
	CommandBurst      int     `yaml:"command_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		CellSize:        4,

		SnapshotEveryTicks: 1200,
		Interactor: Interactor{
			DetectionRadius: 2,
			Cone: Cone{
				Enabled: true,
				MinDot:  0.5,
			},
		},
		Props: Props{
			DefaultRange:  2,
			DefaultPrompt: "Interact",
		},
		RateLimits: RateLimits{
			CommandsPerSecond: 20,
			CommandBurst:      10,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values left by partial files.
func (t *Tuning) Normalize() {
	d := Defaults()
	if strings.TrimSpace(t.ProtocolVersion) == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.TickRateHz == 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.CellSize == 0 {
		t.CellSize = d.CellSize
	}
	if t.Interactor.DetectionRadius == 0 {
		t.Interactor.DetectionRadius = d.Interactor.DetectionRadius
	}
	if t.Props.DefaultRange == 0 {
		t.Props.DefaultRange = d.Props.DefaultRange
	}
	if t.Props.DefaultPrompt == "" {
		t.Props.DefaultPrompt = d.Props.DefaultPrompt
	}
	if t.RateLimits.CommandBurst == 0 {
		t.RateLimits.CommandBurst = d.RateLimits.CommandBurst
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.CellSize <= 0 {
		return fmt.Errorf("cell_size must be positive: %v", t.CellSize)
	}
	if t.Interactor.DetectionRadius <= 0 {
		return fmt.Errorf("interactor.detection_radius must be positive: %v", t.Interactor.DetectionRadius)
	}
	if c := t.Interactor.Cone; c.Enabled && (c.MinDot < -1 || c.MinDot > 1) {
		return fmt.Errorf("interactor.cone.min_dot must be within [-1,1]: %v", c.MinDot)
	}
	if t.Props.DefaultRange <= 0 {
		return fmt.Errorf("props.default_range must be positive: %v", t.Props.DefaultRange)
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must not be negative: %d", t.SnapshotEveryTicks)
	}
	if t.RateLimits.CommandsPerSecond < 0 {
		return fmt.Errorf("rate_limits.commands_per_second must not be negative")
	}
	return nil
}
