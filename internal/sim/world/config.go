package world

import (
	"errors"
	"log"

	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/interact"
	"interactworld.ai/internal/sim/spatial"
	"interactworld.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	CellSize   float64

	DetectionRadius float64
	ConeEnabled     bool
	ConeMinDot      float64
	ConeFallThrough bool

	// Prop defaults for scene entries that leave them out.
	DefaultRange  float64
	DefaultPrompt string

	// SnapshotEveryTicks is the snapshot cadence; zero disables snapshots.
	SnapshotEveryTicks int

	Logger *log.Logger
}

// ConfigFromTuning maps the tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:              id,
		TickRateHz:      t.TickRateHz,
		CellSize:        t.CellSize,
		DetectionRadius: t.Interactor.DetectionRadius,
		ConeEnabled:     t.Interactor.Cone.Enabled,
		ConeMinDot:      t.Interactor.Cone.MinDot,
		ConeFallThrough: t.Interactor.Cone.FallThrough,
		DefaultRange:    t.Props.DefaultRange,
		DefaultPrompt:   t.Props.DefaultPrompt,

		SnapshotEveryTicks: t.SnapshotEveryTicks,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.CellSize <= 0 {
		c.CellSize = spatial.DefaultCellSize
	}
	if c.DetectionRadius <= 0 {
		c.DetectionRadius = interact.DefaultDetectionRadius
	}
	if c.ConeEnabled && c.ConeMinDot == 0 {
		c.ConeMinDot = interact.DefaultConeMinDot
	}
	if c.DefaultRange <= 0 {
		c.DefaultRange = interact.DefaultRange
	}
	if c.DefaultPrompt == "" {
		c.DefaultPrompt = interact.DefaultPrompt
	}
}

func (c WorldConfig) validate() error {
	if c.ConeMinDot < -1 || c.ConeMinDot > 1 {
		return errors.New("cone min dot must be within [-1,1]")
	}
	return nil
}

func (c WorldConfig) agentConfig(id string, spawn [3]float64, yaw float64) interact.AgentConfig {
	ac := interact.AgentConfig{
		ID:     id,
		Pos:    geom.FromArray(spawn),
		Yaw:    yaw,
		Radius: c.DetectionRadius,
	}
	if c.ConeEnabled {
		ac.Refiners = []interact.Refiner{interact.Cone{MinDot: c.ConeMinDot}}
		if c.ConeFallThrough {
			ac.RefineMode = interact.RefineFallThrough
		}
	}
	return ac
}
