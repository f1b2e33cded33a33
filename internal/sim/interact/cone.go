package interact

import "interactworld.ai/internal/sim/geom"

// Refiner narrows the base selection. It may reject a candidate, never add one.
type Refiner interface {
	Accept(self Interactor, c Candidate) bool
}

// DefaultConeMinDot keeps targets within 60 degrees of forward (a 120 degree cone).
const DefaultConeMinDot = 0.5

// Cone accepts candidates in front of the interactor: the dot product of its
// forward direction and the normalized direction to the candidate must be at
// least MinDot. A candidate at the interactor's own position has no direction
// and is rejected.
type Cone struct {
	MinDot float64
}

func (c Cone) Accept(self Interactor, cand Candidate) bool {
	to := geom.Normalize(geom.Sub(cand.Pos, self.Position()))
	fwd := geom.Normalize(self.Forward())
	return geom.Dot(fwd, to) >= c.MinDot
}

// RefinerFunc adapts a function to Refiner.
type RefinerFunc func(self Interactor, c Candidate) bool

func (f RefinerFunc) Accept(self Interactor, c Candidate) bool { return f(self, c) }
