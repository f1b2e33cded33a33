package interact

import "interactworld.ai/internal/sim/geom"

// resolve turns everything in the detection radius into at most one target.
//
// Ranking is by distance from the agent. Ties go to the candidate the query
// enumerated first: the comparison is strict, so a later candidate at the same
// distance never replaces an earlier one.
func (a *Agent) resolve() Interactable {
	if a.query == nil {
		return nil
	}
	cands := a.query.Nearby(a.pos, a.radius, a.mask)

	switch a.mode {
	case RefineFallThrough:
		best, ok := a.closest(cands, a.refined)
		if !ok {
			return nil
		}
		return best.Target
	default:
		best, ok := a.closest(cands, nil)
		if !ok {
			return nil
		}
		if !a.refined(best) {
			return nil
		}
		return best.Target
	}
}

func (a *Agent) closest(cands []Candidate, accept func(Candidate) bool) (Candidate, bool) {
	var (
		best     Candidate
		bestDist float64
		found    bool
	)
	for _, c := range cands {
		if c.Target == nil {
			continue
		}
		if !c.Target.CanInteract(a) {
			continue
		}
		if accept != nil && !accept(c) {
			continue
		}
		d := geom.DistanceSq(a.pos, c.Pos)
		if !found || d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best, found
}

func (a *Agent) refined(c Candidate) bool {
	for _, r := range a.refiners {
		if !r.Accept(a, c) {
			return false
		}
	}
	return true
}
