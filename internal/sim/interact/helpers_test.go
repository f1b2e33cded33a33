package interact

import "interactworld.ai/internal/sim/geom"

type testProp struct {
	*Base
	begins int
	ends   int
}

func newTestProp(pos geom.Vec3, rng float64) *testProp {
	p := &testProp{}
	p.Base = NewBase(pos, Config{Range: rng}, EffectFuncs{
		Begin: func(Interactor) { p.begins++ },
		End:   func(Interactor) { p.ends++ },
	})
	return p
}

type positioned interface {
	Interactable
	Position() geom.Vec3
}

// fakeWorld is an in-memory spatial query that enumerates in insertion order.
type fakeWorld struct {
	items []positioned
	calls int
}

func (w *fakeWorld) add(xs ...positioned) { w.items = append(w.items, xs...) }

func (w *fakeWorld) remove(x positioned) {
	for k, it := range w.items {
		if it == x {
			w.items = append(w.items[:k], w.items[k+1:]...)
			return
		}
	}
}

func (w *fakeWorld) Nearby(center geom.Vec3, radius float64, _ Layer) []Candidate {
	w.calls++
	var out []Candidate
	for _, it := range w.items {
		if geom.Distance(center, it.Position()) <= radius {
			out = append(out, Candidate{Target: it, Pos: it.Position()})
		}
	}
	return out
}

type recorder struct {
	got []Interactable
}

func (r *recorder) fn(_ *Agent, t Interactable) { r.got = append(r.got, t) }
