package spatial

import (
	"errors"
	"testing"

	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/interact"
)

func newProp(pos geom.Vec3) *interact.Base {
	return interact.NewBase(pos, interact.Config{Range: 10}, nil)
}

func ids(x *Index, cs []interact.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		id, _ := x.IDOf(c.Target)
		out = append(out, id)
	}
	return out
}

func TestIndex_NearbyRadiusAndOrder(t *testing.T) {
	x := New(4)
	_ = x.Insert("far", newProp(geom.Vec3{X: 9}), geom.Vec3{X: 9}, 0)
	_ = x.Insert("b", newProp(geom.Vec3{X: -3}), geom.Vec3{X: -3}, 0)
	_ = x.Insert("a", newProp(geom.Vec3{X: 1}), geom.Vec3{X: 1}, 0)
	_ = x.Insert("edge", newProp(geom.Vec3{Z: 5}), geom.Vec3{Z: 5}, 0)

	got := ids(x, x.Nearby(geom.Vec3{}, 5, interact.AllLayers))
	want := []string{"b", "a", "edge"}
	if len(got) != len(want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want=%v (insertion order)", got, want)
		}
	}
}

func TestIndex_LayerMask(t *testing.T) {
	x := New(4)
	_ = x.Insert("door", newProp(geom.Vec3{X: 1}), geom.Vec3{X: 1}, 1<<1)
	_ = x.Insert("crate", newProp(geom.Vec3{X: 2}), geom.Vec3{X: 2}, 1<<2)

	got := ids(x, x.Nearby(geom.Vec3{}, 5, 1<<2))
	if len(got) != 1 || got[0] != "crate" {
		t.Fatalf("got=%v", got)
	}
	if n := len(x.Nearby(geom.Vec3{}, 5, 0)); n != 2 {
		t.Fatalf("mask 0 means all layers, got %d hits", n)
	}
	x.SetLayer("door", 1<<2)
	if n := len(x.Nearby(geom.Vec3{}, 5, 1<<2)); n != 2 {
		t.Fatalf("after SetLayer got %d hits", n)
	}
}

func TestIndex_MoveAcrossCellsKeepsOrder(t *testing.T) {
	x := New(2)
	_ = x.Insert("first", newProp(geom.Vec3{X: 30}), geom.Vec3{X: 30}, 0)
	_ = x.Insert("second", newProp(geom.Vec3{X: 1}), geom.Vec3{X: 1}, 0)

	if !x.Move("first", geom.Vec3{X: -1}) {
		t.Fatalf("move failed")
	}
	got := ids(x, x.Nearby(geom.Vec3{}, 3, interact.AllLayers))
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("got=%v", got)
	}
	if x.Move("missing", geom.Vec3{}) {
		t.Fatalf("move of unknown id must report false")
	}
}

func TestIndex_RemoveAndDuplicate(t *testing.T) {
	x := New(4)
	p := newProp(geom.Vec3{X: 1})
	if err := x.Insert("p", p, geom.Vec3{X: 1}, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := x.Insert("p", p, geom.Vec3{X: 1}, 0); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := x.Insert("", p, geom.Vec3{}, 0); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if !x.Remove("p") || x.Remove("p") {
		t.Fatalf("remove must succeed once")
	}
	if x.Len() != 0 || len(x.Nearby(geom.Vec3{}, 5, interact.AllLayers)) != 0 {
		t.Fatalf("index not empty after remove")
	}
	if _, ok := x.Get("p"); ok {
		t.Fatalf("get after remove")
	}
}

func TestIndex_HugeRadiusWalksPopulatedCells(t *testing.T) {
	x := New(1)
	_ = x.Insert("a", newProp(geom.Vec3{X: 500}), geom.Vec3{X: 500}, 0)
	_ = x.Insert("b", newProp(geom.Vec3{Z: -700}), geom.Vec3{Z: -700}, 0)
	if n := len(x.Nearby(geom.Vec3{}, 1e6, interact.AllLayers)); n != 2 {
		t.Fatalf("hits=%d want 2", n)
	}
	if n := len(x.Nearby(geom.Vec3{}, -1, interact.AllLayers)); n != 0 {
		t.Fatalf("negative radius must return nothing")
	}
}

func TestIndex_DrivesAgentScan(t *testing.T) {
	x := New(4)
	near := newProp(geom.Vec3{X: 1})
	far := newProp(geom.Vec3{X: 3})
	_ = x.Insert("far", far, geom.Vec3{X: 3}, 0)
	_ = x.Insert("near", near, geom.Vec3{X: 1}, 0)

	a := interact.NewAgent(interact.AgentConfig{ID: "A1", Radius: 5}, x)
	got, changed := a.Scan()
	if !changed || got != interact.Interactable(near) {
		t.Fatalf("scan picked %v", got)
	}
	ids := x.IDs()
	if len(ids) != 2 || ids[0] != "far" {
		t.Fatalf("ids=%v", ids)
	}
}
