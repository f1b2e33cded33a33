package scene

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"interactworld.ai/internal/sim/props"
)

func TestLoad_RepoScene(t *testing.T) {
	s, err := Load("../../../configs/scene.yaml")
	if err != nil {
		t.Fatalf("load scene.yaml: %v", err)
	}
	if len(s.Props) == 0 {
		t.Fatalf("expected props")
	}
	for _, p := range s.Props {
		if _, err := p.Build(2, "Interact"); err != nil {
			t.Fatalf("build %s: %v", p.ID, err)
		}
	}
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"missing id": "props:\n  - kind: door\n",
		"duplicate":  "props:\n  - {id: a, kind: door}\n  - {id: a, kind: button}\n",
		"bad kind":   "props:\n  - {id: a, kind: lever}\n",
		"bad range":  "props:\n  - {id: a, kind: door, range: -1}\n",
	}
	for name, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestBuild_DefaultsAndPrompts(t *testing.T) {
	s, err := Parse([]byte(`props:
  - {id: d, kind: door, pos: [1, 2, 3]}
  - {id: b, kind: button}
  - {id: c, kind: button, prompt: "Ring", range: 4}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, _ := s.Props[0].Build(3, "Use")
	if d.Core().Range() != 3 || d.Core().Position().Z != 3 {
		t.Fatalf("door range=%v pos=%+v", d.Core().Range(), d.Core().Position())
	}
	if d.InteractionPrompt() != props.DefaultOpenPrompt {
		t.Fatalf("door prompt=%q", d.InteractionPrompt())
	}
	b, _ := s.Props[1].Build(3, "Use")
	if b.InteractionPrompt() != "Press" {
		t.Fatalf("button prompt=%q", b.InteractionPrompt())
	}
	c, _ := s.Props[2].Build(3, "Use")
	if c.InteractionPrompt() != "Ring" || c.Core().Range() != 4 {
		t.Fatalf("button c prompt=%q range=%v", c.InteractionPrompt(), c.Core().Range())
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	s, err := Load("")
	if err != nil || len(s.Props) != 0 {
		t.Fatalf("empty path: %v %+v", err, s)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "scene.yaml")
	if err := os.WriteFile(p, []byte("props: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, err := NewWatcher(p, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond
	got := make(chan Scene, 4)
	w.OnChange(func(s Scene) { got <- s })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(p, []byte("props:\n  - {id: a, kind: door}\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	select {
	case s := <-got:
		if len(s.Props) != 1 || s.Props[0].ID != "a" {
			t.Fatalf("reloaded scene=%+v", s)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}
}
