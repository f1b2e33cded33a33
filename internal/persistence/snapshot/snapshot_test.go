package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func sample(tick uint64) SnapshotV1 {
	return SnapshotV1{
		Header:          Header{WorldID: "W1", Tick: tick, Digest: "abc"},
		TickRate:        20,
		DetectionRadius: 2.5,
		ConeEnabled:     true,
		ConeMinDot:      0.5,
		Props: []PropV1{{
			ID:      "front_door",
			Kind:    "door",
			Pos:     [3]float64{0, 0, 4},
			Engaged: []string{"A2", "A1"},
			State:   []byte(`{"open":true}`),
		}},
		Agents:   []AgentV1{{ID: "A1", Name: "bot", Pos: [3]float64{0, 0, 2.5}, Yaw: 90}},
		Counters: CountersV1{NextAgent: 2},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, 40)
	if err := WriteSnapshot(path, sample(40)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Version != Version || got.Header.Tick != 40 || got.Header.Digest != "abc" {
		t.Fatalf("header=%+v", got.Header)
	}
	p := got.Props[0]
	if p.ID != "front_door" || len(p.Engaged) != 2 || p.Engaged[0] != "A2" || string(p.State) != `{"open":true}` {
		t.Fatalf("prop=%+v", p)
	}
	if got.Agents[0].Yaw != 90 || got.Counters.NextAgent != 2 {
		t.Fatalf("agents=%+v counters=%+v", got.Agents, got.Counters)
	}

	h, err := ReadHeader(path)
	if err != nil || h.Tick != 40 || h.WorldID != "W1" {
		t.Fatalf("header=%+v err=%v", h, err)
	}
}

func TestListAndLatest_OrderByTick(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{100, 20, 3} {
		if err := WriteSnapshot(Path(dir, tick), sample(tick)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "snapshots", "notes.txt"), []byte("x"), 0o644)

	paths, err := List(filepath.Join(dir, "snapshots"))
	if err != nil || len(paths) != 3 {
		t.Fatalf("paths=%v err=%v", paths, err)
	}
	if filepath.Base(paths[0]) != "3.snap.zst" || filepath.Base(paths[2]) != "100.snap.zst" {
		t.Fatalf("order=%v", paths)
	}
	latest, err := Latest(filepath.Join(dir, "snapshots"))
	if err != nil || filepath.Base(latest) != "100.snap.zst" {
		t.Fatalf("latest=%s err=%v", latest, err)
	}

	none, err := Latest(filepath.Join(dir, "missing"))
	if err != nil || none != "" {
		t.Fatalf("missing dir: %q %v", none, err)
	}
}
