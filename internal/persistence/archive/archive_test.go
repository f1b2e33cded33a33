package archive

import (
	"os"
	"path/filepath"
	"testing"

	"interactworld.ai/internal/persistence/snapshot"
)

func writeSnap(t *testing.T, worldDir string, tick uint64) (string, snapshot.SnapshotV1) {
	t.Helper()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{WorldID: "w1", Tick: tick, Digest: "d"},
		Props:  []snapshot.PropV1{{ID: "front_door", Kind: "door"}},
	}
	path := snapshot.Path(worldDir, tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path, snap
}

func TestArchiveMilestone_CopiesOnlyMultiples(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")

	path, snap := writeSnap(t, worldDir, 1200)
	if _, ok, err := ArchiveMilestone(worldDir, path, snap, 0); ok || err != nil {
		t.Fatalf("every=0 archived=%v err=%v", ok, err)
	}
	if _, ok, _ := ArchiveMilestone(worldDir, path, snap, 7000); ok {
		t.Fatalf("non-multiple archived")
	}

	dst, ok, err := ArchiveMilestone(worldDir, path, snap, 600)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	got, err := snapshot.ReadSnapshot(dst)
	if err != nil || got.Header.Tick != 1200 {
		t.Fatalf("archived snapshot unreadable: %+v %v", got.Header, err)
	}

	ms, err := ReadMilestones(worldDir)
	if err != nil || len(ms) != 1 {
		t.Fatalf("milestones=%v err=%v", ms, err)
	}
	if ms[0].Tick != 1200 || ms[0].Props != 1 || ms[0].Snapshot != "1200.snap.zst" {
		t.Fatalf("meta=%+v", ms[0])
	}
}

func TestPrune_KeepsNewest(t *testing.T) {
	worldDir := t.TempDir()
	for _, tick := range []uint64{10, 20, 30, 40} {
		writeSnap(t, worldDir, tick)
	}
	dir := filepath.Join(worldDir, "snapshots")

	if removed, err := Prune(dir, 0); err != nil || removed != nil {
		t.Fatalf("keep=0 removed=%v err=%v", removed, err)
	}
	removed, err := Prune(dir, 2)
	if err != nil || len(removed) != 2 {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
	if filepath.Base(removed[0]) != "10.snap.zst" || filepath.Base(removed[1]) != "20.snap.zst" {
		t.Fatalf("removed=%v", removed)
	}
	left, _ := snapshot.List(dir)
	if len(left) != 2 || filepath.Base(left[0]) != "30.snap.zst" {
		t.Fatalf("left=%v", left)
	}
	if _, err := os.Stat(removed[0]); !os.IsNotExist(err) {
		t.Fatalf("pruned file still present")
	}
}
