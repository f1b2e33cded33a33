package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"interactworld.ai/internal/persistence/archive"
	"interactworld.ai/internal/persistence/indexdb"
	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/sim/scene"
	"interactworld.ai/internal/sim/world"
)

func TestWriteWorldMetrics(t *testing.T) {
	var b strings.Builder
	writeWorldMetrics(&b, "world_1", world.WorldMetrics{
		Tick:        42,
		Agents:      2,
		Props:       3,
		Engaged:     1,
		QueueDepths: world.QueueDepths{Inbox: 5},
	}, 2)
	out := b.String()
	for _, want := range []string{
		`interactworld_world_tick{world="world_1"} 42`,
		`interactworld_world_agents{world="world_1"} 2`,
		`interactworld_world_sessions{world="world_1"} 2`,
		`interactworld_world_engaged{world="world_1"} 1`,
		`interactworld_world_queue_depth{world="world_1",queue="inbox"} 5`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteIndexMetrics_NilIndexWritesNothing(t *testing.T) {
	var b strings.Builder
	writeIndexMetrics(&b, "world_1", nil)
	if b.Len() != 0 {
		t.Fatalf("unexpected output: %q", b.String())
	}
}

func TestOpenRuntimeIndex_Backends(t *testing.T) {
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, "world_1", true, nil)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("IW_INDEX_BACKEND", "off")
	idx, err = openRuntimeIndex(dir, "world_1", false, nil)
	if err != nil || idx != nil {
		t.Fatalf("off: idx=%v err=%v", idx, err)
	}

	t.Setenv("IW_INDEX_BACKEND", "remote")
	t.Setenv("IW_INDEX_INGEST_URL", "")
	if _, err := openRuntimeIndex(dir, "world_1", false, nil); err == nil {
		t.Fatalf("expected error for remote without endpoint")
	}

	t.Setenv("IW_INDEX_BACKEND", "bogus")
	if _, err := openRuntimeIndex(dir, "world_1", false, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	t.Setenv("IW_INDEX_BACKEND", "")
	idx, err = openRuntimeIndex(dir, "world_1", false, nil)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer idx.Close()
	if _, ok := idx.(*indexdb.SQLiteIndex); !ok {
		t.Fatalf("default backend=%T want *indexdb.SQLiteIndex", idx)
	}
}

type countingTickLogger struct{ n int }

func (c *countingTickLogger) WriteTick(world.TickLogEntry) error { c.n++; return nil }

func TestMultiTickLogger_FansOut(t *testing.T) {
	a, b := &countingTickLogger{}, &countingTickLogger{}
	m := multiTickLogger{a: a, b: b}
	_ = m.WriteTick(world.TickLogEntry{Tick: 1})
	_ = multiTickLogger{a: a}.WriteTick(world.TickLogEntry{Tick: 2})
	if a.n != 2 || b.n != 1 {
		t.Fatalf("a=%d b=%d", a.n, b.n)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.2:5000":  false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestOpenMirror_DisabledAndMisconfigured(t *testing.T) {
	ctx := context.Background()
	t.Setenv("IW_MIRROR", "")
	m, err := openMirror(ctx, t.TempDir(), nil)
	if err != nil || m != nil {
		t.Fatalf("disabled: m=%v err=%v", m, err)
	}
	var b strings.Builder
	writeMirrorMetrics(&b, "world_1", m)
	if b.Len() != 0 {
		t.Fatalf("nil mirror wrote metrics: %q", b.String())
	}

	t.Setenv("IW_MIRROR", "true")
	t.Setenv("IW_MIRROR_BUCKET", "")
	if _, err := openMirror(ctx, t.TempDir(), nil); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestResumeFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := world.WorldConfig{ID: "world_1", DetectionRadius: 2.5}

	w, _ := world.New(cfg)
	if ids, err := resumeFromSnapshot(w, dir, ""); err != nil || ids != nil {
		t.Fatalf("no snapshot: ids=%v err=%v", ids, err)
	}
	if ids, err := resumeFromSnapshot(w, dir, "latest"); err != nil || ids != nil {
		t.Fatalf("empty dir: ids=%v err=%v", ids, err)
	}

	src, err := world.NewWithScene(cfg, scene.Scene{Props: []scene.PropSpec{{ID: "d", Kind: "door", Pos: [3]float64{0, 0, 1}}}})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	src.StepOnce([]world.JoinRequest{{Name: "a"}, {Name: "b", Spawn: [3]float64{5, 0, 0}}}, nil, nil)
	if err := snapshot.WriteSnapshot(snapshot.Path(dir, 0), src.ExportSnapshot(0)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ids, err := resumeFromSnapshot(w, dir, "latest")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(ids) != 2 || ids[0] != "A1" || ids[1] != "A2" || w.CurrentTick() != 1 {
		t.Fatalf("ids=%v tick=%d", ids, w.CurrentTick())
	}
}

func TestPersistSnapshot_ArchivesAndPrunes(t *testing.T) {
	worldDir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	pol := snapshotPolicy{Keep: 1, ArchiveEvery: 2}
	for _, tick := range []uint64{2, 3} {
		persistSnapshot(worldDir, snapshot.SnapshotV1{Header: snapshot.Header{WorldID: "W1", Tick: tick}}, pol, nil, nil, logger)
	}

	left, err := snapshot.List(filepath.Join(worldDir, "snapshots"))
	if err != nil || len(left) != 1 || filepath.Base(left[0]) != "3.snap.zst" {
		t.Fatalf("rolling snapshots=%v err=%v", left, err)
	}
	ms, err := archive.ReadMilestones(worldDir)
	if err != nil || len(ms) != 1 || ms[0].Tick != 2 {
		t.Fatalf("milestones=%+v err=%v", ms, err)
	}
}

func TestSnapshotPolicyFromEnv(t *testing.T) {
	t.Setenv("IW_SNAPSHOT_KEEP", "0")
	t.Setenv("IW_SNAPSHOT_ARCHIVE_EVERY", "72000")
	pol := snapshotPolicyFromEnv()
	if pol.Keep != 0 || pol.ArchiveEvery != 72000 {
		t.Fatalf("policy=%+v", pol)
	}
	t.Setenv("IW_SNAPSHOT_KEEP", "-3")
	if pol := snapshotPolicyFromEnv(); pol.Keep != 24 {
		t.Fatalf("negative keep should fall back, got %+v", pol)
	}
}
