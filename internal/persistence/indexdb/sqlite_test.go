package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/scene"
	"interactworld.ai/internal/sim/tuning"
	"interactworld.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	_ = s.UpsertConfigs(tuning.Defaults(), scene.Scene{})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.DropConfigTotal != 2 {
		t.Fatalf("DropConfigTotal=%d want=2", st.DropConfigTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesTicksAndAudits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.UpsertConfigs(tuning.Defaults(), scene.Scene{Props: []scene.PropSpec{{ID: "d", Kind: "door"}}})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   7,
		Digest: "abc",
		Joins:  []world.RecordedJoin{{AgentID: "A1", Name: "bot"}},
		Commands: []world.RecordedCommand{
			{AgentID: "A1", Cmd: protocol.CmdMsg{Cmd: protocol.CmdBegin, TargetID: "d"}},
			{AgentID: "A1", Cmd: protocol.CmdMsg{Cmd: protocol.CmdEnd, TargetID: "d"}},
		},
	})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 7, Actor: "A1", Action: "INTERACTION_BEGIN", PropID: "d", Kind: "door", Pos: [3]float64{0, 0, 4}})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 7, Actor: "A1", Action: "INTERACTION_END", PropID: "d", Kind: "door", Pos: [3]float64{0, 0, 4}})
	idx.RecordSnapshot("snapshots/7.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Tick: 7, Digest: "abc"},
		Props:  []snapshot.PropV1{{ID: "d", Engaged: []string{"A1"}}},
		Agents: []snapshot.AgentV1{{ID: "A1"}},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var digest string
	var joins, commands int
	if err := db.QueryRow(`SELECT digest,joins,commands FROM ticks WHERE tick=7`).Scan(&digest, &joins, &commands); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if digest != "abc" || joins != 1 || commands != 2 {
		t.Fatalf("tick row mismatch: digest=%s joins=%d commands=%d", digest, joins, commands)
	}

	var cmd, target string
	if err := db.QueryRow(`SELECT cmd,target_id FROM commands WHERE tick=7 AND seq=1`).Scan(&cmd, &target); err != nil {
		t.Fatalf("commands: %v", err)
	}
	if cmd != protocol.CmdEnd || target != "d" {
		t.Fatalf("command row mismatch: %s %s", cmd, target)
	}

	rows, err := db.Query(`SELECT seq,action FROM audits WHERE prop_id='d' ORDER BY seq`)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	defer rows.Close()
	var actions []string
	for rows.Next() {
		var seq int
		var action string
		if err := rows.Scan(&seq, &action); err != nil {
			t.Fatalf("scan: %v", err)
		}
		actions = append(actions, action)
	}
	if len(actions) != 2 || actions[0] != "INTERACTION_BEGIN" || actions[1] != "INTERACTION_END" {
		t.Fatalf("audit rows: %v", actions)
	}

	var snapPath string
	var engaged int
	if err := db.QueryRow(`SELECT path,engaged FROM snapshots WHERE tick=7`).Scan(&snapPath, &engaged); err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if snapPath != "snapshots/7.snap.zst" || engaged != 1 {
		t.Fatalf("snapshot row mismatch: %s engaged=%d", snapPath, engaged)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM configs WHERE name IN ('tuning','scene')`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("configs: n=%d err=%v", n, err)
	}
}
