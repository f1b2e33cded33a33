package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/sim/scene"
	"interactworld.ai/internal/sim/tuning"
	"interactworld.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the tick and audit logs. Writes
// are queued and applied by a single goroutine; the JSONL logs remain the
// source of truth, so a full queue drops rows instead of stalling the world.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick   atomic.Uint64
	dropAudit  atomic.Uint64
	dropConfig atomic.Uint64
	dropSnap   atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqConfig
	reqSnapshot
)

type req struct {
	kind reqKind

	tick   world.TickLogEntry
	audit  world.AuditEntry
	config configRow
	snap   snapshotRow
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	Digest  string
	Props   int
	Agents  int
	Engaged int
}

func newSnapshotRow(path string, snap snapshot.SnapshotV1) snapshotRow {
	r := snapshotRow{Tick: snap.Header.Tick, Path: path, Digest: snap.Header.Digest, Props: len(snap.Props), Agents: len(snap.Agents)}
	for _, p := range snap.Props {
		r.Engaged += len(p.Engaged)
	}
	return r
}

type configRow struct {
	Name      string
	Digest    string
	JSON      []byte
	UpdatedAt string
}

// Stats reports queue pressure.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropTickTotal   uint64
	DropAuditTotal  uint64
	DropConfigTotal uint64
	DropSnapTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			scenes INTEGER NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			cmd TEXT NOT NULL,
			target_id TEXT,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_agent_tick ON commands(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			prop_id TEXT,
			kind TEXT,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_prop_tick ON audits(prop_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			props INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			engaged INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropTickTotal:   s.dropTick.Load(),
		DropAuditTotal:  s.dropAudit.Load(),
		DropConfigTotal: s.dropConfig.Load(),
		DropSnapTotal:   s.dropSnap.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// UpsertConfigs stores the tuning and scene in effect, as canonical JSON with
// a sha256 digest.
func (s *SQLiteIndex) UpsertConfigs(tune tuning.Tuning, sc scene.Scene) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	rows, err := configRows(tune, sc)
	if err != nil {
		return err
	}
	for _, r := range rows {
		select {
		case s.ch <- req{kind: reqConfig, config: r}:
		default:
			s.dropConfig.Add(1)
		}
	}
	return nil
}

// RecordSnapshot notes a snapshot file written for this world.
func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snap: newSnapshotRow(path, snap)}:
	default:
		s.dropSnap.Add(1)
	}
}

func configRows(tune tuning.Tuning, sc scene.Scene) ([]configRow, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var rows []configRow
	for _, c := range []struct {
		name string
		v    any
	}{{"tuning", tune}, {"scene", sc}} {
		b, err := json.Marshal(c.v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		sum := sha256.Sum256(b)
		rows = append(rows, configRow{Name: c.name, Digest: hex.EncodeToString(sum[:]), JSON: b, UpdatedAt: now})
	}
	return rows, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,scenes,joins,leaves,commands,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,agent_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,agent_id) VALUES(?,?)`)
	insertCmd, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,agent_id,cmd,target_id,cmd_json) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,prop_id,kind,x,y,z,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertConfig, _ := s.db.Prepare(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	insertSnap, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,digest,props,agents,engaged) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertLeave, insertCmd, insertAudit, insertConfig, insertSnap} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			b, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.Digest, len(e.Scenes), len(e.Joins), len(e.Leaves), len(e.Commands), string(b)) {
				continue
			}
			for _, j := range e.Joins {
				if !exec(insertJoin, int64(e.Tick), j.AgentID, j.Name) {
					break
				}
			}
			for _, id := range e.Leaves {
				if !exec(insertLeave, int64(e.Tick), id) {
					break
				}
			}
			for i, c := range e.Commands {
				cmdJSON, _ := json.Marshal(c.Cmd)
				if !exec(insertCmd, int64(e.Tick), i, c.AgentID, c.Cmd.Cmd, c.Cmd.TargetID, string(cmdJSON)) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.PropID, a.Kind, a.Pos[0], a.Pos[1], a.Pos[2], a.Reason, string(raw))

		case reqConfig:
			c := r.config
			exec(insertConfig, c.Name, c.Digest, string(c.JSON), c.UpdatedAt)

		case reqSnapshot:
			sn := r.snap
			exec(insertSnap, int64(sn.Tick), sn.Path, sn.Digest, sn.Props, sn.Agents, sn.Engaged)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
