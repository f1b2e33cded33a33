package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type dbQuery struct {
	Name      string
	SinceTick uint64
	Limit     int
	AgentID   string
	PropID    string
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	limit := fs.Int("limit", 20, "result limit")
	agentID := fs.String("agent", "", "agent_id filter (commands, audits)")
	propID := fs.String("prop", "", "prop_id filter (commands, audits)")
	_ = fs.Parse(args)

	q := dbQuery{
		Name:      "ticks",
		SinceTick: *sinceTick,
		Limit:     *limit,
		AgentID:   strings.TrimSpace(*agentID),
		PropID:    strings.TrimSpace(*propID),
	}
	if fs.NArg() > 0 {
		q.Name = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-since_tick T] [-agent ID] [-prop ID] ticks|commands|audits|snapshots|configs")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type tickRow struct {
	Tick     uint64 `db:"tick" json:"tick"`
	Digest   string `db:"digest" json:"digest"`
	Scenes   int    `db:"scenes" json:"scenes"`
	Joins    int    `db:"joins" json:"joins"`
	Leaves   int    `db:"leaves" json:"leaves"`
	Commands int    `db:"commands" json:"commands"`
}

type commandRow struct {
	Tick     uint64 `db:"tick" json:"tick"`
	Seq      int    `db:"seq" json:"seq"`
	AgentID  string `db:"agent_id" json:"agent_id"`
	Cmd      string `db:"cmd" json:"cmd"`
	TargetID string `db:"target_id" json:"target_id,omitempty"`
}

type auditRow struct {
	Tick   uint64  `db:"tick" json:"tick"`
	Seq    int     `db:"seq" json:"seq"`
	Actor  string  `db:"actor" json:"actor"`
	Action string  `db:"action" json:"action"`
	PropID string  `db:"prop_id" json:"prop_id,omitempty"`
	Kind   string  `db:"kind" json:"kind,omitempty"`
	X      float64 `db:"x" json:"x"`
	Y      float64 `db:"y" json:"y"`
	Z      float64 `db:"z" json:"z"`
	Reason string  `db:"reason" json:"reason,omitempty"`
}

type snapshotRow struct {
	Tick    uint64 `db:"tick" json:"tick"`
	Path    string `db:"path" json:"path"`
	Digest  string `db:"digest" json:"digest"`
	Props   int    `db:"props" json:"props"`
	Agents  int    `db:"agents" json:"agents"`
	Engaged int    `db:"engaged" json:"engaged"`
}

type configRow struct {
	Name      string `db:"name" json:"name"`
	Digest    string `db:"digest" json:"digest"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

func runQuery(db *sqlx.DB, q dbQuery, emit func(any)) error {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	switch q.Name {
	case "ticks":
		return selectRows[tickRow](db, emit,
			`SELECT tick,digest,scenes,joins,leaves,commands FROM ticks WHERE tick>=? ORDER BY tick LIMIT ?`,
			q.SinceTick, q.Limit)
	case "commands":
		return selectRows[commandRow](db, emit,
			`SELECT tick,seq,agent_id,cmd,COALESCE(target_id,'') AS target_id FROM commands
			WHERE tick>=? AND (?='' OR agent_id=?) AND (?='' OR target_id=?)
			ORDER BY tick,seq LIMIT ?`,
			q.SinceTick, q.AgentID, q.AgentID, q.PropID, q.PropID, q.Limit)
	case "audits":
		return selectRows[auditRow](db, emit,
			`SELECT tick,seq,actor,action,COALESCE(prop_id,'') AS prop_id,COALESCE(kind,'') AS kind,x,y,z,COALESCE(reason,'') AS reason FROM audits
			WHERE tick>=? AND (?='' OR actor=?) AND (?='' OR prop_id=?)
			ORDER BY tick,seq LIMIT ?`,
			q.SinceTick, q.AgentID, q.AgentID, q.PropID, q.PropID, q.Limit)
	case "snapshots":
		return selectRows[snapshotRow](db, emit,
			`SELECT tick,path,digest,props,agents,engaged FROM snapshots WHERE tick>=? ORDER BY tick LIMIT ?`,
			q.SinceTick, q.Limit)
	case "configs":
		return selectRows[configRow](db, emit, `SELECT name,digest,updated_at FROM configs ORDER BY name`)
	default:
		return fmt.Errorf("unknown query: %s", q.Name)
	}
}

func selectRows[T any](db *sqlx.DB, emit func(any), query string, args ...any) error {
	var rows []T
	if err := db.Select(&rows, query, args...); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	for _, r := range rows {
		emit(r)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
