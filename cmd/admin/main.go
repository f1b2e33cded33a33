package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "interactworld.ai/internal/persistence/log"
	"interactworld.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// auditCmd prints audit entries from the world's audit log files.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	propID := fs.String("prop", "", "prop id filter (optional)")
	actor := fs.String("actor", "", "actor filter, an agent id or WORLD (optional)")
	action := fs.String("action", "", "action filter, e.g. INTERACTION_BEGIN (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	f := auditFilter{
		PropID:    strings.TrimSpace(*propID),
		Actor:     strings.TrimSpace(*actor),
		Action:    strings.ToUpper(strings.TrimSpace(*action)),
		SinceTick: *sinceTick,
		ToTick:    *toTick,
	}

	dir := filepath.Join(*dataDir, "worlds", *worldID, "audit")
	n, err := readAudit(dir, f, func(e world.AuditEntry) { printJSON(e) })
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d matching entries\n", n)
}

type auditFilter struct {
	PropID    string
	Actor     string
	Action    string
	SinceTick uint64
	ToTick    uint64
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if f.PropID != "" && e.PropID != f.PropID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if e.Tick < f.SinceTick {
		return false
	}
	if f.ToTick != 0 && e.Tick > f.ToTick {
		return false
	}
	return true
}

func readAudit(dir string, f auditFilter, emit func(world.AuditEntry)) (int, error) {
	files, err := persistlog.ListFiles(dir, persistlog.AuditPrefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, path := range files {
		err := persistlog.ReadAudits(path, func(e world.AuditEntry) error {
			if f.match(e) {
				n++
				emit(e)
			}
			return nil
		})
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
