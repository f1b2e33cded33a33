package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"interactworld.ai/internal/persistence/archive"
	"interactworld.ai/internal/persistence/snapshot"
)

type snapshotSummary struct {
	Path    string          `json:"path"`
	Header  snapshot.Header `json:"header"`
	Props   int             `json:"props,omitempty"`
	Agents  []string        `json:"agents,omitempty"`
	Engaged map[string]int  `json:"engaged,omitempty"`
}

// snapshotCmd lists a world's snapshots, or summarizes one with -path.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (list mode)")
	path := fs.String("path", "", "snapshot file to summarize")
	archives := fs.Bool("archives", false, "list archived milestones instead (list mode)")
	_ = fs.Parse(args)

	if p := strings.TrimSpace(*path); p != "" {
		snap, err := snapshot.ReadSnapshot(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		printJSON(summarizeSnapshot(p, snap))
		return
	}

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world or -path")
		os.Exit(2)
	}
	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if *archives {
		ms, err := archive.ReadMilestones(worldDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list archives:", err)
			os.Exit(1)
		}
		for _, m := range ms {
			printJSON(m)
		}
		return
	}
	paths, err := snapshot.List(filepath.Join(worldDir, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list snapshots:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(p), err)
			continue
		}
		printJSON(snapshotSummary{Path: p, Header: h})
	}
}

func summarizeSnapshot(path string, snap snapshot.SnapshotV1) snapshotSummary {
	sum := snapshotSummary{Path: path, Header: snap.Header, Props: len(snap.Props)}
	for _, a := range snap.Agents {
		sum.Agents = append(sum.Agents, a.ID)
	}
	for _, p := range snap.Props {
		if len(p.Engaged) == 0 {
			continue
		}
		if sum.Engaged == nil {
			sum.Engaged = map[string]int{}
		}
		sum.Engaged[p.ID] = len(p.Engaged)
	}
	return sum
}
