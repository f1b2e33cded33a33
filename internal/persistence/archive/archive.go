// Package archive keeps long-lived copies of selected snapshots and prunes
// the rolling snapshot directory.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"interactworld.ai/internal/persistence/snapshot"
)

type MilestoneMeta struct {
	WorldID   string `json:"world_id"`
	Tick      uint64 `json:"tick"`
	Digest    string `json:"digest"`
	Snapshot  string `json:"snapshot"`
	Props     int    `json:"props"`
	Agents    int    `json:"agents"`
	CreatedAt string `json:"created_at"`
}

// ArchiveMilestone copies the snapshot at snapshotPath into
// worldDir/archives/tick_<T>/ when its tick is a positive multiple of every.
// Archived snapshots are never pruned.
func ArchiveMilestone(worldDir, snapshotPath string, snap snapshot.SnapshotV1, every uint64) (archivedPath string, archived bool, err error) {
	tick := snap.Header.Tick
	if every == 0 || tick == 0 || tick%every != 0 {
		return "", false, nil
	}

	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%012d", tick))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := MilestoneMeta{
		WorldID:   snap.Header.WorldID,
		Tick:      tick,
		Digest:    snap.Header.Digest,
		Snapshot:  filepath.Base(dst),
		Props:     len(snap.Props),
		Agents:    len(snap.Agents),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), append(b, '\n'), 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// Prune removes all but the newest keep snapshots in dir and returns the
// removed paths. keep <= 0 disables pruning.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	paths, err := snapshot.List(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) <= keep {
		return nil, nil
	}
	var removed []string
	for _, p := range paths[:len(paths)-keep] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

// ReadMilestones lists archived milestones, oldest first.
func ReadMilestones(worldDir string) ([]MilestoneMeta, error) {
	matches, err := filepath.Glob(filepath.Join(worldDir, "archives", "tick_*", "meta.json"))
	if err != nil {
		return nil, err
	}
	out := make([]MilestoneMeta, 0, len(matches))
	for _, p := range matches {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var m MilestoneMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
