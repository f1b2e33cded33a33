package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"interactworld.ai/internal/persistence/archive"
	"interactworld.ai/internal/persistence/r2s3"
	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/sim/world"
)

// resumeFromSnapshot loads the named snapshot ("latest" picks the newest in
// the world dir) into w and returns the ids of the agents it restored.
func resumeFromSnapshot(w *world.World, worldDir, which string) ([]string, error) {
	path := strings.TrimSpace(which)
	if path == "" {
		return nil, nil
	}
	if path == "latest" {
		p, err := snapshot.Latest(filepath.Join(worldDir, "snapshots"))
		if err != nil {
			return nil, err
		}
		if p == "" {
			return nil, nil
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(snap.Agents))
	for _, a := range snap.Agents {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// snapshotPolicy is read from IW_SNAPSHOT_KEEP and IW_SNAPSHOT_ARCHIVE_EVERY.
type snapshotPolicy struct {
	// Keep bounds the rolling snapshots directory; 0 keeps everything.
	Keep int
	// ArchiveEvery copies snapshots at multiples of this tick into archives/.
	ArchiveEvery uint64
}

func snapshotPolicyFromEnv() snapshotPolicy {
	return snapshotPolicy{
		Keep:         envIntAllowZero("IW_SNAPSHOT_KEEP", 24),
		ArchiveEvery: uint64(envIntAllowZero("IW_SNAPSHOT_ARCHIVE_EVERY", 0)),
	}
}

// writeSnapshots persists snapshots handed over by the world loop, records
// them in the index and queues each file for the mirror. idx may be nil.
// It returns once ch is closed.
func writeSnapshots(worldDir string, ch <-chan snapshot.SnapshotV1, pol snapshotPolicy, idx runtimeIndex, mirror *r2s3.Mirror, logger *log.Logger) {
	for snap := range ch {
		persistSnapshot(worldDir, snap, pol, idx, mirror, logger)
	}
}

func persistSnapshot(worldDir string, snap snapshot.SnapshotV1, pol snapshotPolicy, idx runtimeIndex, mirror *r2s3.Mirror, logger *log.Logger) {
	path := snapshot.Path(worldDir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
	mirror.Enqueue(path)

	if dst, ok, err := archive.ArchiveMilestone(worldDir, path, snap, pol.ArchiveEvery); err != nil {
		logger.Printf("snapshot archive: %v", err)
	} else if ok {
		logger.Printf("archived snapshot tick=%d path=%s", snap.Header.Tick, dst)
		mirror.Enqueue(dst)
	}
	if _, err := archive.Prune(filepath.Dir(path), pol.Keep); err != nil {
		logger.Printf("snapshot prune: %v", err)
	}
}
