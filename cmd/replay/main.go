package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "interactworld.ai/internal/persistence/log"
	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/sim/tuning"
	"interactworld.ai/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		worldDir   = flag.String("world_dir", "", "world data dir (events are read from <world_dir>/events)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (overrides -world_dir)")
		worldID    = flag.String("world", "world_1", "world id")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml the world ran with")
		snapPath   = flag.String("snapshot", "", "start from this .snap.zst instead of tick 0 (tuning and world id come from it)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	dir := strings.TrimSpace(*eventsDir)
	if dir == "" {
		if strings.TrimSpace(*worldDir) == "" {
			fmt.Fprintln(os.Stderr, "missing -world_dir or -events")
			os.Exit(2)
		}
		dir = persistlog.EventsDir(*worldDir)
	}

	w, err := openWorld(*snapPath, *worldID, *tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	files, err := persistlog.ListFiles(dir, persistlog.TickPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", dir)
		os.Exit(1)
	}

	r := replayer{w: w, verifyFrom: *fromTick, toTick: *toTick}
	for _, path := range files {
		err := persistlog.ReadTicks(path, r.step)
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d ticks, skipped=%d, last tick=%d\n", r.checked, r.skipped, r.last)
}

// openWorld builds the world to replay into: fresh from tuning, or resumed
// from a snapshot.
func openWorld(snapPath, worldID, tuningPath string) (*world.World, error) {
	if strings.TrimSpace(snapPath) == "" {
		tune, err := tuning.Load(tuningPath)
		if err != nil {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		w, err := world.New(world.ConfigFromTuning(worldID, tune))
		if err != nil {
			return nil, fmt.Errorf("world: %w", err)
		}
		return w, nil
	}
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	w, err := world.New(world.ConfigFromSnapshot(snap))
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	fmt.Printf("snapshot v%d world=%s tick=%d props=%d agents=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, len(snap.Props), len(snap.Agents))
	return w, nil
}

type replayer struct {
	w          *world.World
	verifyFrom uint64
	toTick     uint64

	checked uint64
	skipped uint64
	last    uint64
}

// step replays one logged tick and compares digests. Entries the world has
// already passed (it was resumed from a snapshot) are skipped; a gap is an
// error.
func (r *replayer) step(entry world.TickLogEntry) error {
	if r.toTick != 0 && entry.Tick > r.toTick {
		return errStop
	}
	if entry.Tick < r.w.CurrentTick() {
		r.skipped++
		return nil
	}
	if entry.Tick != r.w.CurrentTick() {
		return fmt.Errorf("tick mismatch: want=%d got=%d", r.w.CurrentTick(), entry.Tick)
	}
	tick, digest := r.w.Step(world.ReplayInput(entry))
	if tick != entry.Tick {
		return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
	}
	r.last = tick
	if tick >= r.verifyFrom {
		r.checked++
		if digest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
		}
	}
	return nil
}
