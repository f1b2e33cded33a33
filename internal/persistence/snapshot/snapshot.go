package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	// Digest is the state digest of Tick; an import must reproduce it.
	Digest string `json:"digest"`
}

// SnapshotV1 is the world state right after Header.Tick was stepped.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate        int     `json:"tick_rate_hz"`
	CellSize        float64 `json:"cell_size"`
	DetectionRadius float64 `json:"detection_radius"`
	ConeEnabled     bool    `json:"cone_enabled"`
	ConeMinDot      float64 `json:"cone_min_dot"`
	ConeFallThrough bool    `json:"cone_fall_through,omitempty"`
	DefaultRange    float64 `json:"default_range"`
	DefaultPrompt   string  `json:"default_prompt"`

	Props  []PropV1  `json:"props"`
	Agents []AgentV1 `json:"agents"`

	Counters CountersV1 `json:"counters"`
}

// PropV1 is the scene entry a prop was placed from plus its runtime state.
type PropV1 struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Pos         [3]float64 `json:"pos"`
	Range       float64    `json:"range,omitempty"`
	Prompt      string     `json:"prompt,omitempty"`
	Disabled    bool       `json:"disabled,omitempty"`
	Open        bool       `json:"open,omitempty"`
	OpenPrompt  string     `json:"open_prompt,omitempty"`
	ClosePrompt string     `json:"close_prompt,omitempty"`
	Layer       uint32     `json:"layer,omitempty"`

	// Engaged lists agent ids in engagement order.
	Engaged []string `json:"engaged,omitempty"`
	// State is the prop's own state as JSON.
	State []byte `json:"state,omitempty"`
}

type AgentV1 struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Pos  [3]float64 `json:"pos"`
	Yaw  float64    `json:"yaw"`
}

type CountersV1 struct {
	NextAgent uint64 `json:"next_agent"`
}

// Path names the snapshot of tick under worldDir.
func Path(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the snapshot with the highest tick in dir, or "" when
// there is none.
func Latest(dir string) (string, error) {
	paths, err := List(dir)
	if err != nil || len(paths) == 0 {
		return "", err
	}
	return paths[len(paths)-1], nil
}

// List returns the snapshots in dir ordered by tick.
func List(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type snap struct {
		tick uint64
		path string
	}
	var found []snap
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		n, ok := strings.CutSuffix(e.Name(), ".snap.zst")
		if !ok {
			continue
		}
		tick, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			continue
		}
		found = append(found, snap{tick: tick, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].tick < found[j].tick })
	out := make([]string, len(found))
	for i, s := range found {
		out[i] = s.path
	}
	return out, nil
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, zstd compressed. The file is renamed into place once complete.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
