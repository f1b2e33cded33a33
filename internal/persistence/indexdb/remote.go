package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/sim/scene"
	"interactworld.ai/internal/sim/tuning"
	"interactworld.ai/internal/sim/world"
)

// RemoteConfig points a RemoteIndex at an HTTP ingest endpoint that accepts
// {"events":[...]} batches.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds how many unsent events are kept across failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

// RemoteIndex ships tick and audit rows to a remote read model. It has the
// same drop-if-full contract as SQLiteIndex.
type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	auditMu       sync.Mutex
	lastAuditTick uint64
	auditSeq      int

	queueDropped atomic.Uint64
	retainDrop   atomic.Uint64
	flushFail    atomic.Uint64
	sent         atomic.Uint64
}

type RemoteStats struct {
	QueueDepth        int
	QueueDroppedTotal uint64
	RetainDropTotal   uint64
	FlushFailTotal    uint64
	SentTotal         uint64
}

type remoteEvent struct {
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

type remoteTickPayload struct {
	Tick     uint64                  `json:"tick"`
	Digest   string                  `json:"digest"`
	Scenes   int                     `json:"scenes,omitempty"`
	Joins    []world.RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string                `json:"leaves,omitempty"`
	Commands []world.RecordedCommand `json:"commands,omitempty"`
}

type remoteAuditPayload struct {
	Seq int `json:"seq"`
	world.AuditEntry
}

type remoteSnapshotPayload struct {
	Tick    uint64 `json:"tick"`
	Object  string `json:"object"`
	Digest  string `json:"digest"`
	Props   int    `json:"props"`
	Agents  int    `json:"agents"`
	Engaged int    `json:"engaged"`
}

type remoteConfigPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty index ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &RemoteIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan remoteEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) Stats() RemoteStats {
	if d == nil {
		return RemoteStats{}
	}
	return RemoteStats{
		QueueDepth:        len(d.ch),
		QueueDroppedTotal: d.queueDropped.Load(),
		RetainDropTotal:   d.retainDrop.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		SentTotal:         d.sent.Load(),
	}
}

func (d *RemoteIndex) WriteTick(entry world.TickLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	d.enqueue(remoteEvent{Kind: "tick", WorldID: d.cfg.WorldID, Payload: remoteTickPayload{
		Tick:     entry.Tick,
		Digest:   entry.Digest,
		Scenes:   len(entry.Scenes),
		Joins:    entry.Joins,
		Leaves:   entry.Leaves,
		Commands: entry.Commands,
	}})
	return nil
}

func (d *RemoteIndex) WriteAudit(entry world.AuditEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	seq := d.nextAuditSeq(entry.Tick)
	d.enqueue(remoteEvent{Kind: "audit", WorldID: d.cfg.WorldID, Payload: remoteAuditPayload{Seq: seq, AuditEntry: entry}})
	return nil
}

func (d *RemoteIndex) UpsertConfigs(tune tuning.Tuning, sc scene.Scene) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	rows, err := configRows(tune, sc)
	if err != nil {
		return err
	}
	for _, r := range rows {
		d.enqueue(remoteEvent{Kind: "config", WorldID: d.cfg.WorldID, Payload: remoteConfigPayload{
			Name:      r.Name,
			Digest:    r.Digest,
			JSON:      string(r.JSON),
			UpdatedAt: r.UpdatedAt,
		}})
	}
	return nil
}

func (d *RemoteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if d == nil || d.closed.Load() {
		return
	}
	r := newSnapshotRow(path, snap)
	d.enqueue(remoteEvent{Kind: "snapshot", WorldID: d.cfg.WorldID, Payload: remoteSnapshotPayload{
		Tick:    r.Tick,
		Object:  filepath.ToSlash(filepath.Base(r.Path)),
		Digest:  r.Digest,
		Props:   r.Props,
		Agents:  r.Agents,
		Engaged: r.Engaged,
	}})
}

func (d *RemoteIndex) nextAuditSeq(tick uint64) int {
	d.auditMu.Lock()
	defer d.auditMu.Unlock()
	if tick != d.lastAuditTick {
		d.lastAuditTick = tick
		d.auditSeq = 0
	}
	seq := d.auditSeq
	d.auditSeq++
	return seq
}

func (d *RemoteIndex) enqueue(ev remoteEvent) {
	select {
	case d.ch <- ev:
	default:
		d.queueDropped.Add(1)
		d.printf("index queue full; drop kind=%s world=%s", ev.Kind, ev.WorldID)
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("index flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush, oldest first out when over budget.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDrop.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.sent.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteIndex) sendBatch(events []remoteEvent) error {
	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *RemoteIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
