package r2s3

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("503")
	}
	f.keys = append(f.keys, key)
	return nil
}

func writeFile(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestMirror_UploadsUnderPrefixedRelativeKey(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "worlds", "W1", "events", "events-2026-03-01-10.jsonl.zst")
	audit := filepath.Join(dir, "worlds", "W1", "audit", "audit-2026-03-01-10.jsonl.zst")
	writeFile(t, events)
	writeFile(t, audit)

	up := &fakeUploader{}
	m := NewMirror(up, MirrorConfig{DataDir: dir, Prefix: "/prod/", Workers: 2}, nil)
	m.Enqueue(events)
	m.Enqueue(audit)
	m.Close()

	sort.Strings(up.keys)
	want := []string{
		"prod/worlds/W1/audit/audit-2026-03-01-10.jsonl.zst",
		"prod/worlds/W1/events/events-2026-03-01-10.jsonl.zst",
	}
	if len(up.keys) != 2 || up.keys[0] != want[0] || up.keys[1] != want[1] {
		t.Fatalf("keys=%v want %v", up.keys, want)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.UploadSuccessTotal != 2 || st.UploadFailTotal != 0 || st.LastSuccessUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirror_RetriesThenCountsFailure(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "events", "a.jsonl.zst")
	writeFile(t, p)

	up := &fakeUploader{fails: 2}
	m := NewMirror(up, MirrorConfig{DataDir: dir}, nil)
	m.backoff = func(int) time.Duration { return 0 }
	m.Enqueue(p)

	up2 := &fakeUploader{fails: 10}
	m2 := NewMirror(up2, MirrorConfig{DataDir: dir}, nil)
	m2.backoff = func(int) time.Duration { return 0 }
	m2.Enqueue(p)

	m.Close()
	m2.Close()
	if st := m.Stats(); st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 {
		t.Fatalf("retry stats=%+v", st)
	}
	if st := m2.Stats(); st.UploadSuccessTotal != 0 || st.UploadFailTotal != 1 || st.LastErrorUnix == 0 {
		t.Fatalf("fail stats=%+v", st)
	}
	if up2.fails != 6 {
		t.Fatalf("attempts=%d want 4", 10-up2.fails)
	}
}

func TestMirror_ObjectKeyRejectsOutsideDataDir(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(t.TempDir(), "x.jsonl.zst")
	writeFile(t, outside)

	m := &Mirror{dataDir: base}
	if _, err := m.objectKey(outside); err == nil {
		t.Fatalf("expected error for path outside data dir")
	}
	if _, err := m.objectKey(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := m.objectKey(filepath.Join(base, "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMirror_NilIsNoop(t *testing.T) {
	var m *Mirror
	m.Enqueue("whatever")
	m.Close()
	if st := m.Stats(); st != (Stats{}) {
		t.Fatalf("stats=%+v", st)
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "  "}); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}

func TestContentTypeAndKeyNormalization(t *testing.T) {
	if contentType("a/b.jsonl.zst") != "application/zstd" || contentType("s/40.snap.zst") != "application/zstd" || contentType("x.json") != "application/json" || contentType("x.bin") != "application/octet-stream" {
		t.Fatalf("content type mismatch")
	}
	if got := normalizeObjectKey(`\w\events\a.zst`); got != "w/events/a.zst" {
		t.Fatalf("normalize=%q", got)
	}
}

func TestMirror_EnqueueAfterCloseIsDropped(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.snap.zst")
	writeFile(t, p)

	up := &fakeUploader{}
	m := NewMirror(up, MirrorConfig{DataDir: dir}, nil)
	m.Close()
	m.Close()
	m.Enqueue(p)
	if st := m.Stats(); st.EnqueuedTotal != 0 || len(up.keys) != 0 {
		t.Fatalf("stats=%+v keys=%v", st, up.keys)
	}
}
