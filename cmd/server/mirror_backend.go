package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"interactworld.ai/internal/persistence/r2s3"
)

// openMirror returns nil when IW_MIRROR is off. Keys are relative to dataDir
// so one bucket can hold several worlds.
func openMirror(ctx context.Context, dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("IW_MIRROR", false) {
		return nil, nil
	}
	bucket := strings.TrimSpace(os.Getenv("IW_MIRROR_BUCKET"))
	if bucket == "" {
		return nil, fmt.Errorf("IW_MIRROR=true but IW_MIRROR_BUCKET is empty")
	}
	client, err := r2s3.New(ctx, r2s3.Config{
		Endpoint:        os.Getenv("IW_MIRROR_ENDPOINT"),
		Region:          os.Getenv("IW_MIRROR_REGION"),
		Bucket:          bucket,
		AccessKeyID:     strings.TrimSpace(os.Getenv("IW_MIRROR_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("IW_MIRROR_SECRET_ACCESS_KEY")),
	})
	if err != nil {
		return nil, err
	}
	return r2s3.NewMirror(client, r2s3.MirrorConfig{
		DataDir:       dataDir,
		Prefix:        os.Getenv("IW_MIRROR_PREFIX"),
		Workers:       envInt("IW_MIRROR_WORKERS", 2),
		QueueCapacity: envInt("IW_MIRROR_QUEUE", 256),
		EnqueueWait:   time.Duration(envInt("IW_MIRROR_ENQUEUE_WAIT_MS", 25)) * time.Millisecond,
	}, logger), nil
}

func writeMirrorMetrics(rw io.Writer, worldID string, m *r2s3.Mirror) {
	if m == nil {
		return
	}
	s := m.Stats()
	fmt.Fprintf(rw, "# HELP interactworld_mirror_queue_depth Pending log uploads.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "interactworld_mirror_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP interactworld_mirror_uploads_total Finished log uploads by result.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "interactworld_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "ok", s.UploadSuccessTotal)
	fmt.Fprintf(rw, "interactworld_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "fail", s.UploadFailTotal)
	fmt.Fprintf(rw, "# HELP interactworld_mirror_dropped_total Log files not queued because the queue stayed full.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_mirror_dropped_total counter\n")
	fmt.Fprintf(rw, "interactworld_mirror_dropped_total{world=%q} %d\n", worldID, s.DroppedTotal)
	fmt.Fprintf(rw, "# HELP interactworld_mirror_last_success_unix Time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "interactworld_mirror_last_success_unix{world=%q} %d\n", worldID, s.LastSuccessUnix)
}
