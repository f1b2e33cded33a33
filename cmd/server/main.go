package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"interactworld.ai/internal/persistence/indexdb"
	persistlog "interactworld.ai/internal/persistence/log"
	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/scene"
	"interactworld.ai/internal/sim/tuning"
	"interactworld.ai/internal/sim/world"
	"interactworld.ai/internal/transport/observer"
	"interactworld.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenePath  = flag.String("scene", "", "path to scene.yaml (default: <configs>/scene.yaml)")
		watchScene = flag.Bool("watch_scene", true, "reload the scene file when it changes")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + configs)")
		resume     = flag.String("snapshot", "", "resume from this snapshot, or \"latest\" for the newest in the world dir")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	sp := strings.TrimSpace(*scenePath)
	if sp == "" {
		sp = filepath.Join(*configDir, "scene.yaml")
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version=%s, server speaks %s", tune.ProtocolVersion, protocol.Version)
	}
	sc, err := scene.Load(sp)
	if err != nil {
		logger.Fatalf("load scene: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfigs(tune, sc); err != nil {
			logger.Printf("index backend: upsert configs: %v", err)
		}
	}

	cfg := world.ConfigFromTuning(*worldID, tune)
	cfg.Logger = logger
	w, err := world.New(cfg)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	restored, err := resumeFromSnapshot(w, worldDir, *resume)
	if err != nil {
		logger.Fatalf("resume: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Finished hourly log files are copied to object storage when enabled.
	mirror, err := openMirror(ctx, *dataDir, logger)
	if err != nil {
		logger.Fatalf("log mirror: %v", err)
	}
	defer mirror.Close()
	logOpts := persistlog.Options{OnClose: mirror.Enqueue}

	tickLog := persistlog.NewTickLoggerWithOptions(worldDir, logOpts)
	auditLog := persistlog.NewAuditLoggerWithOptions(worldDir, logOpts)
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	// The starting scene goes through the loop so the first tick records it
	// for replay. Restored agents have no connection and leave on that tick.
	w.SceneUpdates() <- sc
	go func() {
		for _, id := range restored {
			select {
			case w.Leave() <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	snapPol := snapshotPolicyFromEnv()

	if *watchScene {
		watcher, err := scene.NewWatcher(sp, logger)
		if err != nil {
			logger.Fatalf("scene watcher: %v", err)
		}
		watcher.OnChange(func(s scene.Scene) {
			select {
			case w.SceneUpdates() <- s:
				if idx != nil {
					_ = idx.UpsertConfigs(tune, s)
				}
			case <-ctx.Done():
			}
		})
		if err := watcher.Start(); err != nil {
			logger.Fatalf("scene watcher: %v", err)
		}
		defer watcher.Stop()
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}
	wsSrv := ws.NewServer(w, ws.Config{
		CommandsPerSecond: tune.RateLimits.CommandsPerSecond,
		CommandBurst:      tune.RateLimits.CommandBurst,
		Validator:         validator,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()
		if m.Tick == 0 {
			m.Tick = w.CurrentTick()
		}
		writeWorldMetrics(rw, *worldID, m, wsSrv.Sessions())
		writeIndexMetrics(rw, *worldID, idx)
		writeMirrorMetrics(rw, *worldID, mirror)
	})

	enableAdminHTTP := envBool("IW_ENABLE_ADMIN_HTTP", true)
	enablePprofHTTP := envBool("IW_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			st, err := w.RequestState(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			resp := struct {
				world.StateView
				Metrics world.WorldMetrics `json:"metrics"`
			}{StateView: st, Metrics: w.Metrics()}
			_ = json.NewEncoder(rw).Encode(resp)
		})

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (IW_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The world is the only sender on snapCh.
		defer close(snapCh)
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("world: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		writeSnapshots(worldDir, snapCh, snapPol, idx, mirror, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("world=%s tick=%d props=%d listening on %s", *worldID, w.CurrentTick(), len(sc.Props), *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Printf("shutdown: %v", err)
	}

	// The loop has stopped; capture the last executed tick so a restart
	// with -snapshot latest resumes from here.
	if cfg.SnapshotEveryTicks > 0 && w.CurrentTick() > 0 {
		persistSnapshot(worldDir, w.ExportSnapshot(w.CurrentTick()-1), snapPol, idx, mirror, logger)
	}
	logger.Printf("stopped at tick %d", w.CurrentTick())
}

func writeWorldMetrics(rw io.Writer, worldID string, m world.WorldMetrics, sessions int) {
	fmt.Fprintf(rw, "# HELP interactworld_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_tick gauge\n")
	fmt.Fprintf(rw, "interactworld_world_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP interactworld_world_agents Current number of agents in the world.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_agents gauge\n")
	fmt.Fprintf(rw, "interactworld_world_agents{world=%q} %d\n", worldID, m.Agents)

	fmt.Fprintf(rw, "# HELP interactworld_world_sessions Current number of connected sessions.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_sessions gauge\n")
	fmt.Fprintf(rw, "interactworld_world_sessions{world=%q} %d\n", worldID, sessions)

	fmt.Fprintf(rw, "# HELP interactworld_world_props Current number of props in the world.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_props gauge\n")
	fmt.Fprintf(rw, "interactworld_world_props{world=%q} %d\n", worldID, m.Props)

	fmt.Fprintf(rw, "# HELP interactworld_world_engaged Open interactions across all props.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_engaged gauge\n")
	fmt.Fprintf(rw, "interactworld_world_engaged{world=%q} %d\n", worldID, m.Engaged)

	fmt.Fprintf(rw, "# HELP interactworld_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "interactworld_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "interactworld_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "interactworld_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(rw, "interactworld_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "scene", m.QueueDepths.Scene)

	fmt.Fprintf(rw, "# HELP interactworld_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_step_ms gauge\n")
	fmt.Fprintf(rw, "interactworld_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP interactworld_world_dropped_messages_total Outbound messages dropped on full client queues.\n")
	fmt.Fprintf(rw, "# TYPE interactworld_world_dropped_messages_total counter\n")
	fmt.Fprintf(rw, "interactworld_world_dropped_messages_total{world=%q} %d\n", worldID, m.DroppedMessages)
}

func writeIndexMetrics(rw io.Writer, worldID string, idx runtimeIndex) {
	switch x := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := x.Stats()
		fmt.Fprintf(rw, "# HELP interactworld_index_queue_depth Index writer backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE interactworld_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "interactworld_index_queue_depth{world=%q,backend=%q} %d\n", worldID, "sqlite", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP interactworld_index_dropped_total Index writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE interactworld_index_dropped_total counter\n")
		fmt.Fprintf(rw, "interactworld_index_dropped_total{world=%q,backend=%q,kind=%q} %d\n", worldID, "sqlite", "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "interactworld_index_dropped_total{world=%q,backend=%q,kind=%q} %d\n", worldID, "sqlite", "audit", s.DropAuditTotal)
		fmt.Fprintf(rw, "interactworld_index_dropped_total{world=%q,backend=%q,kind=%q} %d\n", worldID, "sqlite", "config", s.DropConfigTotal)
		fmt.Fprintf(rw, "interactworld_index_dropped_total{world=%q,backend=%q,kind=%q} %d\n", worldID, "sqlite", "snapshot", s.DropSnapTotal)
	case *indexdb.RemoteIndex:
		s := x.Stats()
		fmt.Fprintf(rw, "# HELP interactworld_index_queue_depth Index writer backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE interactworld_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "interactworld_index_queue_depth{world=%q,backend=%q} %d\n", worldID, "remote", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP interactworld_index_dropped_total Index writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE interactworld_index_dropped_total counter\n")
		fmt.Fprintf(rw, "interactworld_index_dropped_total{world=%q,backend=%q,kind=%q} %d\n", worldID, "remote", "queue", s.QueueDroppedTotal)
		fmt.Fprintf(rw, "interactworld_index_dropped_total{world=%q,backend=%q,kind=%q} %d\n", worldID, "remote", "retain", s.RetainDropTotal)
		fmt.Fprintf(rw, "# HELP interactworld_index_flush_fail_total Failed remote flushes.\n")
		fmt.Fprintf(rw, "# TYPE interactworld_index_flush_fail_total counter\n")
		fmt.Fprintf(rw, "interactworld_index_flush_fail_total{world=%q} %d\n", worldID, s.FlushFailTotal)
		fmt.Fprintf(rw, "# HELP interactworld_index_sent_total Events delivered to the remote index.\n")
		fmt.Fprintf(rw, "# TYPE interactworld_index_sent_total counter\n")
		fmt.Fprintf(rw, "interactworld_index_sent_total{world=%q} %d\n", worldID, s.SentTotal)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
