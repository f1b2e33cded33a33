package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"interactworld.ai/internal/agentgw/bridge"
	"interactworld.ai/internal/agentgw/mcp"
)

func main() {
	var (
		listen     = flag.String("listen", "127.0.0.1:8090", "http listen address")
		worldWSURL = flag.String("world-ws-url", "ws://127.0.0.1:8080/v1/ws", "world ws url")
		hmacSecret = flag.String("hmac-secret", "", "hmac secret (or set IW_MCP_HMAC_SECRET)")
		stateFile  = flag.String("state-file", "./data/mcp/sessions.json", "path to persisted session state")
		maxSess    = flag.Int("max-sessions", 256, "max concurrent sessions")
		maxEvents  = flag.Int("max-events", 256, "events buffered per session")
		callRate   = flag.Float64("calls-per-sec", 20, "tool calls per second per session (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[mcp] ", log.LstdFlags|log.Lmicroseconds)

	if strings.TrimSpace(*hmacSecret) == "" {
		*hmacSecret = strings.TrimSpace(os.Getenv("IW_MCP_HMAC_SECRET"))
	}
	production := isProductionDeploy()
	requireHMAC := envBoolWithDefault("IW_MCP_REQUIRE_HMAC", production)
	allowLegacyHMAC := envBoolWithDefault("IW_MCP_HMAC_ALLOW_LEGACY", !production)
	if requireHMAC && *hmacSecret == "" {
		logger.Fatalf("hmac secret required (set -hmac-secret or IW_MCP_HMAC_SECRET)")
	}
	if *hmacSecret == "" && !isLoopbackListenAddress(*listen) {
		logger.Fatalf("refusing non-loopback bind %q without hmac secret", *listen)
	}
	authMode := "none(loopback-only)"
	if *hmacSecret != "" {
		authMode = "hmac"
	}
	logger.Printf("auth_mode=%s require_hmac=%t allow_legacy_hmac=%t", authMode, requireHMAC, allowLegacyHMAC)

	br, err := bridge.NewManager(bridge.Config{
		WorldWSURL:  *worldWSURL,
		StateFile:   *stateFile,
		MaxSessions: *maxSess,
		MaxEvents:   *maxEvents,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("bridge: %v", err)
	}
	defer br.Close()

	srv, err := mcp.NewServer(mcp.Config{
		Bridge:          br,
		HMACSecret:      *hmacSecret,
		AllowLegacyHMAC: allowLegacyHMAC,
		CallsPerSecond:  *callRate,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("mcp: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on http://%s (world ws=%s)", *listen, *worldWSURL)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("listen: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func isProductionDeploy() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return true
	default:
		return false
	}
}

func envBoolWithDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isLoopbackListenAddress(addr string) bool {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
