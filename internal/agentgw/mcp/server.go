package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"interactworld.ai/internal/agentgw/bridge"
	"interactworld.ai/internal/protocol"
)

const mcpProtocolVersion = "2024-11-05"

type Bridge interface {
	GetStatus(ctx context.Context, sessionKey string) (bridge.Status, error)
	GetTarget(ctx context.Context, sessionKey string, opts bridge.GetTargetOpts) (bridge.TargetResult, error)
	GetEvents(ctx context.Context, sessionKey string, sinceCursor uint64, limit int) (bridge.GetEventsResult, error)
	Send(ctx context.Context, sessionKey, cmd string, args bridge.CmdArgs) (bridge.CmdResult, error)
	Disconnect(ctx context.Context, sessionKey string) error
}

type Config struct {
	Bridge     Bridge
	HMACSecret string
	// AllowLegacyHMAC accepts signatures without x-nonce.
	AllowLegacyHMAC bool
	// CallsPerSecond and CallBurst bound call_tool per session key.
	// Zero rate disables the limit.
	CallsPerSecond float64
	CallBurst      int
	Logger         *log.Logger
}

type Server struct {
	cfg        Config
	bridge     Bridge
	hmacSecret []byte
	replay     *replayGuard
	now        func() time.Time

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("nil bridge")
	}
	if cfg.CallBurst <= 0 {
		cfg.CallBurst = 10
	}
	s := &Server{
		cfg:      cfg,
		bridge:   cfg.Bridge,
		now:      time.Now,
		limiters: map[string]*rate.Limiter{},
	}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.hmacSecret = []byte(cfg.HMACSecret)
		s.replay = newReplayGuard(2 * signatureWindow)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "bad body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	sessionKey := strings.TrimSpace(r.Header.Get(headerAgentID))
	if len(s.hmacSecret) > 0 {
		vr := verifyHMAC(r, body, s.hmacSecret, s.now(), s.cfg.AllowLegacyHMAC)
		if vr.HTTPStatus != 0 {
			http.Error(rw, vr.Message, vr.HTTPStatus)
			return
		}
		if !s.replay.allow(vr.SessionKey, vr.Signature, s.now()) {
			http.Error(rw, "replayed request", http.StatusUnauthorized)
			return
		}
		sessionKey = vr.SessionKey
	} else if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	if sessionKey == "" {
		sessionKey = "default"
	}

	req, err := parseRPCRequest(body)
	if err != nil {
		http.Error(rw, "bad jsonrpc request", http.StatusBadRequest)
		return
	}

	resp := s.dispatch(r.Context(), sessionKey, req)
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, sessionKey string, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"serverInfo":      map[string]any{"name": "interactworld-mcp", "version": protocol.Version},
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "list_tools", "tools/list":
		return rpcOK(req.ID, map[string]any{"tools": toolsList()})

	case "call_tool", "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return rpcErr(req.ID, codeInvalidParams, "missing params", nil)
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return rpcErr(req.ID, codeInvalidParams, "bad params", err.Error())
		}
		if p.Name == "" {
			return rpcErr(req.ID, codeInvalidParams, "missing tool name", nil)
		}
		if _, ok := tools[p.Name]; !ok {
			return rpcErr(req.ID, codeMethodNotFound, "tool not found", map[string]any{"name": p.Name})
		}
		if !s.allowCall(sessionKey) {
			return rpcErr(req.ID, codeRateLimited, protocol.ErrRateLimit, nil)
		}
		out, err := s.callTool(ctx, sessionKey, p.Name, p.Arguments)
		if err != nil {
			s.logf("session=%s tool=%s: %v", sessionKey, p.Name, err)
			return rpcErr(req.ID, codeToolFailed, err.Error(), nil)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

func (s *Server) allowCall(sessionKey string) bool {
	if s.cfg.CallsPerSecond <= 0 {
		return true
	}
	s.limMu.Lock()
	lim := s.limiters[sessionKey]
	if lim == nil {
		lim = rate.NewLimiter(rate.Limit(s.cfg.CallsPerSecond), s.cfg.CallBurst)
		s.limiters[sessionKey] = lim
	}
	s.limMu.Unlock()
	return lim.Allow()
}

func (s *Server) callTool(ctx context.Context, sessionKey, name string, args json.RawMessage) (any, error) {
	switch name {
	case toolGetStatus:
		return s.bridge.GetStatus(ctx, sessionKey)

	case toolGetTarget:
		var o bridge.GetTargetOpts
		if err := decodeArgs(args, &o); err != nil {
			return nil, err
		}
		return s.bridge.GetTarget(ctx, sessionKey, o)

	case toolGetEvents:
		var p struct {
			SinceCursor uint64 `json:"since_cursor"`
			Limit       int    `json:"limit"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return s.bridge.GetEvents(ctx, sessionKey, p.SinceCursor, p.Limit)

	case toolBegin, toolEnd, toolMove:
		var a bridge.CmdArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.bridge.Send(ctx, sessionKey, tools[name].cmd, a)

	case toolDisconnect:
		if err := s.bridge.Disconnect(ctx, sessionKey); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func decodeArgs(args json.RawMessage, into any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Errorf("bad arguments: %w", err)
	}
	return nil
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}
