package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/world"
)

type Config struct {
	// CommandsPerSecond and CommandBurst bound CMD traffic per session.
	// Zero rate disables the limit.
	CommandsPerSecond float64
	CommandBurst      int

	// Validator checks inbound HELLO/CMD against the protocol schemas. Optional.
	Validator *protocol.Validator
}

type Server struct {
	world *world.World
	cfg   Config
	log   *log.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewServer(w *world.World, cfg Config, logger *log.Logger) *Server {
	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = 10
	}
	return &Server{
		world: w,
		cfg:   cfg,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions reports how many connections are past the handshake.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, sessionID, out := s.handshake(conn)
		if agentID == "" {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.logf("session %s agent %s joined from %s", sessionID, agentID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		var limiter *rate.Limiter
		if s.cfg.CommandsPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(s.cfg.CommandsPerSecond), s.cfg.CommandBurst)
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			cmd, ok := s.decodeCmd(msg, out)
			if !ok {
				continue
			}
			if limiter != nil && !limiter.Allow() {
				reply(out, protocol.NewError(cmd.ID, protocol.ErrRateLimit, "too many commands"))
				continue
			}
			select {
			case s.world.Inbox() <- world.CommandEnvelope{AgentID: agentID, Cmd: cmd}:
			default:
				reply(out, protocol.NewError(cmd.ID, protocol.ErrWorldBusy, "world inbox full"))
			}
		}

		// Cleanup.
		s.leave(agentID)
		s.logf("session %s agent %s left", sessionID, agentID)
	}
}

func (s *Server) decodeCmd(msg []byte, out chan []byte) (protocol.CmdMsg, bool) {
	var cmd protocol.CmdMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		reply(out, protocol.NewError("", protocol.ErrProtoBadRequest, "invalid json"))
		return cmd, false
	}
	if base.Type != protocol.TypeCmd {
		reply(out, protocol.NewError("", protocol.ErrProtoBadRequest, "unexpected message type: "+base.Type))
		return cmd, false
	}
	if s.cfg.Validator != nil {
		if err := s.cfg.Validator.Validate(protocol.TypeCmd, msg); err != nil {
			reply(out, protocol.NewError("", protocol.ErrProtoBadRequest, err.Error()))
			return cmd, false
		}
	}
	if err := json.Unmarshal(msg, &cmd); err != nil {
		reply(out, protocol.NewError("", protocol.ErrProtoBadRequest, err.Error()))
		return cmd, false
	}
	if cmd.ProtocolVersion != protocol.Version {
		reply(out, protocol.NewError(cmd.ID, protocol.ErrProtoBadRequest, "bad protocol_version"))
		return cmd, false
	}
	return cmd, true
}

func (s *Server) handshake(conn *websocket.Conn) (agentID, sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", "", nil
	}
	if s.cfg.Validator != nil {
		if err := s.cfg.Validator.Validate(protocol.TypeHello, msg); err != nil {
			closeWith(conn, "invalid HELLO")
			return "", "", nil
		}
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", "", nil
	}
	name := strings.TrimSpace(hello.AgentName)
	if name == "" {
		name = "agent"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}
	out = make(chan []byte, maxQ)

	var spawn [3]float64
	if hello.Spawn != nil {
		spawn = *hello.Spawn
	}
	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{
		Name:  name,
		Spawn: spawn,
		Yaw:   hello.Yaw,
		Out:   out,
		Resp:  respCh,
	}:
	case <-s.world.Done():
		closeWith(conn, "world stopped")
		return "", "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-s.world.Done():
		closeWith(conn, "world stopped")
		return "", "", nil
	}

	sessionID = uuid.NewString()
	welcome := resp.Welcome
	welcome.SessionID = sessionID
	if err := writeJSON(conn, welcome); err != nil {
		s.leave(welcome.AgentID)
		return "", "", nil
	}
	return welcome.AgentID, sessionID, out
}

// leave removes the agent unless the world loop is already gone.
func (s *Server) leave(agentID string) {
	select {
	case s.world.Leave() <- agentID:
	case <-s.world.Done():
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// reply queues a transport-level message next to the world's own output.
func reply(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
