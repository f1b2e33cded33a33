package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"interactworld.ai/internal/protocol"
)

const defaultMaxEvents = 256

type SessionConfig struct {
	Key        string
	WorldWSURL string
	// Spawn and Yaw seed the HELLO of the first connection.
	Spawn     *[3]float64
	Yaw       float64
	MaxEvents int
}

type sessionUpdate struct {
	AgentID         string
	LastConnectedAt time.Time
	LastTick        uint64
	Pos             *[3]float64
	Yaw             float64
}

type onUpdateFn func(key string, upd sessionUpdate)

// Session keeps one world connection for one tool caller. It reconnects
// on its own until paused or closed.
type Session struct {
	cfg      SessionConfig
	onUpdate onUpdateFn

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected       bool
	paused          bool
	resumeNotify    chan struct{}
	lastConnectedAt time.Time
	lastErr         string

	conn    *websocket.Conn
	writeMu sync.Mutex

	agentID  string
	welcome  protocol.WelcomeMsg
	pos      *[3]float64
	yaw      float64
	lastTick uint64

	target       *Target
	targetSeq    uint64
	targetNotify chan struct{}
	engaged      []string

	events     []Event
	nextCursor uint64
}

func NewSession(cfg SessionConfig, onUpdate onUpdateFn) *Session {
	if cfg.Key == "" {
		cfg.Key = "default"
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}
	s := &Session{
		cfg:          cfg,
		onUpdate:     onUpdate,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		resumeNotify: make(chan struct{}, 1),
		targetNotify: make(chan struct{}, 1),
		pos:          cfg.Spawn,
		yaw:          cfg.Yaw,
		nextCursor:   1,
	}
	return s
}

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Wake a blocking ReadMessage.
		s.Disconnect()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
	})
}

// Disconnect drops the current connection; run reconnects unless paused.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// DisconnectAndPause drops the connection and keeps it down until
// ResumeReconnect. The world removes the agent when the socket closes.
func (s *Session) DisconnectAndPause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.Disconnect()
}

func (s *Session) ResumeReconnect() {
	s.mu.Lock()
	was := s.paused
	s.paused = false
	s.mu.Unlock()
	if !was {
		return
	}
	select {
	case s.resumeNotify <- struct{}{}:
	default:
	}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Connected:   s.connected,
		Paused:      s.paused,
		AgentID:     s.agentID,
		WorldWSURL:  s.cfg.WorldWSURL,
		World:       s.welcome.WorldParams,
		LastTick:    s.lastTick,
		Yaw:         s.yaw,
		Engaged:     append([]string(nil), s.engaged...),
		EventCursor: s.nextCursor - 1,
		LastError:   s.lastErr,
	}
	if s.pos != nil {
		p := *s.pos
		st.Position = &p
	}
	if s.target != nil {
		t := *s.target
		st.Target = &t
	}
	return st
}

// GetTarget returns the current target. With WaitChange it blocks until the
// world reports a different target or prompt, or the timeout passes.
func (s *Session) GetTarget(ctx context.Context, opts GetTargetOpts) (TargetResult, error) {
	if !opts.WaitChange {
		return s.currentTarget(), nil
	}
	timeout := time.Duration(opts.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	s.mu.RLock()
	start := s.targetSeq
	s.mu.RUnlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		s.mu.RLock()
		seq := s.targetSeq
		s.mu.RUnlock()
		if seq != start {
			return s.currentTarget(), nil
		}
		select {
		case <-ctx.Done():
			return TargetResult{}, ctx.Err()
		case <-deadline.C:
			return TargetResult{}, fmt.Errorf("timeout waiting for target change")
		case <-s.targetNotify:
		}
	}
}

func (s *Session) currentTarget() TargetResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := TargetResult{AgentID: s.agentID}
	if s.target != nil {
		t := *s.target
		res.Target = &t
	}
	return res
}

// GetEvents returns buffered events with a cursor greater than sinceCursor.
func (s *Session) GetEvents(ctx context.Context, sinceCursor uint64, limit int) (GetEventsResult, error) {
	if err := ctx.Err(); err != nil {
		return GetEventsResult{}, err
	}
	if limit <= 0 || limit > s.cfg.MaxEvents {
		limit = s.cfg.MaxEvents
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	res := GetEventsResult{NextCursor: sinceCursor}
	if len(s.events) > 0 && s.events[0].Cursor > sinceCursor+1 {
		res.Truncated = true
	}
	for _, e := range s.events {
		if e.Cursor <= sinceCursor {
			continue
		}
		if len(res.Events) >= limit {
			break
		}
		res.Events = append(res.Events, e)
		res.NextCursor = e.Cursor
	}
	return res, nil
}

// Send writes one CMD for the session's agent. It waits briefly for the
// handshake when called right after the session starts.
func (s *Session) Send(ctx context.Context, cmd string, args CmdArgs) (CmdResult, error) {
	switch cmd {
	case protocol.CmdBegin, protocol.CmdEnd:
	case protocol.CmdMove:
		if args.Pos == nil && args.Yaw == nil {
			return CmdResult{}, fmt.Errorf("move needs pos or yaw")
		}
	default:
		return CmdResult{}, fmt.Errorf("unknown command: %s", cmd)
	}

	agentID, err := s.waitConnected(ctx, 2*time.Second)
	if err != nil {
		return CmdResult{}, err
	}

	msg := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              "C_" + uuid.NewString(),
		Cmd:             cmd,
		TargetID:        strings.TrimSpace(args.TargetID),
		Pos:             args.Pos,
		Yaw:             args.Yaw,
	}
	b, _ := json.Marshal(msg)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return CmdResult{}, fmt.Errorf("not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return CmdResult{}, err
	}

	if cmd == protocol.CmdMove {
		s.mu.Lock()
		if args.Pos != nil {
			p := *args.Pos
			s.pos = &p
		}
		if args.Yaw != nil {
			s.yaw = *args.Yaw
		}
		upd := sessionUpdate{AgentID: s.agentID, Pos: s.pos, Yaw: s.yaw}
		s.mu.Unlock()
		if s.onUpdate != nil {
			s.onUpdate(s.cfg.Key, upd)
		}
	}
	return CmdResult{Sent: true, CmdID: msg.ID, AgentID: agentID}, nil
}

func (s *Session) waitConnected(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
	for {
		s.mu.RLock()
		ok, id, paused := s.connected && s.conn != nil, s.agentID, s.paused
		s.mu.RUnlock()
		if ok {
			return id, nil
		}
		if paused {
			return "", fmt.Errorf("session paused")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("not connected")
		case <-tick.C:
		}
	}
}

func (s *Session) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.Disconnect()
			return
		default:
		}

		s.mu.RLock()
		paused := s.paused
		s.mu.RUnlock()
		if paused {
			select {
			case <-s.stop:
				return
			case <-s.resumeNotify:
			}
			continue
		}

		err := s.connectAndReadLoop()
		if err == nil {
			return
		}
		s.mu.Lock()
		s.connected = false
		if !s.paused {
			s.lastErr = err.Error()
		}
		s.mu.Unlock()
		select {
		case <-s.stop:
			s.Disconnect()
			return
		case <-s.resumeNotify:
			backoff = 200 * time.Millisecond
		case <-time.After(backoff):
			if backoff < 5*time.Second {
				backoff = min(backoff*2, 5*time.Second)
			}
		}
	}
}

func (s *Session) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.WorldWSURL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s.mu.RLock()
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       s.cfg.Key,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 64},
		Spawn:           s.pos,
		Yaw:             s.yaw,
	}
	s.mu.RUnlock()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.lastErr = ""
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.ProtocolVersion != protocol.Version {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		now := time.Now()
		s.mu.Lock()
		s.welcome = w
		s.agentID = w.AgentID
		s.connected = true
		s.lastConnectedAt = now
		s.lastTick = w.Tick
		// A new agent starts with no target and nothing engaged.
		s.target = nil
		s.engaged = nil
		upd := sessionUpdate{AgentID: w.AgentID, LastConnectedAt: now, LastTick: w.Tick, Pos: s.pos, Yaw: s.yaw}
		s.mu.Unlock()
		if s.onUpdate != nil {
			s.onUpdate(s.cfg.Key, upd)
		}

	case protocol.TypeTarget:
		var tm protocol.TargetMsg
		if err := json.Unmarshal(msg, &tm); err != nil {
			return
		}
		s.mu.Lock()
		s.lastTick = max(s.lastTick, tm.Tick)
		if tm.TargetID == "" && tm.Prompt == "" {
			s.target = nil
		} else {
			s.target = &Target{Tick: tm.Tick, TargetID: tm.TargetID, Kind: tm.Kind, Prompt: tm.Prompt}
		}
		s.targetSeq++
		s.appendEventLocked(Event{Type: tm.Type, Tick: tm.Tick, PropID: tm.TargetID, Message: tm.Prompt})
		s.mu.Unlock()
		select {
		case s.targetNotify <- struct{}{}:
		default:
		}

	case protocol.TypeInteraction:
		var im protocol.InteractionMsg
		if err := json.Unmarshal(msg, &im); err != nil {
			return
		}
		s.mu.Lock()
		s.lastTick = max(s.lastTick, im.Tick)
		switch im.Action {
		case protocol.CmdBegin:
			s.engaged = appendUnique(s.engaged, im.PropID)
		case protocol.CmdEnd:
			s.engaged = remove(s.engaged, im.PropID)
		}
		s.appendEventLocked(Event{Type: im.Type, Tick: im.Tick, PropID: im.PropID, Action: im.Action, State: im.State})
		s.mu.Unlock()

	case protocol.TypeError:
		var em protocol.ErrorMsg
		if err := json.Unmarshal(msg, &em); err != nil {
			return
		}
		s.mu.Lock()
		s.appendEventLocked(Event{Type: em.Type, RefID: em.RefID, Code: em.Code, Message: em.Message})
		s.mu.Unlock()
	}
}

func (s *Session) appendEventLocked(e Event) {
	e.Cursor = s.nextCursor
	s.nextCursor++
	s.events = append(s.events, e)
	if over := len(s.events) - s.cfg.MaxEvents; over > 0 {
		s.events = append([]Event(nil), s.events[over:]...)
	}
}

func appendUnique(xs []string, x string) []string {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}

func remove(xs []string, x string) []string {
	out := xs[:0]
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}
