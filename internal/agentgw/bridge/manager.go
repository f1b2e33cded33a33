package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Config struct {
	WorldWSURL  string
	StateFile   string
	MaxSessions int
	// MaxEvents bounds each session's event buffer.
	MaxEvents int
	Logger    *log.Logger
}

// Manager maps tool-caller session keys to world sessions.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	state    map[string]persistedSession

	// evicted collects sessions dropped by sessions.Add under mu.
	evicted []*Session

	closed bool
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.WorldWSURL == "" {
		return nil, fmt.Errorf("empty world ws url")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 256
	}

	st, err := loadStateFile(cfg.StateFile)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:   cfg,
		state: st,
	}
	m.sessions, err = lru.NewWithEvict[string, *Session](cfg.MaxSessions, func(key string, s *Session) {
		m.logf("evicting idle session %s", key)
		m.evicted = append(m.evicted, s)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions.Values()
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Len()
}

func (m *Manager) GetStatus(ctx context.Context, sessionKey string) (Status, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return Status{}, err
	}
	_ = ctx
	return s.Status(), nil
}

func (m *Manager) GetTarget(ctx context.Context, sessionKey string, opts GetTargetOpts) (TargetResult, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return TargetResult{}, err
	}
	s.ResumeReconnect()
	return s.GetTarget(ctx, opts)
}

func (m *Manager) GetEvents(ctx context.Context, sessionKey string, sinceCursor uint64, limit int) (GetEventsResult, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return GetEventsResult{}, err
	}
	s.ResumeReconnect()
	return s.GetEvents(ctx, sinceCursor, limit)
}

func (m *Manager) Send(ctx context.Context, sessionKey, cmd string, args CmdArgs) (CmdResult, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return CmdResult{}, err
	}
	s.ResumeReconnect()
	return s.Send(ctx, cmd, args)
}

func (m *Manager) Disconnect(ctx context.Context, sessionKey string) error {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return err
	}
	_ = ctx
	s.DisconnectAndPause()
	return nil
}

func (m *Manager) getOrCreateSession(key string) (*Session, error) {
	if key == "" {
		key = "default"
	}

	// Closed after unlock: its reader may be blocked in onSessionUpdate.
	var evicted []*Session
	defer func() {
		for _, s := range evicted {
			s.Close()
		}
	}()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("bridge manager closed")
	}

	if s, ok := m.sessions.Get(key); ok {
		return s, nil
	}

	ps := m.state[key]
	s := NewSession(SessionConfig{
		Key:        key,
		WorldWSURL: m.cfg.WorldWSURL,
		Spawn:      ps.Pos,
		Yaw:        ps.Yaw,
		MaxEvents:  m.cfg.MaxEvents,
	}, m.onSessionUpdate)
	m.sessions.Add(key, s)
	evicted, m.evicted = m.evicted, nil
	s.Start()
	return s, nil
}

func (m *Manager) onSessionUpdate(key string, upd sessionUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	ps := m.state[key]
	if upd.AgentID != "" {
		ps.AgentID = upd.AgentID
	}
	if !upd.LastConnectedAt.IsZero() {
		ps.LastConnectedAt = upd.LastConnectedAt.UTC().Format(time.RFC3339Nano)
	}
	if upd.LastTick != 0 {
		ps.LastTick = upd.LastTick
	}
	if upd.Pos != nil {
		p := *upd.Pos
		ps.Pos = &p
	}
	ps.Yaw = upd.Yaw
	m.state[key] = ps

	b, _ := json.MarshalIndent(m.state, "", "  ")
	if err := writeFileAtomic(m.cfg.StateFile, append(b, '\n')); err != nil {
		m.logf("persist sessions: %v", err)
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
