package bridge

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"interactworld.ai/internal/protocol"
)

func msg(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestDisconnectAndPauseSetsPaused(t *testing.T) {
	s := NewSession(SessionConfig{Key: "t", WorldWSURL: "ws://example.invalid"}, nil)

	s.DisconnectAndPause()

	st := s.Status()
	if !st.Paused || st.Connected {
		t.Fatalf("status=%+v", st)
	}
	if _, err := s.Send(context.Background(), protocol.CmdBegin, CmdArgs{}); err == nil {
		t.Fatalf("expected send on a paused session to fail")
	}
}

func TestResumeReconnectClearsPausedAndSignals(t *testing.T) {
	s := NewSession(SessionConfig{Key: "t", WorldWSURL: "ws://example.invalid"}, nil)
	s.DisconnectAndPause()

	s.ResumeReconnect()

	if s.Status().Paused {
		t.Fatalf("expected paused=false after ResumeReconnect")
	}
	select {
	case <-s.resumeNotify:
	default:
		t.Fatalf("expected resumeNotify to be signaled on paused->running")
	}

	// Resuming a running session does not signal.
	s.ResumeReconnect()
	select {
	case <-s.resumeNotify:
		t.Fatalf("unexpected resume signal")
	default:
	}
}

func TestSession_TracksTargetEngagedAndEvents(t *testing.T) {
	var updates []sessionUpdate
	s := NewSession(SessionConfig{Key: "t", WorldWSURL: "ws://example.invalid", MaxEvents: 3}, func(_ string, u sessionUpdate) {
		updates = append(updates, u)
	})

	s.handle(msg(t, protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, AgentID: "A7", Tick: 10}))
	s.handle(msg(t, protocol.TargetMsg{Type: protocol.TypeTarget, ProtocolVersion: protocol.Version, Tick: 11, AgentID: "A7", TargetID: "front_door", Kind: "door", Prompt: "Open Door"}))
	s.handle(msg(t, protocol.InteractionMsg{Type: protocol.TypeInteraction, ProtocolVersion: protocol.Version, Tick: 12, AgentID: "A7", PropID: "front_door", Action: protocol.CmdBegin}))
	s.handle(msg(t, protocol.InteractionMsg{Type: protocol.TypeInteraction, ProtocolVersion: protocol.Version, Tick: 12, AgentID: "A7", PropID: "lift", Action: protocol.CmdBegin}))
	s.handle(msg(t, protocol.InteractionMsg{Type: protocol.TypeInteraction, ProtocolVersion: protocol.Version, Tick: 13, AgentID: "A7", PropID: "front_door", Action: protocol.CmdEnd}))
	// Other protocol versions are ignored.
	s.handle([]byte(`{"type":"TARGET","protocol_version":"0.1","target_id":"x"}`))

	st := s.Status()
	if !st.Connected || st.AgentID != "A7" || st.LastTick != 13 {
		t.Fatalf("status=%+v", st)
	}
	if st.Target == nil || st.Target.TargetID != "front_door" || st.Target.Prompt != "Open Door" {
		t.Fatalf("target=%+v", st.Target)
	}
	if len(st.Engaged) != 1 || st.Engaged[0] != "lift" {
		t.Fatalf("engaged=%v", st.Engaged)
	}
	if len(updates) != 1 || updates[0].AgentID != "A7" {
		t.Fatalf("updates=%+v", updates)
	}

	// Four events into a buffer of three: the TARGET event was evicted.
	res, err := s.GetEvents(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if !res.Truncated || len(res.Events) != 3 || res.Events[0].Cursor != 2 || res.NextCursor != 4 {
		t.Fatalf("events=%+v", res)
	}
	res, _ = s.GetEvents(context.Background(), 3, 10)
	if res.Truncated || len(res.Events) != 1 || res.Events[0].Action != protocol.CmdEnd {
		t.Fatalf("since 3: %+v", res)
	}
	res, _ = s.GetEvents(context.Background(), 4, 10)
	if len(res.Events) != 0 || res.NextCursor != 4 {
		t.Fatalf("caught up: %+v", res)
	}
}

func TestSession_GetTargetWaitsForChange(t *testing.T) {
	s := NewSession(SessionConfig{Key: "t", WorldWSURL: "ws://example.invalid"}, nil)

	if _, err := s.GetTarget(context.Background(), GetTargetOpts{WaitChange: true, TimeoutMS: 20}); err == nil {
		t.Fatalf("expected timeout without a target change")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.handle(msg(t, protocol.TargetMsg{Type: protocol.TypeTarget, ProtocolVersion: protocol.Version, Tick: 5, TargetID: "lift", Prompt: "Call Lift"}))
	}()
	res, err := s.GetTarget(context.Background(), GetTargetOpts{WaitChange: true, TimeoutMS: 2000})
	if err != nil {
		t.Fatalf("GetTarget: %v", err)
	}
	if res.Target == nil || res.Target.TargetID != "lift" {
		t.Fatalf("target=%+v", res.Target)
	}

	s.handle(msg(t, protocol.TargetMsg{Type: protocol.TypeTarget, ProtocolVersion: protocol.Version, Tick: 6}))
	if res, _ := s.GetTarget(context.Background(), GetTargetOpts{}); res.Target != nil {
		t.Fatalf("expected no target, got %+v", res.Target)
	}
}

func TestSession_SendRejectsBadCommands(t *testing.T) {
	s := NewSession(SessionConfig{Key: "t", WorldWSURL: "ws://example.invalid"}, nil)
	if _, err := s.Send(context.Background(), "JUMP", CmdArgs{}); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if _, err := s.Send(context.Background(), protocol.CmdMove, CmdArgs{}); err == nil {
		t.Fatalf("expected move without pos or yaw to fail")
	}
}

func TestManager_PersistsSpawnAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	m, err := NewManager(Config{WorldWSURL: "ws://127.0.0.1:1/v1/ws", StateFile: path})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	pos := [3]float64{1, 0, 2}
	m.onSessionUpdate("bot", sessionUpdate{AgentID: "A3", Pos: &pos, Yaw: 90})
	_ = m.Close()

	st, err := loadStateFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := st["bot"]
	if got.AgentID != "A3" || got.Pos == nil || *got.Pos != pos || got.Yaw != 90 {
		t.Fatalf("persisted=%+v", got)
	}

	m2, err := NewManager(Config{WorldWSURL: "ws://127.0.0.1:1/v1/ws", StateFile: path, MaxSessions: 1})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m2.Close()
	s, err := m2.getOrCreateSession("bot")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if st := s.Status(); st.Position == nil || *st.Position != pos || st.Yaw != 90 {
		t.Fatalf("restored status=%+v", st)
	}

	// MaxSessions 1 evicts the idle session for a new key.
	if _, err := m2.getOrCreateSession("other"); err != nil {
		t.Fatalf("session: %v", err)
	}
	if m2.Sessions() != 1 {
		t.Fatalf("sessions=%d want 1", m2.Sessions())
	}
}
