package observer

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"interactworld.ai/internal/observerproto"
	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/scene"
	"interactworld.ai/internal/sim/world"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.NewWithScene(world.WorldConfig{ID: "W1", TickRateHz: 50, DetectionRadius: 2.5}, scene.Scene{
		Props: []scene.PropSpec{{ID: "front_door", Kind: "door", Pos: [3]float64{0, 0, 4}}},
	})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	return w
}

func TestBootstrap(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).BootstrapHandler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.WorldID != "W1" || b.WorldParams.TickRateHz != 50 || b.WorldParams.DetectionRadius != 2.5 {
		t.Fatalf("unexpected bootstrap: %+v", b)
	}
}

func TestWS_StreamsTicksWithInteractions(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Join an agent next to the door and open it once the observer is streaming.
	readTick := func() observerproto.TickMsg {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var m observerproto.TickMsg
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if m.Type != observerproto.TypeTick {
			t.Fatalf("type=%s", m.Type)
		}
		return m
	}
	first := readTick()
	if len(first.Props) != 1 || first.Props[0].ID != "front_door" || first.Digest == "" {
		t.Fatalf("unexpected first tick: %+v", first)
	}

	resp := make(chan world.JoinResponse, 1)
	w.Join() <- world.JoinRequest{Name: "bot", Spawn: [3]float64{0, 0, 2.5}, Out: make(chan []byte, 16), Resp: resp}
	agentID := (<-resp).Welcome.AgentID
	w.Inbox() <- world.CommandEnvelope{AgentID: agentID, Cmd: protocol.CmdMsg{Cmd: protocol.CmdBegin, TargetID: "front_door"}}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		m := readTick()
		for _, a := range m.Audits {
			if a.Action == "INTERACTION_BEGIN" && a.PropID == "front_door" && a.Actor == agentID {
				if len(m.Props) != 1 || len(m.Props[0].Engaged) != 1 || m.Props[0].Engaged[0] != agentID {
					t.Fatalf("props=%+v", m.Props)
				}
				return
			}
		}
	}
	t.Fatalf("no INTERACTION_BEGIN audit observed")
}

func TestWS_RejectsBadSubscribe(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(observerproto.SubscribeMsg{Type: "HELLO", ProtocolVersion: observerproto.Version})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	if !isLoopbackRemote("127.0.0.1:1234") || !isLoopbackRemote("[::1]:1") || isLoopbackRemote("192.168.1.2:80") {
		t.Fatalf("loopback detection mismatch")
	}
}
