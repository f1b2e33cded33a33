package worldtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"interactworld.ai/internal/protocol"
	world "interactworld.ai/internal/sim/world"
)

func TestWorldRun_JoinCommandAndCancel(t *testing.T) {
	w, err := world.NewWithScene(world.WorldConfig{ID: "W1", TickRateHz: 50, DetectionRadius: 2.5}, doorScene())
	if err != nil {
		t.Fatalf("new world: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	w.Join() <- world.JoinRequest{Name: "bot", Spawn: [3]float64{0, 0, 2.5}, Out: out, Resp: resp}

	var welcome protocol.WelcomeMsg
	select {
	case jr := <-resp:
		welcome = jr.Welcome
	case <-time.After(2 * time.Second):
		t.Fatalf("no join response")
	}
	if welcome.AgentID == "" || welcome.WorldParams.WorldID != "W1" || welcome.WorldParams.TickRateHz != 50 {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}

	w.Inbox() <- world.CommandEnvelope{AgentID: welcome.AgentID, Cmd: Begin("front_door")}

	deadline := time.After(2 * time.Second)
	gotTarget, gotInteraction := false, false
	for !gotTarget || !gotInteraction {
		select {
		case b := <-out:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch base.Type {
			case protocol.TypeTarget:
				var m protocol.TargetMsg
				_ = json.Unmarshal(b, &m)
				gotTarget = m.TargetID == "front_door"
			case protocol.TypeInteraction:
				gotInteraction = true
			}
		case <-deadline:
			t.Fatalf("timed out: target=%v interaction=%v", gotTarget, gotInteraction)
		}
	}

	if m := w.Metrics(); m.Agents != 1 || m.Props != 1 || m.Tick == 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	st, err := w.RequestState(rctx)
	if err != nil {
		t.Fatalf("RequestState: %v", err)
	}
	if len(st.Agents) != 1 || st.Agents[0].TargetID != "front_door" {
		t.Fatalf("agents=%+v", st.Agents)
	}
	if len(st.Props) != 1 || len(st.Props[0].Engaged) != 1 || st.Props[0].Engaged[0] != welcome.AgentID {
		t.Fatalf("props=%+v", st.Props)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("world.Run did not exit")
	}
}

func TestWorldRun_Stop(t *testing.T) {
	w, err := world.New(world.WorldConfig{ID: "W1", TickRateHz: 50})
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	w.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("world.Run did not exit")
	}
}

func TestWorldRun_DoneAfterStop(t *testing.T) {
	w, err := world.New(world.WorldConfig{ID: "W1", TickRateHz: 50})
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	go func() { _ = w.Run(context.Background()) }()
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done not closed after Stop")
	}
	if _, err := w.RequestState(context.Background()); err == nil {
		t.Fatalf("RequestState on a stopped world must fail")
	}
}
