package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"interactworld.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "agent name")
		step  = flag.Float64("step", 0.5, "distance walked per move")
		span  = flag.Float64("span", 8, "patrol half-width along x")
		every = flag.Duration("every", 500*time.Millisecond, "move interval")
		hold  = flag.Duration("hold", 2*time.Second, "how long to keep an interaction open")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	spawn := [3]float64{-*span, 0, 2.5}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
		Spawn:           &spawn,
		Yaw:             0,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	msgs := make(chan []byte, 32)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	p := newPatrol(spawn, *step, *span)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	var (
		seq      int
		engaged  string
		endAfter time.Time
	)
	send := func(cmd protocol.CmdMsg) {
		seq++
		cmd.Type = protocol.TypeCmd
		cmd.ProtocolVersion = protocol.Version
		cmd.ID = fmt.Sprintf("c%d", seq)
		if err := conn.WriteJSON(cmd); err != nil {
			logger.Printf("send %s: %v", cmd.Cmd, err)
		}
	}

	for {
		select {
		case <-stop:
			return

		case <-ticker.C:
			if engaged != "" {
				if time.Now().After(endAfter) {
					send(protocol.CmdMsg{Cmd: protocol.CmdEnd, TargetID: engaged})
					engaged = ""
				}
				continue
			}
			pos, yaw := p.next()
			send(protocol.CmdMsg{Cmd: protocol.CmdMove, Pos: &pos, Yaw: &yaw})

		case msg, ok := <-msgs:
			if !ok {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(msg, &w); err != nil {
					continue
				}
				logger.Printf("WELCOME agent_id=%s world=%s tick_rate=%d radius=%.2f", w.AgentID, w.WorldParams.WorldID, w.WorldParams.TickRateHz, w.WorldParams.DetectionRadius)

			case protocol.TypeTarget:
				var tm protocol.TargetMsg
				if err := json.Unmarshal(msg, &tm); err != nil {
					continue
				}
				if tm.TargetID == "" {
					logger.Printf("tick=%d no target", tm.Tick)
					continue
				}
				logger.Printf("tick=%d target=%s kind=%s prompt=%q", tm.Tick, tm.TargetID, tm.Kind, tm.Prompt)
				if engaged == "" && !p.visited(tm.TargetID) {
					send(protocol.CmdMsg{Cmd: protocol.CmdBegin, TargetID: tm.TargetID})
				}

			case protocol.TypeInteraction:
				var im protocol.InteractionMsg
				if err := json.Unmarshal(msg, &im); err != nil {
					continue
				}
				logger.Printf("tick=%d %s %s state=%v", im.Tick, im.Action, im.PropID, im.State)
				if im.Action == protocol.CmdBegin {
					engaged = im.PropID
					endAfter = time.Now().Add(*hold)
					p.markVisited(im.PropID)
				}

			case protocol.TypeError:
				var em protocol.ErrorMsg
				if err := json.Unmarshal(msg, &em); err != nil {
					continue
				}
				logger.Printf("ERROR ref=%s code=%s: %s", em.RefID, em.Code, em.Message)
			}
		}
	}
}

// patrol walks back and forth along x, facing +Z. Each prop is used once per
// leg so the bot does not stall in front of the first door it finds.
type patrol struct {
	pos  [3]float64
	step float64
	span float64
	dir  float64
	seen map[string]bool
}

func newPatrol(start [3]float64, step, span float64) *patrol {
	return &patrol{pos: start, step: step, span: span, dir: 1, seen: map[string]bool{}}
}

func (p *patrol) next() ([3]float64, float64) {
	p.pos[0] += p.dir * p.step
	if p.pos[0] > p.span || p.pos[0] < -p.span {
		p.dir = -p.dir
		p.pos[0] += 2 * p.dir * p.step
		p.seen = map[string]bool{}
	}
	return p.pos, 0
}

func (p *patrol) visited(id string) bool { return p.seen[id] }
func (p *patrol) markVisited(id string)  { p.seen[id] = true }
