package world

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"interactworld.ai/internal/observerproto"
	"interactworld.ai/internal/persistence/snapshot"
	"interactworld.ai/internal/protocol"
	"interactworld.ai/internal/sim/interact"
	"interactworld.ai/internal/sim/props"
	"interactworld.ai/internal/sim/scene"
	"interactworld.ai/internal/sim/spatial"
)

type JoinRequest struct {
	Name  string
	Spawn [3]float64
	Yaw   float64
	Out   chan []byte
	Resp  chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type CommandEnvelope struct {
	AgentID string
	Cmd     protocol.CmdMsg
}

// World hosts interactors and props and resolves targets once per tick.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick atomic.Uint64
	// nowTick is the tick being stepped; prop hooks read it.
	nowTick uint64

	index  *spatial.Index
	props  map[string]props.Prop
	// scene is the layout last applied; snapshots record props from it.
	scene  scene.Scene
	agents map[string]*agentState

	inbox  chan CommandEnvelope
	join   chan JoinRequest
	leave  chan string
	scenes chan scene.Scene
	views  chan chan StateView
	stop   chan struct{}

	// done is closed when Run returns.
	done     chan struct{}
	doneOnce sync.Once

	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	observers     map[string]*observerState
	// tickAudits buffers audits for observers until the next TICK they get.
	tickAudits []observerproto.AuditEntry

	nextAgentNum atomic.Uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	// cause tags audit entries written by prop hooks.
	cause   string
	dropped uint64
	metrics atomic.Value
}

type agentState struct {
	agent *interact.Agent
	name  string
	out   chan []byte
	unsub func()

	// Last TARGET sent to the client.
	sentTargetID string
	sentPrompt   string
	targetDirty  bool
}

func New(cfg WorldConfig) (*World, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	w := &World{
		cfg:    cfg,
		log:    cfg.Logger,
		index:  spatial.New(cfg.CellSize),
		props:  map[string]props.Prop{},
		agents: map[string]*agentState{},
		inbox:  make(chan CommandEnvelope, 1024),
		join:   make(chan JoinRequest, 64),
		leave:  make(chan string, 64),
		scenes: make(chan scene.Scene, 4),
		views:  make(chan chan StateView, 4),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),

		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerState{},
	}
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

// NewWithScene builds a world and places the props of s.
func NewWithScene(cfg WorldConfig, s scene.Scene) (*World, error) {
	w, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := w.ApplyScene(s); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}
