package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents int `json:"agents"`
	Props  int `json:"props"`
	// Open interactions across all props.
	Engaged int `json:"engaged"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	// DroppedMessages counts outbound messages lost to full client queues.
	DroppedMessages uint64 `json:"dropped_messages"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Scene int `json:"scene"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	engaged := 0
	for _, p := range w.props {
		engaged += p.Core().EngagedCount()
	}
	w.metrics.Store(WorldMetrics{
		Tick:    nextTick,
		Agents:  len(w.agents),
		Props:   len(w.props),
		Engaged: engaged,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
			Scene: len(w.scenes),
		},
		StepMS:          stepMS,
		DroppedMessages: w.dropped,
	})
}
