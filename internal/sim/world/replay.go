package world

import "interactworld.ai/internal/sim/scene"

// ReplayInput rebuilds the inputs of a logged tick. Stepping a world built
// from the same starting scene with each entry's input, in order, yields the
// logged digests.
func ReplayInput(e TickLogEntry) StepInput {
	in := StepInput{
		Scenes: append([]scene.Scene(nil), e.Scenes...),
		Leaves: append([]string(nil), e.Leaves...),
	}
	for _, j := range e.Joins {
		in.Joins = append(in.Joins, JoinRequest{Name: j.Name, Spawn: j.Spawn, Yaw: j.Yaw})
	}
	for _, c := range e.Commands {
		in.Commands = append(in.Commands, CommandEnvelope{AgentID: c.AgentID, Cmd: c.Cmd})
	}
	return in
}
