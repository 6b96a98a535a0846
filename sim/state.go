package sim

import (
	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
)

// WorldState is a read-only snapshot of every agent's pose for one frame.
// Poses are indexed by agent.
type WorldState struct {
	Frame int
	Poses [][]geom.Vec
}

// Agents returns the number of agents.
func (w WorldState) Agents() int { return len(w.Poses) }

// NodesOf returns the body nodes of one agent.
func (w WorldState) NodesOf(agent int) []geom.Vec {
	return w.Poses[agent]
}

// OthersExcluding returns the poses of every agent except one, in agent order.
func (w WorldState) OthersExcluding(agent int) [][]geom.Vec {
	return w.OthersInto(make([][]geom.Vec, 0, len(w.Poses)-1), agent)
}

// OthersInto is OthersExcluding appending to dst[:0].
func (w WorldState) OthersInto(dst [][]geom.Vec, agent int) [][]geom.Vec {
	dst = dst[:0]
	for i, p := range w.Poses {
		if i != agent {
			dst = append(dst, p)
		}
	}
	return dst
}

// Clone returns a deep copy that shares no node slices with w.
func (w WorldState) Clone() WorldState {
	out := WorldState{Frame: w.Frame, Poses: make([][]geom.Vec, len(w.Poses))}
	for i, p := range w.Poses {
		out.Poses[i] = append([]geom.Vec(nil), p...)
	}
	return out
}

// Frame is the outcome of one simulation step, handed to observers.
type Frame struct {
	Index        int
	State        WorldState
	Orientations []locomotion.Orientation
	Locomotion   [][]float64 // flat locomotion vector applied per agent
}

// FrameObserver is called after every completed frame. Returning an error
// stops Run.
type FrameObserver func(f *Frame) error

// History is the append-only record of a run. Entry 0 is the start state.
type History struct {
	States       []WorldState
	Orientations [][]locomotion.Orientation
	Locomotion   [][][]float64
}

// Len returns the number of recorded frames.
func (h *History) Len() int { return len(h.States) }

// At returns the recorded frame i.
func (h *History) At(i int) Frame {
	return Frame{
		Index:        h.States[i].Frame,
		State:        h.States[i],
		Orientations: h.Orientations[i],
		Locomotion:   h.Locomotion[i],
	}
}

// Last returns the most recent frame.
func (h *History) Last() Frame { return h.At(h.Len() - 1) }

// Trajectory returns the center position of one agent over all frames.
func (h *History) Trajectory(agent int) []geom.Vec {
	out := make([]geom.Vec, len(h.Orientations))
	for i, orients := range h.Orientations {
		out[i] = orients[agent].Center
	}
	return out
}

func (h *History) append(f *Frame) {
	h.States = append(h.States, f.State)
	h.Orientations = append(h.Orientations, f.Orientations)
	h.Locomotion = append(h.Locomotion, f.Locomotion)
}
