// Package components defines ECS components for the simulation.
package components

import "github.com/pthm-cable/shoal/locomotion"

// Agent identifies a fish by its index in the swarm. Indices are fixed for
// the whole run and define agent order in observations and output.
type Agent struct {
	Index int
}

// Motion stores the locomotion vector that produced the current pose. It
// is fed back to the predictor as the previous-locomotion block.
type Motion struct {
	Last locomotion.Vector
}
