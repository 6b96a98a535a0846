package components

import (
	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
)

// Pose holds the world positions of an agent's body nodes: head, center,
// then the remaining landmarks in body order.
type Pose struct {
	Nodes []geom.Vec
}

// Head returns node 0.
func (p *Pose) Head() geom.Vec { return p.Nodes[0] }

// Center returns node 1.
func (p *Pose) Center() geom.Vec { return p.Nodes[1] }

// Orientation is the integrator state: center position and heading in
// [0, 2π). After frame 0 it is advanced by turn deltas, not re-derived from
// the pose.
type Orientation struct {
	Center  geom.Vec
	Heading float64 // radians
}

// Value converts to the locomotion package's orientation.
func (o Orientation) Value() locomotion.Orientation {
	return locomotion.Orientation{Center: o.Center, Heading: o.Heading}
}

// OrientationFrom wraps a locomotion orientation as a component.
func OrientationFrom(o locomotion.Orientation) Orientation {
	return Orientation{Center: o.Center, Heading: o.Heading}
}
