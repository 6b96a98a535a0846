// Package locomotion converts between an agent's body-frame locomotion vector
// and its absolute pose in the arena.
//
// A locomotion vector flattens to
//
//	[forward, drift, turn, head.length, head.angle, node2.length, node2.angle, ...]
//
// where forward is the distance the center moved, drift is the direction of
// that move relative to the previous heading, turn is the heading change and
// each (length, angle) pair places a non-center node around the new center.
package locomotion

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/shoal/geom"
)

var (
	// ErrWidth is returned when a flat locomotion vector or pose has the wrong size.
	ErrWidth = errors.New("locomotion: width mismatch")
	// ErrDegenerate is returned when a pose's head sits on its center.
	ErrDegenerate = errors.New("locomotion: head and center coincide")
)

// Width returns the flat locomotion width for nnodes body nodes.
func Width(nnodes int) int { return 2*nnodes + 1 }

// Orientation is an agent's center and heading, the state the integrator
// advances from frame to frame. Heading is in [0, 2π).
type Orientation struct {
	Center  geom.Vec
	Heading float64
}

// Step is the rigid-body part of a locomotion vector.
type Step struct {
	Forward float64
	Drift   float64
	Turn    float64
}

// Placement positions one node relative to the center and heading.
type Placement struct {
	Length float64
	Angle  float64
}

// Vector is one frame of locomotion. Nodes[0] is the head (its angle is
// ignored when placing: the head defines the heading), Nodes[k] for k >= 1 is
// pose node k+1.
type Vector struct {
	Step
	Nodes []Placement
}

// OrientationOf derives the orientation of a pose (head at 0, center at 1).
func OrientationOf(pose []geom.Vec) (Orientation, error) {
	if len(pose) < 2 {
		return Orientation{}, fmt.Errorf("%w: pose has %d nodes, need at least 2", ErrWidth, len(pose))
	}
	h, err := geom.Heading(geom.Sub(pose[0], pose[1]))
	if err != nil {
		return Orientation{}, ErrDegenerate
	}
	return Orientation{Center: pose[1], Heading: h}, nil
}

// Advance applies a step: the center moves forward along heading+drift and
// the heading turns.
func Advance(o Orientation, s Step) Orientation {
	return Orientation{
		Center:  geom.Add(o.Center, geom.FromPolar(s.Forward, o.Heading+s.Drift)),
		Heading: geom.NormalizeAngle(o.Heading + s.Turn),
	}
}

// ToCartesian integrates a locomotion vector into the next orientation.
func ToCartesian(o Orientation, v Vector) Orientation {
	return Advance(o, v.Step)
}

// FromCartesian recovers the step that moves prev to the given center and
// head, and the resulting orientation. Drift and turn are wrapped to (-π, π].
// Drift is 0 when the center did not move.
func FromCartesian(prev Orientation, newCenter, newHead geom.Vec) (Step, Orientation, error) {
	h, err := geom.Heading(geom.Sub(newHead, newCenter))
	if err != nil {
		return Step{}, Orientation{}, ErrDegenerate
	}
	next := Orientation{Center: newCenter, Heading: h}

	delta := geom.Sub(newCenter, prev.Center)
	s := Step{
		Forward: geom.Distance(prev.Center, newCenter),
		Turn:    geom.WrapAngle(h - prev.Heading),
	}
	if s.Forward > 0 {
		s.Drift = geom.WrapAngle(math.Atan2(delta.Y, delta.X) - prev.Heading)
	}
	return s, next, nil
}

// NodeLocalToWorld places a node at angle and length around the center.
func NodeLocalToWorld(o Orientation, angle, length float64) geom.Vec {
	return geom.Add(o.Center, geom.FromPolar(length, o.Heading+angle))
}

// Place builds the full pose for orientation o from the node placements of v.
func Place(o Orientation, v Vector, nnodes int) ([]geom.Vec, error) {
	return PlaceInto(make([]geom.Vec, 0, nnodes), o, v, nnodes)
}

// PlaceInto is Place writing into dst[:0].
func PlaceInto(dst []geom.Vec, o Orientation, v Vector, nnodes int) ([]geom.Vec, error) {
	if nnodes < 2 || len(v.Nodes) != nnodes-1 {
		return dst, fmt.Errorf("%w: %d placements for %d nodes", ErrWidth, len(v.Nodes), nnodes)
	}
	dst = append(dst[:0], NodeLocalToWorld(o, 0, v.Nodes[0].Length), o.Center)
	for _, p := range v.Nodes[1:] {
		dst = append(dst, NodeLocalToWorld(o, p.Angle, p.Length))
	}
	return dst, nil
}

// Placements describes every non-center node of pose relative to o. Angles
// are normalized to [0, 2π); the head's angle is 0 by construction.
func Placements(o Orientation, pose []geom.Vec) ([]Placement, error) {
	if len(pose) < 2 {
		return nil, fmt.Errorf("%w: pose has %d nodes, need at least 2", ErrWidth, len(pose))
	}
	out := make([]Placement, 0, len(pose)-1)
	out = append(out, Placement{Length: geom.Distance(o.Center, pose[0])})
	for _, node := range pose[2:] {
		rel := geom.Sub(node, o.Center)
		p := Placement{Length: math.Hypot(rel.X, rel.Y)}
		if p.Length > 0 {
			p.Angle = geom.NormalizeAngle(math.Atan2(rel.Y, rel.X) - o.Heading)
		}
		out = append(out, p)
	}
	return out, nil
}

// FromPoses derives the locomotion vector that takes an agent from prev to
// the pose next, and the orientation of next.
func FromPoses(prev Orientation, next []geom.Vec) (Vector, Orientation, error) {
	if len(next) < 2 {
		return Vector{}, Orientation{}, fmt.Errorf("%w: pose has %d nodes, need at least 2", ErrWidth, len(next))
	}
	s, o, err := FromCartesian(prev, next[1], next[0])
	if err != nil {
		return Vector{}, Orientation{}, err
	}
	nodes, err := Placements(o, next)
	if err != nil {
		return Vector{}, Orientation{}, err
	}
	return Vector{Step: s, Nodes: nodes}, o, nil
}

// Rest returns a zero step that keeps the body shape of pose, used when no
// previous frame is available.
func Rest(pose []geom.Vec) (Vector, error) {
	o, err := OrientationOf(pose)
	if err != nil {
		return Vector{}, err
	}
	nodes, err := Placements(o, pose)
	if err != nil {
		return Vector{}, err
	}
	return Vector{Nodes: nodes}, nil
}

// Flatten appends the flat form of v to dst[:0].
func (v Vector) Flatten(dst []float64) []float64 {
	dst = append(dst[:0], v.Forward, v.Drift, v.Turn)
	for _, p := range v.Nodes {
		dst = append(dst, p.Length, p.Angle)
	}
	return dst
}

// Unflatten parses a flat locomotion vector for nnodes body nodes.
func Unflatten(flat []float64, nnodes int) (Vector, error) {
	if nnodes < 2 || len(flat) != Width(nnodes) {
		return Vector{}, fmt.Errorf("%w: got %d values, want %d", ErrWidth, len(flat), Width(nnodes))
	}
	v := Vector{
		Step:  Step{Forward: flat[0], Drift: flat[1], Turn: flat[2]},
		Nodes: make([]Placement, nnodes-1),
	}
	for i := range v.Nodes {
		v.Nodes[i] = Placement{Length: flat[3+2*i], Angle: flat[4+2*i]}
	}
	return v, nil
}
