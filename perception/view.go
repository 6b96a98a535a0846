// Package perception encodes the egocentric view of one agent: where the
// other agents' body nodes are relative to its own center and heading.
package perception

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/shoal/geom"
)

var (
	// ErrDegenerateHeading is returned when the focal head coincides with its center.
	ErrDegenerateHeading = errors.New("perception: head and center coincide")
	// ErrNodeCount is returned when an agent carries the wrong number of nodes.
	ErrNodeCount = errors.New("perception: wrong node count")
	// ErrCoincidentNode is returned when another agent's node sits on the focal center.
	ErrCoincidentNode = errors.New("perception: node coincides with focal center")
)

// EncodeView returns (distance, bearing) pairs for every node of every other
// agent, agents in the order given and nodes in body order. Bearings are
// measured counter-clockwise from the focal heading (head - center) and
// normalized to [0, 2π).
func EncodeView(head, center geom.Vec, others [][]geom.Vec, nnodes int) ([]float64, error) {
	return EncodeViewInto(make([]float64, 0, len(others)*nnodes*2), head, center, others, nnodes)
}

// EncodeViewInto is EncodeView writing into dst[:0].
func EncodeViewInto(dst []float64, head, center geom.Vec, others [][]geom.Vec, nnodes int) ([]float64, error) {
	forward := geom.Sub(head, center)
	if forward.X == 0 && forward.Y == 0 {
		return dst, ErrDegenerateHeading
	}

	dst = dst[:0]
	for a, nodes := range others {
		if len(nodes) != nnodes {
			return dst, fmt.Errorf("%w: agent %d has %d nodes, want %d", ErrNodeCount, a, len(nodes), nnodes)
		}
		for n, node := range nodes {
			rel := geom.Sub(node, center)
			bearing := geom.AngleBetween(forward, rel, geom.Radians)
			if math.IsNaN(bearing) {
				return dst, fmt.Errorf("%w: agent %d node %d", ErrCoincidentNode, a, n)
			}
			dst = append(dst, geom.Distance(center, node), geom.NormalizeAngle(bearing))
		}
	}
	return dst, nil
}
