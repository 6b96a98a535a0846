package tracks

import (
	"fmt"
	"math"

	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
	"github.com/pthm-cable/shoal/sim"
)

// StartFrom builds a start state from the pose rows of frame. Locomotion is
// taken from locoRows when given; otherwise it is derived from the move
// frame-1 -> frame, or set to a resting step when frame-1 is not present.
func StartFrom(poseRows []PoseRow, locoRows []LocomotionRow, frame, nfish, nnodes int) (sim.Start, error) {
	poses, err := PosesAt(poseRows, frame, nfish, nnodes)
	if err != nil {
		return sim.Start{}, err
	}
	start := sim.Start{Poses: poses}

	if locoRows != nil {
		start.Locomotion, err = LocomotionAt(locoRows, frame, nfish, nnodes)
		if err != nil {
			return sim.Start{}, err
		}
		return start, nil
	}

	prev, err := PosesAt(poseRows, frame-1, nfish, nnodes)
	if err != nil {
		// No usable previous frame: agents start at rest.
		for a, p := range poses {
			v, err := locomotion.Rest(p)
			if err != nil {
				return sim.Start{}, fmt.Errorf("agent %d at frame %d: %w", a, frame, err)
			}
			start.Locomotion = append(start.Locomotion, v)
		}
		return start, nil
	}

	for a := range poses {
		o, err := locomotion.OrientationOf(prev[a])
		if err != nil {
			return sim.Start{}, fmt.Errorf("agent %d at frame %d: %w", a, frame-1, err)
		}
		v, _, err := locomotion.FromPoses(o, poses[a])
		if err != nil {
			return sim.Start{}, fmt.Errorf("agent %d at frame %d: %w", a, frame, err)
		}
		start.Locomotion = append(start.Locomotion, v)
	}
	return start, nil
}

// LoadStart reads the start state from a tracks file and an optional
// locomotion file.
func LoadStart(posePath, locoPath string, frame, nfish, nnodes int) (sim.Start, error) {
	poseRows, err := LoadPoses(posePath)
	if err != nil {
		return sim.Start{}, err
	}
	var locoRows []LocomotionRow
	if locoPath != "" {
		if locoRows, err = LoadLocomotion(locoPath); err != nil {
			return sim.Start{}, err
		}
		if locoRows == nil {
			locoRows = []LocomotionRow{}
		}
	}
	return StartFrom(poseRows, locoRows, frame, nfish, nnodes)
}

// Lineup places nfish agents evenly on a circle of the given radius around
// center, all heading counter-clockwise along the circle and moving forward
// speed per frame. Body nodes trail the center in a straight line spaced by
// bodyLen / (nnodes-1).
func Lineup(center geom.Vec, radius float64, nfish, nnodes int, bodyLen, speed float64) (sim.Start, error) {
	var start sim.Start
	if nnodes < 2 {
		return start, fmt.Errorf("lineup: need at least 2 nodes per agent, got %d", nnodes)
	}
	seg := bodyLen / float64(nnodes-1)
	for a := 0; a < nfish; a++ {
		phi := 2 * math.Pi * float64(a) / float64(nfish)
		o := locomotion.Orientation{
			Center:  geom.Add(center, geom.FromPolar(radius, phi)),
			Heading: geom.NormalizeAngle(phi + math.Pi/2),
		}
		v := locomotion.Vector{Step: locomotion.Step{Forward: speed}}
		v.Nodes = append(v.Nodes, locomotion.Placement{Length: seg})
		for k := 2; k < nnodes; k++ {
			v.Nodes = append(v.Nodes, locomotion.Placement{Length: seg * float64(k-1), Angle: math.Pi})
		}
		pose, err := locomotion.Place(o, v, nnodes)
		if err != nil {
			return sim.Start{}, fmt.Errorf("lineup agent %d: %w", a, err)
		}
		start.Poses = append(start.Poses, pose)
		start.Locomotion = append(start.Locomotion, v)
	}
	return start, nil
}
