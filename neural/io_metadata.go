package neural

import (
	"fmt"

	"github.com/pthm-cable/shoal/perception"
)

// IODescriptor describes a predictor input or output.
type IODescriptor struct {
	ID          string // Unique identifier
	Description string // Extended description
	Group       string // Logical grouping: view, rays or locomotion
}

// InputDescriptors returns metadata for every observation value, in the
// order the observation vector lays them out. nodes names the body nodes.
func InputDescriptors(l perception.Layout, nodes []string) []IODescriptor {
	out := make([]IODescriptor, 0, l.Len())
	for other := 1; other < l.Fish; other++ {
		for _, n := range nodes {
			out = append(out,
				IODescriptor{ID: fmt.Sprintf("other%d_%s_dist", other, n), Description: "Distance from own center", Group: "view"},
				IODescriptor{ID: fmt.Sprintf("other%d_%s_bearing", other, n), Description: "Bearing from own heading [0, 2π)", Group: "view"},
			)
		}
	}
	for r := 0; r < l.Rays; r++ {
		out = append(out, IODescriptor{ID: fmt.Sprintf("ray%d", r), Description: "Wall distance, clamped to max range", Group: "rays"})
	}
	for _, d := range OutputDescriptors(nodes) {
		d.ID = "prev_" + d.ID
		out = append(out, d)
	}
	return out
}

// OutputDescriptors returns metadata for the locomotion vector values.
// nodes must list head first and center second.
func OutputDescriptors(nodes []string) []IODescriptor {
	out := []IODescriptor{
		{ID: "forward", Description: "Center displacement length", Group: "locomotion"},
		{ID: "drift", Description: "Displacement direction relative to heading (-π, π]", Group: "locomotion"},
		{ID: "turn", Description: "Heading change (-π, π]", Group: "locomotion"},
	}
	for i, n := range nodes {
		if i == 1 {
			continue // center
		}
		out = append(out,
			IODescriptor{ID: n + "_length", Description: "Distance from center", Group: "locomotion"},
			IODescriptor{ID: n + "_angle", Description: "Angle from heading [0, 2π)", Group: "locomotion"},
		)
	}
	return out
}

// IDs returns the descriptor IDs in order.
func IDs(descs []IODescriptor) []string {
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	return ids
}
