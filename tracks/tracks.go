// Package tracks reads and writes agent tracks in long-format CSV and builds
// simulation start states from them.
package tracks

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
)

// ErrIncomplete is returned when a frame lacks some agent's nodes or values.
var ErrIncomplete = errors.New("tracks: incomplete frame")

// PoseRow is one node position in tracks.csv.
type PoseRow struct {
	Frame int     `csv:"frame"`
	Agent int     `csv:"agent"`
	Node  int     `csv:"node"`
	X     float64 `csv:"x"`
	Y     float64 `csv:"y"`
}

// OrientationRow is one agent orientation in orientation.csv.
type OrientationRow struct {
	Frame   int     `csv:"frame"`
	Agent   int     `csv:"agent"`
	X       float64 `csv:"x"`
	Y       float64 `csv:"y"`
	Heading float64 `csv:"heading"`
}

// LocomotionRow is one locomotion vector value in locomotion.csv.
type LocomotionRow struct {
	Frame int     `csv:"frame"`
	Agent int     `csv:"agent"`
	Index int     `csv:"index"`
	Name  string  `csv:"name"`
	Value float64 `csv:"value"`
}

// PoseRows flattens the poses of one frame.
func PoseRows(dst []PoseRow, frame int, poses [][]geom.Vec) []PoseRow {
	for a, nodes := range poses {
		for n, p := range nodes {
			dst = append(dst, PoseRow{Frame: frame, Agent: a, Node: n, X: p.X, Y: p.Y})
		}
	}
	return dst
}

// OrientationRows flattens the orientations of one frame.
func OrientationRows(dst []OrientationRow, frame int, orients []locomotion.Orientation) []OrientationRow {
	for a, o := range orients {
		dst = append(dst, OrientationRow{Frame: frame, Agent: a, X: o.Center.X, Y: o.Center.Y, Heading: o.Heading})
	}
	return dst
}

// LocomotionRows flattens the locomotion vectors of one frame. names labels
// each index and may be nil.
func LocomotionRows(dst []LocomotionRow, frame int, locs [][]float64, names []string) []LocomotionRow {
	for a, loc := range locs {
		for i, v := range loc {
			row := LocomotionRow{Frame: frame, Agent: a, Index: i, Value: v}
			if i < len(names) {
				row.Name = names[i]
			}
			dst = append(dst, row)
		}
	}
	return dst
}

// ReadPoses parses pose rows from r.
func ReadPoses(r io.Reader) ([]PoseRow, error) {
	var rows []PoseRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing pose rows: %w", err)
	}
	return rows, nil
}

// ReadLocomotion parses locomotion rows from r.
func ReadLocomotion(r io.Reader) ([]LocomotionRow, error) {
	var rows []LocomotionRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing locomotion rows: %w", err)
	}
	return rows, nil
}

// LoadPoses reads a tracks CSV file.
func LoadPoses(path string) ([]PoseRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tracks: %w", err)
	}
	defer f.Close()
	return ReadPoses(f)
}

// LoadLocomotion reads a locomotion CSV file.
func LoadLocomotion(path string) ([]LocomotionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening locomotion: %w", err)
	}
	defer f.Close()
	return ReadLocomotion(f)
}

// PosesAt collects the poses of one frame. Every agent in [0, nfish) must
// have every node in [0, nnodes) exactly once.
func PosesAt(rows []PoseRow, frame, nfish, nnodes int) ([][]geom.Vec, error) {
	poses := make([][]geom.Vec, nfish)
	seen := make([][]bool, nfish)
	for a := range poses {
		poses[a] = make([]geom.Vec, nnodes)
		seen[a] = make([]bool, nnodes)
	}

	count := 0
	for _, r := range rows {
		if r.Frame != frame {
			continue
		}
		if r.Agent < 0 || r.Agent >= nfish || r.Node < 0 || r.Node >= nnodes {
			return nil, fmt.Errorf("tracks: frame %d row agent %d node %d out of range", frame, r.Agent, r.Node)
		}
		if seen[r.Agent][r.Node] {
			return nil, fmt.Errorf("tracks: frame %d agent %d node %d listed twice", frame, r.Agent, r.Node)
		}
		seen[r.Agent][r.Node] = true
		poses[r.Agent][r.Node] = geom.V(r.X, r.Y)
		count++
	}
	if count != nfish*nnodes {
		return nil, fmt.Errorf("%w: frame %d has %d of %d node positions", ErrIncomplete, frame, count, nfish*nnodes)
	}
	return poses, nil
}

// LocomotionAt collects the locomotion vectors of one frame.
func LocomotionAt(rows []LocomotionRow, frame, nfish, nnodes int) ([]locomotion.Vector, error) {
	width := locomotion.Width(nnodes)
	flat := make([][]float64, nfish)
	seen := make([][]bool, nfish)
	for a := range flat {
		flat[a] = make([]float64, width)
		seen[a] = make([]bool, width)
	}

	count := 0
	for _, r := range rows {
		if r.Frame != frame {
			continue
		}
		if r.Agent < 0 || r.Agent >= nfish || r.Index < 0 || r.Index >= width {
			return nil, fmt.Errorf("tracks: frame %d row agent %d index %d out of range", frame, r.Agent, r.Index)
		}
		if seen[r.Agent][r.Index] {
			return nil, fmt.Errorf("tracks: frame %d agent %d index %d listed twice", frame, r.Agent, r.Index)
		}
		seen[r.Agent][r.Index] = true
		flat[r.Agent][r.Index] = r.Value
		count++
	}
	if count != nfish*width {
		return nil, fmt.Errorf("%w: frame %d has %d of %d locomotion values", ErrIncomplete, frame, count, nfish*width)
	}

	out := make([]locomotion.Vector, nfish)
	for a, f := range flat {
		v, err := locomotion.Unflatten(f, nnodes)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", a, err)
		}
		out[a] = v
	}
	return out, nil
}
