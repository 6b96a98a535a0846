package tracks

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
)

const eps = 1e-9

func near(a, b geom.Vec) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestPoseRowsRoundTrip(t *testing.T) {
	poses := [][]geom.Vec{
		{geom.V(1, 0), geom.V(0, 0)},
		{geom.V(5, 6), geom.V(4, 6)},
	}
	rows := PoseRows(nil, 7, poses)
	if len(rows) != 4 {
		t.Fatalf("PoseRows() returned %d rows, want 4", len(rows))
	}

	var buf bytes.Buffer
	if err := gocsv.Marshal(rows, &buf); err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "frame,agent,node,x,y\n") {
		t.Errorf("header = %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	parsed, err := ReadPoses(&buf)
	if err != nil {
		t.Fatalf("ReadPoses: %v", err)
	}
	got, err := PosesAt(parsed, 7, 2, 2)
	if err != nil {
		t.Fatalf("PosesAt: %v", err)
	}
	for a := range poses {
		for n := range poses[a] {
			if got[a][n] != poses[a][n] {
				t.Errorf("agent %d node %d = %v, want %v", a, n, got[a][n], poses[a][n])
			}
		}
	}
}

func TestPosesAtErrors(t *testing.T) {
	rows := PoseRows(nil, 0, [][]geom.Vec{{geom.V(1, 0), geom.V(0, 0)}})

	if _, err := PosesAt(rows, 0, 2, 2); !errors.Is(err, ErrIncomplete) {
		t.Errorf("missing agent error = %v, want ErrIncomplete", err)
	}
	if _, err := PosesAt(rows, 3, 1, 2); !errors.Is(err, ErrIncomplete) {
		t.Errorf("missing frame error = %v, want ErrIncomplete", err)
	}
	if _, err := PosesAt(rows, 0, 1, 1); err == nil {
		t.Error("PosesAt accepted a node index out of range")
	}

	dup := append(rows[:1:1], rows[0])
	if _, err := PosesAt(dup, 0, 1, 2); err == nil || errors.Is(err, ErrIncomplete) {
		t.Errorf("duplicate node error = %v, want a duplicate error", err)
	}
}

func TestLocomotionAt(t *testing.T) {
	locs := [][]float64{{1, 0.1, -0.1, 2, 0, 3, math.Pi}}
	names := []string{"forward", "drift", "turn"}
	rows := LocomotionRows(nil, 2, locs, names)
	if rows[0].Name != "forward" || rows[3].Name != "" {
		t.Errorf("names = %q, %q", rows[0].Name, rows[3].Name)
	}

	got, err := LocomotionAt(rows, 2, 1, 3)
	if err != nil {
		t.Fatalf("LocomotionAt: %v", err)
	}
	flat := got[0].Flatten(nil)
	for i := range locs[0] {
		if flat[i] != locs[0][i] {
			t.Errorf("value %d = %v, want %v", i, flat[i], locs[0][i])
		}
	}

	if _, err := LocomotionAt(rows[:5], 2, 1, 3); !errors.Is(err, ErrIncomplete) {
		t.Errorf("short vector error = %v, want ErrIncomplete", err)
	}
}

func TestStartFromDerivesLocomotion(t *testing.T) {
	// One agent moving one unit along +x between frames 0 and 1.
	var rows []PoseRow
	rows = PoseRows(rows, 0, [][]geom.Vec{{geom.V(1, 0), geom.V(0, 0), geom.V(-1, 0)}})
	rows = PoseRows(rows, 1, [][]geom.Vec{{geom.V(2, 0), geom.V(1, 0), geom.V(0, 0)}})

	start, err := StartFrom(rows, nil, 1, 1, 3)
	if err != nil {
		t.Fatalf("StartFrom: %v", err)
	}
	v := start.Locomotion[0]
	if math.Abs(v.Forward-1) > eps || v.Drift != 0 || v.Turn != 0 {
		t.Errorf("step = %+v, want forward 1", v.Step)
	}
	if math.Abs(v.Nodes[1].Length-1) > eps || math.Abs(v.Nodes[1].Angle-math.Pi) > eps {
		t.Errorf("tail placement = %+v, want length 1 at π", v.Nodes[1])
	}

	// Frame 0 has no predecessor: the agent starts at rest.
	start, err = StartFrom(rows, nil, 0, 1, 3)
	if err != nil {
		t.Fatalf("StartFrom frame 0: %v", err)
	}
	if start.Locomotion[0].Step != (locomotion.Step{}) {
		t.Errorf("rest step = %+v, want zero", start.Locomotion[0].Step)
	}
}

func TestLoadStart(t *testing.T) {
	dir := t.TempDir()
	posePath := filepath.Join(dir, "tracks.csv")
	locoPath := filepath.Join(dir, "locomotion.csv")

	rows := PoseRows(nil, 4, [][]geom.Vec{{geom.V(0, 1), geom.V(0, 0)}})
	writeCSV(t, posePath, &rows)
	loco := LocomotionRows(nil, 4, [][]float64{{0.5, 0, 0, 1, 0}}, nil)
	writeCSV(t, locoPath, &loco)

	start, err := LoadStart(posePath, locoPath, 4, 1, 2)
	if err != nil {
		t.Fatalf("LoadStart: %v", err)
	}
	if start.Locomotion[0].Forward != 0.5 {
		t.Errorf("forward = %v, want 0.5 from the locomotion file", start.Locomotion[0].Forward)
	}
	if !near(start.Poses[0][0], geom.V(0, 1)) {
		t.Errorf("head = %v, want (0,1)", start.Poses[0][0])
	}

	if _, err := LoadStart(filepath.Join(dir, "missing.csv"), "", 4, 1, 2); err == nil {
		t.Error("LoadStart accepted a missing file")
	}
}

func writeCSV(t *testing.T, path string, rows interface{}) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		t.Fatalf("MarshalFile: %v", err)
	}
}

func TestLineup(t *testing.T) {
	center := geom.V(250, 250)
	start, err := Lineup(center, 100, 4, 3, 10, 2)
	if err != nil {
		t.Fatalf("Lineup: %v", err)
	}
	if len(start.Poses) != 4 || len(start.Locomotion) != 4 {
		t.Fatalf("Lineup() built %d poses, want 4", len(start.Poses))
	}
	for a, p := range start.Poses {
		if got := geom.Distance(p[1], center); math.Abs(got-100) > 1e-6 {
			t.Errorf("agent %d center distance = %v, want 100", a, got)
		}
		if got := geom.Distance(p[0], p[2]); math.Abs(got-10) > 1e-6 {
			t.Errorf("agent %d body length = %v, want 10", a, got)
		}
		if start.Locomotion[a].Forward != 2 {
			t.Errorf("agent %d forward = %v, want 2", a, start.Locomotion[a].Forward)
		}
		// The locomotion vector reproduces the pose.
		o, err := locomotion.OrientationOf(p)
		if err != nil {
			t.Fatalf("OrientationOf: %v", err)
		}
		placed, err := locomotion.Place(o, start.Locomotion[a], 3)
		if err != nil {
			t.Fatalf("Place: %v", err)
		}
		for n := range p {
			if !near(placed[n], p[n]) {
				t.Errorf("agent %d node %d = %v, want %v", a, n, placed[n], p[n])
			}
		}
	}
}

func TestLineupRejectsSingleNode(t *testing.T) {
	start, err := Lineup(geom.V(0, 0), 10, 3, 1, 10, 2)
	if err == nil {
		t.Fatal("Lineup with one node per agent succeeded")
	}
	if len(start.Poses) != 0 {
		t.Errorf("Lineup returned %d poses alongside the error", len(start.Poses))
	}
}
