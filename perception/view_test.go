package perception

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/shoal/geom"
)

const eps = 1e-9

func TestEncodeViewTwoAgents(t *testing.T) {
	// Focal agent at the origin facing +x; the other agent's single node is
	// one unit to its left.
	got, err := EncodeView(geom.V(1, 0), geom.V(0, 0), [][]geom.Vec{{geom.V(0, 1)}}, 1)
	if err != nil {
		t.Fatalf("EncodeView: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if math.Abs(got[0]-1) > eps {
		t.Errorf("distance = %v, want 1", got[0])
	}
	if math.Abs(got[1]-math.Pi/2) > eps {
		t.Errorf("bearing = %v, want π/2", got[1])
	}
}

func TestEncodeViewBearingNormalized(t *testing.T) {
	// A node to the right of the heading wraps to 3π/2.
	got, err := EncodeView(geom.V(0, 1), geom.V(0, 0), [][]geom.Vec{{geom.V(2, 0)}}, 1)
	if err != nil {
		t.Fatalf("EncodeView: %v", err)
	}
	if math.Abs(got[1]-3*math.Pi/2) > eps {
		t.Errorf("bearing = %v, want 3π/2", got[1])
	}
}

func TestEncodeViewOrderAndDistances(t *testing.T) {
	head, center := geom.V(3, 4), geom.V(2, 2)
	others := [][]geom.Vec{
		{geom.V(10, 10), geom.V(9, 8), geom.V(7, 7)},
		{geom.V(-3, 1), geom.V(-2, 0), geom.V(0, -1)},
	}
	got, err := EncodeView(head, center, others, 3)
	if err != nil {
		t.Fatalf("EncodeView: %v", err)
	}
	if len(got) != 2*3*2 {
		t.Fatalf("len = %d, want 12", len(got))
	}

	i := 0
	for a, nodes := range others {
		for n, node := range nodes {
			want := geom.Distance(center, node)
			if math.Abs(got[i]-want) > eps {
				t.Errorf("agent %d node %d distance = %v, want %v", a, n, got[i], want)
			}
			if b := got[i+1]; b < 0 || b >= 2*math.Pi {
				t.Errorf("agent %d node %d bearing = %v, outside [0, 2π)", a, n, b)
			}
			i += 2
		}
	}
}

func TestEncodeViewNoOthers(t *testing.T) {
	got, err := EncodeView(geom.V(1, 0), geom.V(0, 0), nil, 4)
	if err != nil {
		t.Fatalf("EncodeView: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("EncodeView with no other agents = %v, want empty", got)
	}
}

func TestEncodeViewErrors(t *testing.T) {
	tests := []struct {
		name   string
		head   geom.Vec
		others [][]geom.Vec
		want   error
	}{
		{"degenerate heading", geom.V(0, 0), [][]geom.Vec{{geom.V(1, 1)}}, ErrDegenerateHeading},
		{"node count", geom.V(1, 0), [][]geom.Vec{{geom.V(1, 1), geom.V(2, 2)}}, ErrNodeCount},
		{"coincident node", geom.V(1, 0), [][]geom.Vec{{geom.V(0, 0)}}, ErrCoincidentNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeView(tt.head, geom.V(0, 0), tt.others, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("EncodeView error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	l := Layout{Fish: 3, Nodes: 4, Rays: 15}
	if got := l.NViews(); got != 16 {
		t.Errorf("NViews() = %d, want 16", got)
	}
	if got := l.DLoc(); got != 9 {
		t.Errorf("DLoc() = %d, want 9", got)
	}
	if got := l.Len(); got != 40 {
		t.Errorf("Len() = %d, want 40", got)
	}

	view := make([]float64, 16)
	rays := make([]float64, 15)
	loc := make([]float64, 9)
	for i := range view {
		view[i] = 1
	}
	for i := range rays {
		rays[i] = 2
	}
	for i := range loc {
		loc[i] = 3
	}

	obs, err := l.Build(nil, view, rays, loc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(obs) != l.Len() {
		t.Fatalf("len(obs) = %d, want %d", len(obs), l.Len())
	}
	for _, v := range l.View(obs) {
		if v != 1 {
			t.Fatalf("view block = %v", l.View(obs))
		}
	}
	for _, v := range l.RayBlock(obs) {
		if v != 2 {
			t.Fatalf("ray block = %v", l.RayBlock(obs))
		}
	}
	for _, v := range l.Loc(obs) {
		if v != 3 {
			t.Fatalf("loc block = %v", l.Loc(obs))
		}
	}

	if _, err := l.Build(nil, view, rays[:3], loc); !errors.Is(err, ErrBlockWidth) {
		t.Errorf("Build with short rays error = %v, want ErrBlockWidth", err)
	}
}
