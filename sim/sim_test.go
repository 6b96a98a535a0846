package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/shoal/arena"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
	"github.com/pthm-cable/shoal/neural"
	"github.com/pthm-cable/shoal/raycast"
)

const eps = 1e-9

// testConfig returns a config for fish two-node agents with a single
// forward ray.
func testConfig(t *testing.T, fish int) *config.Config {
	t.Helper()
	cfg := config.MustDefaults()
	cfg.Swarm.Fish = fish
	cfg.Swarm.Nodes = []string{"head", "center"}
	cfg.Vision.Rays = 1
	cfg.Vision.FOV = 0
	cfg.Simulation.LogEvery = 0
	if err := cfg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return cfg
}

func testCaster(t *testing.T, rays int, fov float64) *raycast.Caster {
	t.Helper()
	walls, err := arena.BuildWalls([]geom.Vec{geom.V(0, 0), geom.V(0, 10), geom.V(10, 10), geom.V(10, 0)})
	if err != nil {
		t.Fatalf("BuildWalls: %v", err)
	}
	c, err := raycast.New(walls, rays, fov, 709)
	if err != nil {
		t.Fatalf("raycast.New: %v", err)
	}
	return c
}

// lineup places agent i at center (2, 2+5i) facing +x, moving 1 per frame.
func lineup(fish int) Start {
	var s Start
	for i := 0; i < fish; i++ {
		y := 2 + 5*float64(i)
		s.Poses = append(s.Poses, []geom.Vec{geom.V(3, y), geom.V(2, y)})
		s.Locomotion = append(s.Locomotion, locomotion.Vector{
			Step:  locomotion.Step{Forward: 1},
			Nodes: []locomotion.Placement{{Length: 1}},
		})
	}
	return s
}

func constant(out ...float64) PredictorFunc {
	return func([]float64) ([]float64, error) {
		return append([]float64(nil), out...), nil
	}
}

func TestStepFixedPredictor(t *testing.T) {
	cfg := testConfig(t, 2)
	s, err := New(cfg, testCaster(t, 1, 0), constant(1, 0, 0, 1, 0), lineup(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if s.Frame() != 3 {
		t.Errorf("Frame() = %d, want 3", s.Frame())
	}
	if got := s.History().Len(); got != 4 {
		t.Errorf("History().Len() = %d, want 4", got)
	}
	if traj := s.History().Trajectory(0); len(traj) != 4 || traj[3].X != 5 {
		t.Errorf("Trajectory(0) = %v, want 4 centers ending at x 5", traj)
	}

	for i, o := range s.Orientations() {
		want := geom.V(5, 2+5*float64(i))
		if math.Abs(o.Center.X-want.X) > eps || math.Abs(o.Center.Y-want.Y) > eps {
			t.Errorf("agent %d center = %v, want %v", i, o.Center, want)
		}
		if o.Heading != 0 {
			t.Errorf("agent %d heading = %v, want 0", i, o.Heading)
		}
		head := s.State().NodesOf(i)[0]
		if math.Abs(head.X-(want.X+1)) > eps || math.Abs(head.Y-want.Y) > eps {
			t.Errorf("agent %d head = %v, want one unit ahead of center", i, head)
		}
	}
}

func TestObservationLayout(t *testing.T) {
	cfg := testConfig(t, 2)
	var seen [][]float64
	record := PredictorFunc(func(obs []float64) ([]float64, error) {
		seen = append(seen, append([]float64(nil), obs...))
		return []float64{1, 0, 0, 1, 0}, nil
	})
	s, err := New(cfg, testCaster(t, 1, 0), record, lineup(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("predictor called %d times, want 2", len(seen))
	}

	// Agent 0 at (2,2) facing +x sees agent 1's head at (3,7) and center at (2,7).
	obs := seen[0]
	l := s.Layout()
	if len(obs) != l.Len() {
		t.Fatalf("len(obs) = %d, want %d", len(obs), l.Len())
	}
	want := []float64{
		math.Hypot(1, 5), math.Atan2(5, 1),
		5, math.Pi / 2,
		8, // wall at x=10
		1, 0, 0, 1, 0,
	}
	for i := range want {
		if math.Abs(obs[i]-want[i]) > 1e-9 {
			t.Errorf("obs[%d] = %v, want %v", i, obs[i], want[i])
		}
	}
}

func TestPredictorErrorPropagates(t *testing.T) {
	cfg := testConfig(t, 2)
	boom := errors.New("model unavailable")
	failing := PredictorFunc(func([]float64) ([]float64, error) { return nil, boom })

	s, err := New(cfg, testCaster(t, 1, 0), failing, lineup(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.Step()
	if !errors.Is(err, ErrPredictor) || !errors.Is(err, boom) {
		t.Errorf("Step error = %v, want ErrPredictor wrapping %v", err, boom)
	}
	if s.Frame() != 0 || s.History().Len() != 1 {
		t.Errorf("failed step advanced the simulation to frame %d", s.Frame())
	}
}

func TestPredictionValidation(t *testing.T) {
	tests := []struct {
		name string
		out  []float64
		want error
	}{
		{"too short", []float64{1, 0, 0}, ErrPredictionWidth},
		{"too long", []float64{1, 0, 0, 1, 0, 0}, ErrPredictionWidth},
		{"nan", []float64{math.NaN(), 0, 0, 1, 0}, ErrNonFinite},
		{"inf", []float64{1, 0, math.Inf(1), 1, 0}, ErrNonFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(testConfig(t, 2), testCaster(t, 1, 0), constant(tt.out...), lineup(2))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if err := s.Step(); !errors.Is(err, tt.want) {
				t.Errorf("Step error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBatchMatchesPerAgent(t *testing.T) {
	run := func(p Predictor, workers, threshold int) *History {
		cfg := testConfig(t, 3)
		cfg.Vision.Rays = 5
		cfg.Vision.FOV = 120
		cfg.Simulation.Workers = workers
		cfg.Simulation.ParallelThreshold = threshold
		if err := cfg.Refresh(); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		s, err := New(cfg, testCaster(t, 5, 120), p, lineup(3))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := s.Run(context.Background(), 4); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return s.History()
	}

	hold := neural.Hold{Layout: testConfig(t, 3).Layout()}
	hold.Layout.Rays = 5

	batched := run(hold, 1, 64)
	perAgent := run(PredictorFunc(hold.Predict), 3, 1)

	if batched.Len() != perAgent.Len() {
		t.Fatalf("history lengths differ: %d vs %d", batched.Len(), perAgent.Len())
	}
	for f := 0; f < batched.Len(); f++ {
		a, b := batched.At(f), perAgent.At(f)
		for i := range a.State.Poses {
			for n := range a.State.Poses[i] {
				if a.State.Poses[i][n] != b.State.Poses[i][n] {
					t.Errorf("frame %d agent %d node %d: %v vs %v", f, i, n, a.State.Poses[i][n], b.State.Poses[i][n])
				}
			}
		}
	}

	// Hold repeats forward 1: every agent advanced 4 units.
	last := batched.Last()
	for i, o := range last.Orientations {
		if math.Abs(o.Center.X-6) > eps {
			t.Errorf("agent %d center x = %v, want 6", i, o.Center.X)
		}
	}
}

type countingTimer struct {
	ticks, ends int
	phases      map[string]int
}

func (c *countingTimer) StartTick()          { c.ticks++ }
func (c *countingTimer) StartPhase(p string) { c.phases[p]++ }
func (c *countingTimer) EndTick()            { c.ends++ }

func TestRunObservers(t *testing.T) {
	timer := &countingTimer{phases: map[string]int{}}
	s, err := New(testConfig(t, 2), testCaster(t, 1, 0), constant(1, 0, 0, 1, 0), lineup(2), WithTimer(timer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var frames []int
	observer := func(f *Frame) error {
		frames = append(frames, f.Index)
		if len(f.Locomotion) != 2 || len(f.Locomotion[0]) != 5 {
			t.Errorf("frame %d locomotion shape = %d", f.Index, len(f.Locomotion))
		}
		return nil
	}
	if err := s.Run(context.Background(), 5, observer); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, f := range frames {
		if f != i+1 {
			t.Errorf("observer frame %d = %d, want %d", i, f, i+1)
		}
	}
	if len(frames) != 5 {
		t.Errorf("observer called %d times, want 5", len(frames))
	}
	if timer.ticks != 5 || timer.ends != 5 || timer.phases[PhasePredict] != 5 {
		t.Errorf("timer = %+v, want 5 ticks with a predict phase each", timer)
	}

	stop := errors.New("stop")
	err = s.Run(context.Background(), 5, func(*Frame) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("Run error = %v, want %v", err, stop)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, 5); !errors.Is(err, context.Canceled) {
		t.Errorf("Run with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestNewValidatesStart(t *testing.T) {
	cfg := testConfig(t, 2)
	caster := testCaster(t, 1, 0)

	short := lineup(1)
	if _, err := New(cfg, caster, constant(), short); !errors.Is(err, ErrStart) {
		t.Errorf("New with one pose error = %v, want ErrStart", err)
	}

	degenerate := lineup(2)
	degenerate.Poses[1][0] = degenerate.Poses[1][1]
	if _, err := New(cfg, caster, constant(), degenerate); !errors.Is(err, ErrStart) {
		t.Errorf("New with degenerate pose error = %v, want ErrStart", err)
	}

	if _, err := New(cfg, testCaster(t, 3, 90), constant(), lineup(2)); err == nil {
		t.Error("New accepted a caster with the wrong ray count")
	}
}

func TestWorldStateOthers(t *testing.T) {
	w := WorldState{Poses: [][]geom.Vec{{geom.V(0, 0)}, {geom.V(1, 1)}, {geom.V(2, 2)}}}
	others := w.OthersExcluding(1)
	if len(others) != 2 || others[0][0] != geom.V(0, 0) || others[1][0] != geom.V(2, 2) {
		t.Errorf("OthersExcluding(1) = %v", others)
	}
	if got := w.NodesOf(2); got[0] != geom.V(2, 2) {
		t.Errorf("NodesOf(2) = %v", got)
	}

	c := w.Clone()
	c.Poses[0][0] = geom.V(9, 9)
	if w.Poses[0][0] != geom.V(0, 0) {
		t.Error("Clone shares node slices with the original")
	}
}
