// Package sim runs the closed perception-prediction-integration loop over a
// swarm of agents in a walled arena.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
	"github.com/pthm-cable/shoal/perception"
	"github.com/pthm-cable/shoal/raycast"
)

var (
	// ErrPredictor wraps every error returned by the predictor.
	ErrPredictor = errors.New("sim: predictor failed")
	// ErrPredictionWidth is returned when a prediction is not DLoc values wide.
	ErrPredictionWidth = errors.New("sim: prediction has wrong width")
	// ErrNonFinite is returned when a prediction contains NaN or Inf.
	ErrNonFinite = errors.New("sim: prediction is not finite")
	// ErrStart is returned by New for an inconsistent start state.
	ErrStart = errors.New("sim: invalid start state")
)

// Phase names for the simulation step.
const (
	PhaseSnapshot  = "snapshot"
	PhaseObserve   = "observe"
	PhasePredict   = "predict"
	PhaseIntegrate = "integrate"
	PhaseApply     = "apply"
	PhaseObservers = "observers"
)

// Predictor maps an observation vector to the next locomotion vector.
// Implementations used without PredictBatch must be safe for concurrent use.
type Predictor interface {
	Predict(obs []float64) ([]float64, error)
}

// BatchPredictor predicts all agents of a frame in one call. Row i of the
// result belongs to obs[i].
type BatchPredictor interface {
	Predictor
	PredictBatch(obs [][]float64) ([][]float64, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(obs []float64) ([]float64, error)

// Predict calls f(obs).
func (f PredictorFunc) Predict(obs []float64) ([]float64, error) { return f(obs) }

// PhaseTimer receives per-frame phase timing.
type PhaseTimer interface {
	StartTick()
	StartPhase(phase string)
	EndTick()
}

type nopTimer struct{}

func (nopTimer) StartTick()        {}
func (nopTimer) StartPhase(string) {}
func (nopTimer) EndTick()          {}

// Start is the initial state of every agent: its pose and the locomotion
// vector that produced it.
type Start struct {
	Poses      [][]geom.Vec
	Locomotion []locomotion.Vector
}

// Option configures a Sim.
type Option func(*Sim)

// WithLogger sets the logger used for progress output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sim) { s.logger = l }
}

// WithTimer sets the phase timer.
func WithTimer(t PhaseTimer) Option {
	return func(s *Sim) { s.timer = t }
}

// Sim holds the complete simulation state.
type Sim struct {
	layout    perception.Layout
	caster    *raycast.Caster
	predictor Predictor
	batch     BatchPredictor

	world *ecs.World

	// Entity mappers
	mapper *ecs.Map4[components.Agent, components.Pose, components.Orientation, components.Motion]
	filter *ecs.Filter4[components.Agent, components.Pose, components.Orientation, components.Motion]

	// Individual component mappers for lookups
	poseMap   *ecs.Map1[components.Pose]
	orientMap *ecs.Map1[components.Orientation]
	motionMap *ecs.Map1[components.Motion]

	parallel *parallelState
	history  History
	frame    int
	logEvery int

	logger *slog.Logger
	timer  PhaseTimer
}

// New creates a simulation from a validated config, a caster built over the
// arena walls, a predictor and the start state.
func New(cfg *config.Config, caster *raycast.Caster, predictor Predictor, start Start, opts ...Option) (*Sim, error) {
	if predictor == nil {
		return nil, errors.New("sim: nil predictor")
	}
	if caster == nil {
		return nil, errors.New("sim: nil caster")
	}
	layout := cfg.Layout()
	if caster.Rays() != layout.Rays {
		return nil, fmt.Errorf("sim: caster casts %d rays, config wants %d", caster.Rays(), layout.Rays)
	}
	if err := checkStart(start, layout); err != nil {
		return nil, err
	}

	world := ecs.NewWorld()
	s := &Sim{
		layout:    layout,
		caster:    caster,
		predictor: predictor,
		world:     world,
		mapper: ecs.NewMap4[
			components.Agent,
			components.Pose,
			components.Orientation,
			components.Motion,
		](world),
		filter: ecs.NewFilter4[
			components.Agent,
			components.Pose,
			components.Orientation,
			components.Motion,
		](world),
		poseMap:   ecs.NewMap1[components.Pose](world),
		orientMap: ecs.NewMap1[components.Orientation](world),
		motionMap: ecs.NewMap1[components.Motion](world),
		logEvery:  cfg.Simulation.LogEvery,
		logger:    slog.Default(),
		timer:     nopTimer{},
	}
	if b, ok := predictor.(BatchPredictor); ok {
		s.batch = b
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parallel = newParallelState(layout, cfg.Simulation.Workers, cfg.Simulation.ParallelThreshold)

	s.spawn(start)
	return s, nil
}

func checkStart(start Start, l perception.Layout) error {
	if len(start.Poses) != l.Fish {
		return fmt.Errorf("%w: %d poses for %d agents", ErrStart, len(start.Poses), l.Fish)
	}
	if len(start.Locomotion) != l.Fish {
		return fmt.Errorf("%w: %d locomotion vectors for %d agents", ErrStart, len(start.Locomotion), l.Fish)
	}
	for i, p := range start.Poses {
		if len(p) != l.Nodes {
			return fmt.Errorf("%w: agent %d has %d nodes, want %d", ErrStart, i, len(p), l.Nodes)
		}
		for _, n := range p {
			if !geom.Finite(n) {
				return fmt.Errorf("%w: agent %d has non-finite node %v", ErrStart, i, n)
			}
		}
		if _, err := locomotion.OrientationOf(p); err != nil {
			return fmt.Errorf("%w: agent %d: %w", ErrStart, i, err)
		}
		if got := len(start.Locomotion[i].Nodes); got != l.Nodes-1 {
			return fmt.Errorf("%w: agent %d locomotion places %d nodes, want %d", ErrStart, i, got, l.Nodes-1)
		}
	}
	return nil
}

// spawn creates one entity per agent and records frame 0.
func (s *Sim) spawn(start Start) {
	f := Frame{
		State:        WorldState{Poses: make([][]geom.Vec, s.layout.Fish)},
		Orientations: make([]locomotion.Orientation, s.layout.Fish),
		Locomotion:   make([][]float64, s.layout.Fish),
	}
	for i, p := range start.Poses {
		o, _ := locomotion.OrientationOf(p) // checked in checkStart
		nodes := append([]geom.Vec(nil), p...)
		loc := cloneVector(start.Locomotion[i])

		agent := components.Agent{Index: i}
		pose := components.Pose{Nodes: nodes}
		orient := components.OrientationFrom(o)
		motion := components.Motion{Last: loc}
		s.mapper.NewEntity(&agent, &pose, &orient, &motion)

		f.State.Poses[i] = nodes
		f.Orientations[i] = o
		f.Locomotion[i] = loc.Flatten(nil)
	}
	s.history.append(&f)
}

// Layout returns the observation layout.
func (s *Sim) Layout() perception.Layout { return s.layout }

// Frame returns the index of the last completed frame (0 before any step).
func (s *Sim) Frame() int { return s.frame }

// State returns the current world state.
func (s *Sim) State() WorldState { return s.history.Last().State }

// Orientations returns the current orientation of every agent.
func (s *Sim) Orientations() []locomotion.Orientation { return s.history.Last().Orientations }

// History returns the run history, including frame 0.
func (s *Sim) History() *History { return &s.history }

// Step advances the simulation by one frame. On error the frame is not
// applied and the state is unchanged.
func (s *Sim) Step() error {
	s.timer.StartTick()
	defer s.timer.EndTick()
	return s.step()
}

// Run advances the simulation by frames frames, calling every observer after
// each one. It stops at the first error or when ctx is done.
func (s *Sim) Run(ctx context.Context, frames int, observers ...FrameObserver) error {
	began := time.Now()
	for k := 0; k < frames; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.timer.StartTick()
		if err := s.step(); err != nil {
			s.timer.EndTick()
			return err
		}
		s.timer.StartPhase(PhaseObservers)
		f := s.history.Last()
		for _, obs := range observers {
			if err := obs(&f); err != nil {
				s.timer.EndTick()
				return fmt.Errorf("frame %d observer: %w", f.Index, err)
			}
		}
		s.timer.EndTick()

		if s.logEvery > 0 && s.frame%s.logEvery == 0 {
			s.logger.Info("progress",
				"frame", s.frame,
				"of", frames,
				"agents", s.layout.Fish,
				"elapsed", time.Since(began).Round(time.Millisecond),
			)
		}
	}
	return nil
}

func (s *Sim) step() error {
	p := s.parallel
	n := s.layout.Fish

	// Phase A: Build snapshots (single-threaded)
	s.timer.StartPhase(PhaseSnapshot)
	s.snapshot()

	// Phase B: observe, predict and integrate over read-only snapshots
	s.timer.StartPhase(PhaseObserve)
	if err := p.run(n, s.observeChunk); err != nil {
		return err
	}

	s.timer.StartPhase(PhasePredict)
	if s.batch != nil {
		preds, err := s.batch.PredictBatch(p.obs)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %w", ErrPredictor, s.frame+1, err)
		}
		if len(preds) != n {
			return fmt.Errorf("%w: frame %d: batch returned %d rows for %d agents", ErrPredictionWidth, s.frame+1, len(preds), n)
		}
		for i, out := range preds {
			if err := s.accept(i, out); err != nil {
				return err
			}
		}
	} else if err := p.run(n, s.predictChunk); err != nil {
		return err
	}

	s.timer.StartPhase(PhaseIntegrate)
	if err := p.run(n, s.integrateChunk); err != nil {
		return err
	}

	// Phase C: Apply intents (single-threaded, after every agent finished)
	s.timer.StartPhase(PhaseApply)
	s.applyIntents()
	return nil
}

// accept validates one prediction and stores it.
func (s *Sim) accept(agent int, out []float64) error {
	if len(out) != s.layout.DLoc() {
		return fmt.Errorf("%w: frame %d agent %d: got %d values, want %d",
			ErrPredictionWidth, s.frame+1, agent, len(out), s.layout.DLoc())
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: frame %d agent %d: %v", ErrNonFinite, s.frame+1, agent, out)
		}
	}
	s.parallel.preds[agent] = append(s.parallel.preds[agent][:0], out...)
	return nil
}
