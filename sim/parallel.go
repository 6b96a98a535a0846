package sim

import (
	"fmt"
	"runtime"

	"github.com/mlange-42/ark/ecs"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
	"github.com/pthm-cable/shoal/perception"
	"github.com/pthm-cable/shoal/raycast"
)

// agentSnapshot captures read-only state for parallel processing.
type agentSnapshot struct {
	Entity  ecs.Entity
	Orient  locomotion.Orientation
	PrevLoc []float64
}

// intent captures computed outputs to apply after the parallel phase.
type intent struct {
	Orient locomotion.Orientation
	Loc    locomotion.Vector
	Pose   []geom.Vec
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	others [][]geom.Vec
	view   []float64
	rays   []float64
	cast   raycast.Scratch
}

// parallelState holds resources for the per-agent phases. Slices are
// indexed by agent.
type parallelState struct {
	snapshots []agentSnapshot
	state     WorldState
	obs       [][]float64
	preds     [][]float64
	intents   []intent
	scratches []workerScratch

	numWorkers int
	threshold  int
}

func newParallelState(l perception.Layout, workers, threshold int) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > l.Fish {
		workers = max(l.Fish, 1)
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].others = make([][]geom.Vec, 0, l.Fish)
		scratches[i].view = make([]float64, 0, l.NViews())
		scratches[i].rays = make([]float64, 0, l.Rays)
	}
	p := &parallelState{
		snapshots:  make([]agentSnapshot, l.Fish),
		state:      WorldState{Poses: make([][]geom.Vec, l.Fish)},
		obs:        make([][]float64, l.Fish),
		preds:      make([][]float64, l.Fish),
		intents:    make([]intent, l.Fish),
		scratches:  scratches,
		numWorkers: workers,
		threshold:  threshold,
	}
	for i := range p.obs {
		p.obs[i] = make([]float64, 0, l.Len())
		p.preds[i] = make([]float64, 0, l.DLoc())
		p.snapshots[i].PrevLoc = make([]float64, 0, l.DLoc())
		p.intents[i].Pose = make([]geom.Vec, 0, l.Nodes)
	}
	return p
}

// run splits agents [0, n) into one chunk per worker. Below the threshold
// everything runs inline on the first scratch.
func (p *parallelState) run(n int, fn func(start, end int, scratch *workerScratch) error) error {
	if n == 0 {
		return nil
	}
	if n < p.threshold || p.numWorkers == 1 {
		return fn(0, n, &p.scratches[0])
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	var g errgroup.Group
	g.SetLimit(p.numWorkers)
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			break
		}
		scratch := &p.scratches[w]
		g.Go(func() error {
			return fn(start, end, scratch)
		})
	}
	return g.Wait()
}

// snapshot copies the live components into the per-agent snapshots.
func (s *Sim) snapshot() {
	p := s.parallel
	p.state.Frame = s.frame

	query := s.filter.Query()
	for query.Next() {
		agent, pose, orient, motion := query.Get()
		i := agent.Index
		snap := &p.snapshots[i]
		snap.Entity = query.Entity()
		snap.Orient = orient.Value()
		snap.PrevLoc = motion.Last.Flatten(snap.PrevLoc)
		p.state.Poses[i] = pose.Nodes
	}
}

func (s *Sim) observeChunk(start, end int, scratch *workerScratch) error {
	p := s.parallel
	for i := start; i < end; i++ {
		nodes := p.state.NodesOf(i)
		head, center := nodes[0], nodes[1]

		scratch.others = p.state.OthersInto(scratch.others, i)
		view, err := perception.EncodeViewInto(scratch.view, head, center, scratch.others, s.layout.Nodes)
		if err != nil {
			return fmt.Errorf("frame %d agent %d: encoding view: %w", s.frame+1, i, err)
		}
		scratch.view = view

		rays, err := s.caster.CastInto(scratch.rays, &scratch.cast, center, geom.Sub(head, center))
		if err != nil {
			return fmt.Errorf("frame %d agent %d: casting rays: %w", s.frame+1, i, err)
		}
		scratch.rays = rays

		obs, err := s.layout.Build(p.obs[i], view, rays, p.snapshots[i].PrevLoc)
		if err != nil {
			return fmt.Errorf("frame %d agent %d: %w", s.frame+1, i, err)
		}
		p.obs[i] = obs
	}
	return nil
}

func (s *Sim) predictChunk(start, end int, _ *workerScratch) error {
	p := s.parallel
	for i := start; i < end; i++ {
		out, err := s.predictor.Predict(p.obs[i])
		if err != nil {
			return fmt.Errorf("%w: frame %d agent %d: %w", ErrPredictor, s.frame+1, i, err)
		}
		if err := s.accept(i, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sim) integrateChunk(start, end int, _ *workerScratch) error {
	p := s.parallel
	for i := start; i < end; i++ {
		v, err := locomotion.Unflatten(p.preds[i], s.layout.Nodes)
		if err != nil {
			return fmt.Errorf("frame %d agent %d: %w", s.frame+1, i, err)
		}
		in := &p.intents[i]
		in.Orient = locomotion.ToCartesian(p.snapshots[i].Orient, v)
		in.Loc = v
		in.Pose, err = locomotion.PlaceInto(in.Pose, in.Orient, v, s.layout.Nodes)
		if err != nil {
			return fmt.Errorf("frame %d agent %d: %w", s.frame+1, i, err)
		}
		for _, n := range in.Pose {
			if !geom.Finite(n) {
				return fmt.Errorf("%w: frame %d agent %d: node %v", ErrNonFinite, s.frame+1, i, n)
			}
		}
	}
	return nil
}

// applyIntents writes computed results back to ECS components and records
// the frame.
func (s *Sim) applyIntents() {
	p := s.parallel
	s.frame++

	f := Frame{
		Index:        s.frame,
		State:        WorldState{Frame: s.frame, Poses: make([][]geom.Vec, len(p.intents))},
		Orientations: make([]locomotion.Orientation, len(p.intents)),
		Locomotion:   make([][]float64, len(p.intents)),
	}
	for i, snap := range p.snapshots {
		in := &p.intents[i]

		// Fresh slices: history keeps the previous ones.
		nodes := append([]geom.Vec(nil), in.Pose...)

		pose := s.poseMap.Get(snap.Entity)
		orient := s.orientMap.Get(snap.Entity)
		motion := s.motionMap.Get(snap.Entity)
		pose.Nodes = nodes
		orient.Center, orient.Heading = in.Orient.Center, in.Orient.Heading
		motion.Last = in.Loc

		f.State.Poses[i] = nodes
		f.Orientations[i] = in.Orient
		f.Locomotion[i] = append([]float64(nil), p.preds[i]...)
	}
	s.history.append(&f)
}

func cloneVector(v locomotion.Vector) locomotion.Vector {
	v.Nodes = append([]locomotion.Placement(nil), v.Nodes...)
	return v
}
