package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/shoal/arena"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/neural"
	"github.com/pthm-cable/shoal/sim"
	"github.com/pthm-cable/shoal/telemetry"
	"github.com/pthm-cable/shoal/tracks"
)

// Start sources recorded in run.yaml.
const (
	sourceLineup   = "lineup"
	sourceTracks   = "tracks"
	sourceSnapshot = "snapshot"
)

// lineupRadius is the lineup circle radius as a fraction of the smaller
// arena side.
const lineupRadius = 0.3

// wallPoints reads the wall points from the configured source. An image
// takes precedence over a points file, which takes precedence over inline
// points.
func wallPoints(cfg config.ArenaConfig) ([]geom.Vec, error) {
	switch {
	case cfg.Image != "":
		return arena.LoadImagePoints(cfg.Image, uint8(cfg.RedMin), cfg.ClusterDistance)
	case cfg.PointsFile != "":
		return arena.LoadPointsCSV(cfg.PointsFile)
	}
	points := make([]geom.Vec, len(cfg.Points))
	for i, p := range cfg.Points {
		points[i] = geom.V(p.X, p.Y)
	}
	return points, nil
}

func buildWalls(cfg config.ArenaConfig) (arena.Walls, error) {
	points, err := wallPoints(cfg)
	if err != nil {
		return nil, err
	}
	return arena.BuildWalls(points)
}

// buildPredictor creates the configured predictor. An FFNN without a weights
// file gets seeded random weights shaped for the observation layout.
func buildPredictor(cfg *config.Config) (sim.Predictor, error) {
	switch cfg.Predictor.Kind {
	case config.PredictorHold:
		return neural.Hold{Layout: cfg.Layout()}, nil
	case config.PredictorFFNN:
		if cfg.Predictor.Weights != "" {
			nn, err := neural.LoadFFNN(cfg.Predictor.Weights)
			if err != nil {
				return nil, err
			}
			if nn.Inputs() != cfg.Derived.DObs || nn.Outputs() != cfg.Derived.DLoc {
				return nil, fmt.Errorf("%w: network maps %d to %d values, layout needs %d to %d",
					neural.ErrShape, nn.Inputs(), nn.Outputs(), cfg.Derived.DObs, cfg.Derived.DLoc)
			}
			return nn, nil
		}
		sizes := []int{cfg.Derived.DObs}
		sizes = append(sizes, cfg.Predictor.HiddenLayers...)
		sizes = append(sizes, cfg.Derived.DLoc)
		rng := rand.New(rand.NewSource(int64(cfg.Predictor.Seed)))
		return neural.NewFFNN(rng, sizes)
	}
	return nil, fmt.Errorf("%w: predictor.kind = %q", config.ErrInvalid, cfg.Predictor.Kind)
}

// buildStart loads the start state from a snapshot or tracks file, or lines
// the agents up on a circle around the arena center.
func buildStart(cfg *config.Config, opts options, walls arena.Walls) (sim.Start, string, error) {
	nfish, nnodes := cfg.Swarm.Fish, len(cfg.Swarm.Nodes)

	switch {
	case opts.resume != "":
		snap, err := telemetry.LoadSnapshot(opts.resume)
		if err != nil {
			return sim.Start{}, "", err
		}
		if len(snap.Agents) != nfish || len(snap.Nodes) != nnodes {
			return sim.Start{}, "", fmt.Errorf("snapshot has %d agents with %d nodes, config wants %d with %d",
				len(snap.Agents), len(snap.Nodes), nfish, nnodes)
		}
		start, err := snap.Start()
		return start, sourceSnapshot, err

	case opts.startPath != "":
		start, err := tracks.LoadStart(opts.startPath, opts.startLoc, opts.startFrame, nfish, nnodes)
		return start, sourceTracks, err
	}

	lo, hi := walls.Bounds()
	center := geom.Scale(0.5, geom.Add(lo, hi))
	radius := lineupRadius * math.Min(hi.X-lo.X, hi.Y-lo.Y)
	start, err := tracks.Lineup(center, radius, nfish, nnodes, cfg.Swarm.BodyLength, cfg.Swarm.Speed)
	return start, sourceLineup, err
}
