package telemetry

import (
	"math"

	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/sim"
)

// LifetimeStats tracks one agent over a whole run.
type LifetimeStats struct {
	Agent      int `csv:"agent"`
	FirstFrame int `csv:"first_frame"`
	LastFrame  int `csv:"last_frame"`

	// Movement
	PathLength      float64 `csv:"path_length"`
	NetDisplacement float64 `csv:"net_displacement"`
	MaxSpeed        float64 `csv:"max_speed"`
	TotalTurn       float64 `csv:"total_turn"` // sum of |turn|

	// Nearest neighbour distance between centers
	NearestMin  float64 `csv:"nearest_min"`
	NearestMean float64 `csv:"nearest_mean"`

	start       geom.Vec `csv:"-"`
	last        geom.Vec `csv:"-"`
	nearestSum  float64  `csv:"-"`
	nearestSeen int      `csv:"-"`
}

// LifetimeTracker manages per-agent run statistics.
type LifetimeTracker struct {
	stats []*LifetimeStats
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{}
}

// Record folds frame f into every agent's stats. The first recorded frame
// sets the starting positions.
func (lt *LifetimeTracker) Record(f *sim.Frame) {
	first := lt.stats == nil
	if first {
		lt.stats = make([]*LifetimeStats, len(f.Orientations))
		for i, o := range f.Orientations {
			lt.stats[i] = &LifetimeStats{
				Agent:      i,
				FirstFrame: f.Index,
				NearestMin: math.Inf(1),
				start:      o.Center,
				last:       o.Center,
			}
		}
	}

	for i, o := range f.Orientations {
		s := lt.stats[i]
		s.LastFrame = f.Index
		if !first {
			step := geom.Distance(s.last, o.Center)
			s.PathLength += step
			s.MaxSpeed = math.Max(s.MaxSpeed, step)
			if i < len(f.Locomotion) && len(f.Locomotion[i]) >= 3 {
				s.TotalTurn += math.Abs(f.Locomotion[i][2])
			}
		}
		s.last = o.Center
		s.NetDisplacement = geom.Distance(s.start, o.Center)

		nearest := math.Inf(1)
		for j, other := range f.Orientations {
			if j != i {
				nearest = math.Min(nearest, IID(o.Center, other.Center))
			}
		}
		if !math.IsInf(nearest, 1) {
			s.NearestMin = math.Min(s.NearestMin, nearest)
			s.nearestSum += nearest
			s.nearestSeen++
			s.NearestMean = s.nearestSum / float64(s.nearestSeen)
		}
	}
}

// Get returns the stats of one agent, or nil if not tracked.
func (lt *LifetimeTracker) Get(agent int) *LifetimeStats {
	if agent < 0 || agent >= len(lt.stats) {
		return nil
	}
	return lt.stats[agent]
}

// All returns a copy of every agent's stats in agent order. Agents that
// never had a neighbour report a nearest distance of 0.
func (lt *LifetimeTracker) All() []LifetimeStats {
	out := make([]LifetimeStats, len(lt.stats))
	for i, s := range lt.stats {
		out[i] = *s
		if math.IsInf(out[i].NearestMin, 1) {
			out[i].NearestMin = 0
		}
	}
	return out
}

// Count returns the number of tracked agents.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}
