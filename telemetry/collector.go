// Package telemetry records swarm statistics, timing, bookmarks and run output.
package telemetry

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/sim"
)

// Collector accumulates per-frame swarm measurements within windows of
// frames and produces WindowStats.
type Collector struct {
	windowFrames int

	// Current window tracking
	windowStart int
	frames      int
	agents      int

	prev []geom.Vec // agent centers of the last recorded frame

	iids     []float64
	follows  []float64
	speeds   []float64
	turns    []float64
	polarSum float64
}

// NewCollector creates a stats collector flushing every windowFrames frames.
func NewCollector(windowFrames int) *Collector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &Collector{windowFrames: windowFrames}
}

// Record adds one frame. Speed, turn and follow need a previous frame, so
// the first recorded frame contributes distances and polarization only.
func (c *Collector) Record(f *sim.Frame) {
	n := len(f.Orientations)
	if c.frames == 0 && c.prev == nil {
		c.windowStart = f.Index
	}
	c.frames++
	c.agents = n

	headings := make([]float64, n)
	for i, o := range f.Orientations {
		headings[i] = o.Heading
		for j := i + 1; j < n; j++ {
			c.iids = append(c.iids, IID(o.Center, f.Orientations[j].Center))
		}
	}
	c.polarSum += Polarization(headings)

	if len(c.prev) == n {
		for i, loc := range f.Locomotion {
			if len(loc) >= 3 {
				c.speeds = append(c.speeds, math.Abs(loc[0]))
				c.turns = append(c.turns, math.Abs(loc[2]))
			}
			for j := range f.Orientations {
				if i == j {
					continue
				}
				if v, ok := Follow(c.prev[i], f.Orientations[i].Center, c.prev[j]); ok {
					c.follows = append(c.follows, v)
				}
			}
		}
	}

	c.prev = c.prev[:0]
	for _, o := range f.Orientations {
		c.prev = append(c.prev, o.Center)
	}
}

// ShouldFlush returns true if the window starting at the last flush is full.
func (c *Collector) ShouldFlush(frame int) bool {
	return frame-c.windowStart >= c.windowFrames
}

// Flush produces a WindowStats ending at frame and resets the window. The
// previous centers are kept so the next window continues the follow series.
func (c *Collector) Flush(frame int) WindowStats {
	stats := WindowStats{
		WindowStart: c.windowStart,
		WindowEnd:   frame,
		Frames:      c.frames,
		Agents:      c.agents,
	}

	stats.IIDMean, stats.IIDP10, stats.IIDP50, stats.IIDP90 = Summarize(c.iids)
	if len(c.iids) > 0 {
		stats.IIDMin = floats.Min(c.iids)
	}
	stats.FollowMean, stats.FollowP10, stats.FollowP50, stats.FollowP90 = Summarize(c.follows)

	stats.SpeedMean, _, stats.SpeedP50, _ = Summarize(c.speeds)
	if len(c.speeds) > 0 {
		stats.SpeedMax = floats.Max(c.speeds)
	}
	if len(c.turns) > 0 {
		stats.TurnAbsMean = floats.Sum(c.turns) / float64(len(c.turns))
	}
	if c.frames > 0 {
		stats.Polarization = c.polarSum / float64(c.frames)
	}

	// Reset for next window
	c.windowStart = frame
	c.frames = 0
	c.iids = c.iids[:0]
	c.follows = c.follows[:0]
	c.speeds = c.speeds[:0]
	c.turns = c.turns[:0]
	c.polarSum = 0

	return stats
}

// WindowFrames returns the number of frames per window.
func (c *Collector) WindowFrames() int {
	return c.windowFrames
}
