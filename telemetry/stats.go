package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shoal/geom"
)

// WindowStats holds aggregated swarm statistics for a window of frames.
type WindowStats struct {
	WindowStart int `csv:"-"`
	WindowEnd   int `csv:"window_end"`
	Frames      int `csv:"frames"`
	Agents      int `csv:"agents"`

	// Inter-individual distance between agent centers, over all pairs
	IIDMean float64 `csv:"iid_mean"`
	IIDMin  float64 `csv:"iid_min"`
	IIDP10  float64 `csv:"iid_p10"`
	IIDP50  float64 `csv:"iid_p50"`
	IIDP90  float64 `csv:"iid_p90"`

	// Follow metric over all ordered pairs
	FollowMean float64 `csv:"follow_mean"`
	FollowP10  float64 `csv:"follow_p10"`
	FollowP50  float64 `csv:"follow_p50"`
	FollowP90  float64 `csv:"follow_p90"`

	// Locomotion
	SpeedMean   float64 `csv:"speed_mean"`
	SpeedP50    float64 `csv:"speed_p50"`
	SpeedMax    float64 `csv:"speed_max"`
	TurnAbsMean float64 `csv:"turn_abs_mean"`

	// Alignment of headings, 1 when every agent faces the same way
	Polarization float64 `csv:"polarization"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summarize calculates mean and percentiles of values.
func Summarize(values []float64) (mean, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0
	}
	mean = floats.Sum(values) / float64(n)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, p10, p50, p90
}

// IID is the inter-individual distance between two agent centers.
func IID(a, b geom.Vec) float64 {
	return geom.Distance(a, b)
}

// Follow projects the displacement of agent a over one frame onto the unit
// direction from a to b at the start of that frame. Positive values mean a
// moved toward b. ok is false when a and b coincided.
func Follow(aPrev, aNext, bPrev geom.Vec) (v float64, ok bool) {
	dir, err := geom.UnitVec(geom.Sub(bPrev, aPrev))
	if err != nil {
		return 0, false
	}
	return geom.Dot(geom.Sub(aNext, aPrev), dir), true
}

// Polarization is the length of the mean unit heading vector, in [0, 1].
func Polarization(headings []float64) float64 {
	if len(headings) == 0 {
		return 0
	}
	var sx, sy float64
	for _, h := range headings {
		sx += math.Cos(h)
		sy += math.Sin(h)
	}
	n := float64(len(headings))
	return math.Hypot(sx/n, sy/n)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStart),
		slog.Int("window_end", s.WindowEnd),
		slog.Int("frames", s.Frames),
		slog.Int("agents", s.Agents),
		slog.Float64("iid_mean", s.IIDMean),
		slog.Float64("iid_min", s.IIDMin),
		slog.Float64("iid_p10", s.IIDP10),
		slog.Float64("iid_p50", s.IIDP50),
		slog.Float64("iid_p90", s.IIDP90),
		slog.Float64("follow_mean", s.FollowMean),
		slog.Float64("follow_p10", s.FollowP10),
		slog.Float64("follow_p50", s.FollowP50),
		slog.Float64("follow_p90", s.FollowP90),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_max", s.SpeedMax),
		slog.Float64("turn_abs_mean", s.TurnAbsMean),
		slog.Float64("polarization", s.Polarization),
	)
}

// LogStats logs the window stats.
func (s WindowStats) LogStats(logger *slog.Logger) {
	logger.Info("stats",
		"window_end", s.WindowEnd,
		"agents", s.Agents,
		"iid_mean", s.IIDMean,
		"iid_min", s.IIDMin,
		"follow_mean", s.FollowMean,
		"speed_mean", s.SpeedMean,
		"turn_abs_mean", s.TurnAbsMean,
		"polarization", s.Polarization,
	)
}
