package telemetry

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/shoal/sim"
)

// phases lists the simulation phases in step order. Timings are kept in
// this order; phases not listed here only count toward the frame total.
var phases = [...]string{
	sim.PhaseSnapshot, sim.PhaseObserve, sim.PhasePredict,
	sim.PhaseIntegrate, sim.PhaseApply, sim.PhaseObservers,
}

const numPhases = len(phases)

// phaseSlot returns the position of phase in phases, or -1.
func phaseSlot(phase string) int {
	for i, p := range phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// PerfSample holds timing data for a single frame.
type PerfSample struct {
	FrameDuration time.Duration
	Phases        [numPhases]time.Duration
}

// PerfCollector tracks frame and phase timings over a rolling window.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int

	current    PerfSample
	frameStart time.Time
	phaseStart time.Time
	lastSlot   int

	now func() time.Time
}

// NewPerfCollector creates a collector averaging over the last windowSize
// frames. PerfCollector implements sim.PhaseTimer.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]PerfSample, windowSize),
		lastSlot:   -1,
		now:        time.Now,
	}
}

// StartTick begins timing a new simulation frame.
func (p *PerfCollector) StartTick() {
	p.frameStart = p.now()
	p.current = PerfSample{}
	p.lastSlot = -1
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := p.now()
	p.endPhase(now)
	p.phaseStart = now
	p.lastSlot = phaseSlot(phase)
}

// EndTick finishes timing the current frame and records the sample.
func (p *PerfCollector) EndTick() {
	now := p.now()
	p.endPhase(now)
	p.lastSlot = -1
	p.current.FrameDuration = now.Sub(p.frameStart)

	p.samples[p.writeIndex] = p.current
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

func (p *PerfCollector) endPhase(now time.Time) {
	if p.lastSlot >= 0 {
		p.current.Phases[p.lastSlot] += now.Sub(p.phaseStart)
	}
}

// PhaseTiming is the averaged cost of one phase.
type PhaseTiming struct {
	Phase string
	Avg   time.Duration
	Pct   float64 // share of the average frame, in percent
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgFrameDuration time.Duration
	MinFrameDuration time.Duration
	MaxFrameDuration time.Duration

	// Phases holds one entry per simulation phase, in step order.
	Phases [numPhases]PhaseTiming

	FramesPerSecond float64
}

// Pct returns the share of frame time spent in phase, or 0 for an unknown
// phase.
func (s PerfStats) Pct(phase string) float64 {
	if i := phaseSlot(phase); i >= 0 {
		return s.Phases[i].Pct
	}
	return 0
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	var stats PerfStats
	for i, phase := range phases {
		stats.Phases[i].Phase = phase
	}
	if p.sampleCount == 0 {
		return stats
	}

	var total time.Duration
	var sums [numPhases]time.Duration
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.FrameDuration
		if i == 0 || s.FrameDuration < stats.MinFrameDuration {
			stats.MinFrameDuration = s.FrameDuration
		}
		if s.FrameDuration > stats.MaxFrameDuration {
			stats.MaxFrameDuration = s.FrameDuration
		}
		for k, d := range s.Phases {
			sums[k] += d
		}
	}

	n := time.Duration(p.sampleCount)
	stats.AvgFrameDuration = total / n
	for k := range sums {
		stats.Phases[k].Avg = sums[k] / n
		if total > 0 {
			stats.Phases[k].Pct = float64(sums[k]) / float64(total) * 100
		}
	}
	if stats.AvgFrameDuration > 0 {
		stats.FramesPerSecond = float64(time.Second) / float64(stats.AvgFrameDuration)
	}
	return stats
}

// LogStats logs performance statistics, skipping phases below 0.1%.
func (s PerfStats) LogStats(logger *slog.Logger) {
	attrs := []any{
		"avg_frame_us", s.AvgFrameDuration.Microseconds(),
		"min_frame_us", s.MinFrameDuration.Microseconds(),
		"max_frame_us", s.MaxFrameDuration.Microseconds(),
		"frames_per_sec", int(s.FramesPerSecond),
	}
	for _, ph := range s.Phases {
		if ph.Pct > 0.1 {
			attrs = append(attrs, ph.Phase+"_pct", float64(int(ph.Pct*10))/10)
		}
	}
	logger.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_frame_us", s.AvgFrameDuration.Microseconds()),
		slog.Int64("min_frame_us", s.MinFrameDuration.Microseconds()),
		slog.Int64("max_frame_us", s.MaxFrameDuration.Microseconds()),
		slog.Float64("frames_per_sec", s.FramesPerSecond),
	}
	for _, ph := range s.Phases {
		attrs = append(attrs, slog.Float64(ph.Phase+"_pct", ph.Pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd    int     `csv:"window_end"`
	AvgFrameUS   int64   `csv:"avg_frame_us"`
	MinFrameUS   int64   `csv:"min_frame_us"`
	MaxFrameUS   int64   `csv:"max_frame_us"`
	FramesPerSec float64 `csv:"frames_per_sec"`
	SnapshotPct  float64 `csv:"snapshot_pct"`
	ObservePct   float64 `csv:"observe_pct"`
	PredictPct   float64 `csv:"predict_pct"`
	IntegratePct float64 `csv:"integrate_pct"`
	ApplyPct     float64 `csv:"apply_pct"`
	ObserversPct float64 `csv:"observers_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgFrameUS:   s.AvgFrameDuration.Microseconds(),
		MinFrameUS:   s.MinFrameDuration.Microseconds(),
		MaxFrameUS:   s.MaxFrameDuration.Microseconds(),
		FramesPerSec: s.FramesPerSecond,
		SnapshotPct:  s.Pct(sim.PhaseSnapshot),
		ObservePct:   s.Pct(sim.PhaseObserve),
		PredictPct:   s.Pct(sim.PhasePredict),
		IntegratePct: s.Pct(sim.PhaseIntegrate),
		ApplyPct:     s.Pct(sim.PhaseApply),
		ObserversPct: s.Pct(sim.PhaseObservers),
	}
}
