package telemetry

import (
	"testing"
	"time"

	"github.com/pthm-cable/shoal/sim"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(sim.PhaseObserve)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(sim.PhasePredict)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.AvgFrameDuration <= 0 {
		t.Error("expected positive average frame duration")
	}
	if stats.Pct(sim.PhaseObserve) <= 0 {
		t.Error("expected observe phase to be tracked")
	}
	if stats.Pct(sim.PhasePredict) <= 0 {
		t.Error("expected predict phase to be tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(sim.PhaseSnapshot)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.AvgFrameDuration <= 0 {
		t.Error("expected positive average frame duration after window filled")
	}
	if stats.FramesPerSecond <= 0 {
		t.Error("expected positive frames per second")
	}
	if stats.MinFrameDuration > stats.MaxFrameDuration {
		t.Errorf("min %v > max %v", stats.MinFrameDuration, stats.MaxFrameDuration)
	}
}

// fakeClock is a manually advanced clock for PerfCollector.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPerfCollector_PhasePercentages(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pc := NewPerfCollector(10)
	pc.now = clock.now

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(sim.PhaseApply)
		clock.advance(100 * time.Microsecond)
		pc.StartPhase(sim.PhaseIntegrate)
		clock.advance(300 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.AvgFrameDuration != 400*time.Microsecond {
		t.Errorf("AvgFrameDuration = %v, want 400µs", stats.AvgFrameDuration)
	}
	if stats.FramesPerSecond != 2500 {
		t.Errorf("FramesPerSecond = %v, want 2500", stats.FramesPerSecond)
	}
	if got := stats.Pct(sim.PhaseApply); got != 25 {
		t.Errorf("Pct(apply) = %v, want 25", got)
	}
	if got := stats.Pct(sim.PhaseIntegrate); got != 75 {
		t.Errorf("Pct(integrate) = %v, want 75", got)
	}
	if got := stats.Pct(sim.PhasePredict); got != 0 {
		t.Errorf("Pct(predict) = %v, want 0", got)
	}
	if got := stats.Pct("unknown"); got != 0 {
		t.Errorf("Pct(unknown) = %v, want 0", got)
	}

	// Phases are reported in step order.
	for i, ph := range stats.Phases {
		if ph.Phase != phases[i] {
			t.Errorf("Phases[%d] = %q, want %q", i, ph.Phase, phases[i])
		}
	}
	if stats.Phases[phaseSlot(sim.PhaseIntegrate)].Avg != 300*time.Microsecond {
		t.Errorf("integrate avg = %v, want 300µs", stats.Phases[phaseSlot(sim.PhaseIntegrate)].Avg)
	}

	row := stats.ToCSV(42)
	if row.WindowEnd != 42 || row.IntegratePct != 75 || row.ApplyPct != 25 || row.AvgFrameUS != 400 {
		t.Errorf("ToCSV(42) = %+v", row)
	}
}

func TestPerfCollector_MinMaxWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pc := NewPerfCollector(3)
	pc.now = clock.now

	// Five frames of 1..5 ms; the window keeps the last three.
	for i := 1; i <= 5; i++ {
		pc.StartTick()
		pc.StartPhase(sim.PhaseObserve)
		clock.advance(time.Duration(i) * time.Millisecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.MinFrameDuration != 3*time.Millisecond || stats.MaxFrameDuration != 5*time.Millisecond {
		t.Errorf("min, max = %v, %v, want 3ms, 5ms", stats.MinFrameDuration, stats.MaxFrameDuration)
	}
	if stats.AvgFrameDuration != 4*time.Millisecond {
		t.Errorf("AvgFrameDuration = %v, want 4ms", stats.AvgFrameDuration)
	}
	if got := stats.Pct(sim.PhaseObserve); got != 100 {
		t.Errorf("Pct(observe) = %v, want 100", got)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	if stats.AvgFrameDuration != 0 {
		t.Error("expected zero avg frame duration for empty collector")
	}
	for i, ph := range stats.Phases {
		if ph.Phase != phases[i] || ph.Avg != 0 || ph.Pct != 0 {
			t.Errorf("Phases[%d] = %+v, want empty %q", i, ph, phases[i])
		}
	}
}

func TestPerfCollector_IsPhaseTimer(t *testing.T) {
	var _ sim.PhaseTimer = NewPerfCollector(1)
}
