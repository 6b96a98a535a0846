package telemetry

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/sim"
)

// Recorder ties the collectors to a run. Its Observe method is a
// sim.FrameObserver that writes every frame and flushes a stats window every
// telemetry.stats_window frames.
type Recorder struct {
	out       *OutputManager
	collector *Collector
	perf      *PerfCollector
	bookmarks *BookmarkDetector
	lifetime  *LifetimeTracker
	logger    *slog.Logger

	runID       string
	nodes       []string
	snapshotDir string
	lastFrame   int
	pending     bool // frames recorded since the last flush

	// StatsCallback, when set, receives every flushed window.
	StatsCallback func(WindowStats)
}

// NewRecorder creates a recorder. out may be nil (no file output) and perf may
// be nil (no timing).
func NewRecorder(cfg *config.Config, out *OutputManager, perf *PerfCollector, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		out:       out,
		collector: NewCollector(cfg.Telemetry.StatsWindow),
		perf:      perf,
		bookmarks: NewBookmarkDetector(cfg.Telemetry.BookmarkHistory),
		lifetime:  NewLifetimeTracker(),
		logger:    logger,
		runID:     runID,
		nodes:     cfg.Swarm.Nodes,
	}
	if out != nil && cfg.Telemetry.Snapshots {
		r.snapshotDir = filepath.Join(out.Dir(), "snapshots")
	}
	return r
}

// Begin records the start frame. It does not flush.
func (r *Recorder) Begin(f *sim.Frame) error {
	if err := r.out.WriteFrame(f); err != nil {
		return err
	}
	r.collector.Record(f)
	r.lifetime.Record(f)
	r.lastFrame = f.Index
	return nil
}

// Observe records one simulated frame.
func (r *Recorder) Observe(f *sim.Frame) error {
	if err := r.out.WriteFrame(f); err != nil {
		return err
	}
	r.collector.Record(f)
	r.lifetime.Record(f)
	r.lastFrame = f.Index
	r.pending = true

	if !r.collector.ShouldFlush(f.Index) {
		return nil
	}
	return r.flush(f)
}

// Finish flushes a partial last window and writes the per-agent summary.
func (r *Recorder) Finish() error {
	if r.pending {
		if err := r.flush(nil); err != nil {
			return err
		}
	}
	return r.out.WriteAgents(r.lifetime.All())
}

// Lifetime returns the per-agent tracker.
func (r *Recorder) Lifetime() *LifetimeTracker { return r.lifetime }

// flush closes the current stats window at the last recorded frame. f is the
// frame to snapshot on bookmarks and may be nil.
func (r *Recorder) flush(f *sim.Frame) error {
	stats := r.collector.Flush(r.lastFrame)
	r.pending = false

	if r.StatsCallback != nil {
		r.StatsCallback(stats)
	}

	stats.LogStats(r.logger)
	if err := r.out.WriteStats(stats); err != nil {
		return err
	}

	if r.perf != nil {
		perfStats := r.perf.Stats()
		perfStats.LogStats(r.logger)
		if err := r.out.WritePerf(perfStats, stats.WindowEnd); err != nil {
			return err
		}
	}

	for _, bm := range r.bookmarks.Check(stats) {
		bm.LogBookmark(r.logger)
		if err := r.out.WriteBookmark(bm); err != nil {
			return err
		}
		if r.snapshotDir == "" || f == nil {
			continue
		}
		path, err := SaveSnapshot(NewSnapshot(r.runID, r.nodes, f, &bm), r.snapshotDir)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.Index, err)
		}
		r.logger.Info("snapshot saved", "path", path, "frame", f.Index)
	}
	return nil
}
