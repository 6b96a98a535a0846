package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkDispersal   BookmarkType = "dispersal"
	BookmarkAggregation BookmarkType = "aggregation"
	BookmarkStall       BookmarkType = "stall"
	BookmarkSchooling   BookmarkType = "schooling"
)

// Bookmark marks a window in which the swarm changed behavior.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Frame       int          `csv:"frame" json:"frame"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark.
func (b Bookmark) LogBookmark(logger *slog.Logger) {
	logger.Info("bookmark",
		"type", string(b.Type),
		"frame", b.Frame,
		"description", b.Description,
	)
}

// BookmarkDetector compares each stats window against a rolling history.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	schoolingWindows int // consecutive windows of aligned, cohesive swimming
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for schooling detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	for _, check := range []func(WindowStats) *Bookmark{
		bd.checkDispersal,
		bd.checkAggregation,
		bd.checkStall,
		bd.checkSchooling,
	} {
		if b := check(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// recent returns the last n windows in chronological order.
func (bd *BookmarkDetector) recent(n int) []WindowStats {
	h := bd.getHistory()
	if n > len(h) {
		n = len(h)
	}
	out := make([]WindowStats, 0, n)
	for i := n; i > 0; i-- {
		out = append(out, h[(bd.historyIdx-i+len(h))%len(h)])
	}
	return out
}

func (bd *BookmarkDetector) averageOf(value func(WindowStats) float64) (float64, bool) {
	history := bd.getHistory()
	if len(history) < 3 {
		return 0, false
	}
	var total float64
	for _, h := range history {
		total += value(h)
	}
	return total / float64(len(history)), true
}

func iidMean(s WindowStats) float64   { return s.IIDMean }
func speedMean(s WindowStats) float64 { return s.SpeedMean }

func (bd *BookmarkDetector) checkDispersal(stats WindowStats) *Bookmark {
	avg, ok := bd.averageOf(iidMean)
	if !ok || avg == 0 {
		return nil
	}
	if stats.IIDMean > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkDispersal,
			Frame:       stats.WindowEnd,
			Description: fmt.Sprintf("Mean IID %.1f is %.1fx average (%.1f)", stats.IIDMean, stats.IIDMean/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkAggregation(stats WindowStats) *Bookmark {
	avg, ok := bd.averageOf(iidMean)
	if !ok || avg == 0 {
		return nil
	}
	if stats.IIDMean < avg*0.5 {
		return &Bookmark{
			Type:        BookmarkAggregation,
			Frame:       stats.WindowEnd,
			Description: fmt.Sprintf("Mean IID %.1f dropped to %.0f%% of average (%.1f)", stats.IIDMean, stats.IIDMean/avg*100, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkStall(stats WindowStats) *Bookmark {
	avg, ok := bd.averageOf(speedMean)
	if !ok || avg == 0 {
		return nil
	}
	if stats.SpeedMean < avg*0.1 {
		return &Bookmark{
			Type:        BookmarkStall,
			Frame:       stats.WindowEnd,
			Description: fmt.Sprintf("Mean speed %.3f fell below 10%% of average (%.3f)", stats.SpeedMean, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkSchooling(stats WindowStats) *Bookmark {
	if stats.Agents < 2 || stats.Polarization < 0.9 {
		bd.schoolingWindows = 0
		return nil
	}

	last := bd.recent(4)
	if len(last) < 4 {
		return nil
	}

	// Cohesion is stable when the IID coefficient of variation is below 20%
	var sum float64
	for _, h := range last {
		sum += h.IIDMean
	}
	mean := sum / 4
	var variance float64
	for _, h := range last {
		d := h.IIDMean - mean
		variance += d * d
	}
	variance /= 4

	if mean > 0 && variance/(mean*mean) < 0.04 {
		bd.schoolingWindows++
	} else {
		bd.schoolingWindows = 0
	}

	if bd.schoolingWindows == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkSchooling,
			Frame:       stats.WindowEnd,
			Description: fmt.Sprintf("Aligned schooling (polarization %.2f, IID %.1f) over 5+ windows", stats.Polarization, stats.IIDMean),
		}
	}
	return nil
}
