package perception

import (
	"errors"
	"fmt"
)

// ErrBlockWidth is returned when an observation block has the wrong width.
var ErrBlockWidth = errors.New("perception: observation block width mismatch")

// Layout describes the observation vector fed to the predictor.
// Layout: view (NViews) + rays (Rays) + previous locomotion (DLoc).
type Layout struct {
	Fish  int // agents in the arena, including the focal one
	Nodes int // body nodes per agent
	Rays  int // wall rays per agent
}

// NViews is the width of the view block: (fish-1) * nodes * 2.
func (l Layout) NViews() int {
	if l.Fish < 1 {
		return 0
	}
	return (l.Fish - 1) * l.Nodes * 2
}

// DLoc is the width of a locomotion vector: forward, drift, turn, then a
// (length, angle) pair for every node except the center.
func (l Layout) DLoc() int {
	return 2*l.Nodes + 1
}

// Len is the total observation width.
func (l Layout) Len() int {
	return l.NViews() + l.Rays + l.DLoc()
}

// RaysOffset is the index of the first ray distance.
func (l Layout) RaysOffset() int { return l.NViews() }

// LocOffset is the index of the first previous-locomotion value.
func (l Layout) LocOffset() int { return l.NViews() + l.Rays }

// View returns the view block of obs.
func (l Layout) View(obs []float64) []float64 { return obs[:l.RaysOffset()] }

// RayBlock returns the ray block of obs.
func (l Layout) RayBlock(obs []float64) []float64 { return obs[l.RaysOffset():l.LocOffset()] }

// Loc returns the previous-locomotion block of obs.
func (l Layout) Loc(obs []float64) []float64 { return obs[l.LocOffset():l.Len()] }

// Build concatenates the three blocks into dst[:0], checking every width.
func (l Layout) Build(dst, view, rays, prevLoc []float64) ([]float64, error) {
	if len(view) != l.NViews() {
		return dst, fmt.Errorf("%w: view has %d values, want %d", ErrBlockWidth, len(view), l.NViews())
	}
	if len(rays) != l.Rays {
		return dst, fmt.Errorf("%w: rays has %d values, want %d", ErrBlockWidth, len(rays), l.Rays)
	}
	if len(prevLoc) != l.DLoc() {
		return dst, fmt.Errorf("%w: locomotion has %d values, want %d", ErrBlockWidth, len(prevLoc), l.DLoc())
	}
	dst = append(dst[:0], view...)
	dst = append(dst, rays...)
	dst = append(dst, prevLoc...)
	return dst, nil
}
