// Package arena turns raw boundary points into the closed wall polyline
// that the raycast engine intersects against.
package arena

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/shoal/geom"
)

// ErrTooFewPoints is returned when fewer than three distinct points are supplied.
var ErrTooFewPoints = errors.New("arena: need at least 3 distinct wall points")

// Segment is one wall between two boundary points.
type Segment struct {
	P1, P2 geom.Vec
}

// Length returns the segment length.
func (s Segment) Length() float64 {
	return geom.Distance(s.P1, s.P2)
}

// Walls is an ordered, closed sequence of segments: each segment ends where
// the next begins and the last one ends at the first one's start.
type Walls []Segment

// Closed reports whether the closure invariant holds.
func (w Walls) Closed() bool {
	if len(w) == 0 {
		return false
	}
	for i := range w {
		next := w[(i+1)%len(w)]
		if w[i].P2 != next.P1 {
			return false
		}
	}
	return true
}

// Bounds returns the axis-aligned bounding box of all wall endpoints.
func (w Walls) Bounds() (lo, hi geom.Vec) {
	lo = geom.V(math.Inf(1), math.Inf(1))
	hi = geom.V(math.Inf(-1), math.Inf(-1))
	for _, s := range w {
		for _, p := range [2]geom.Vec{s.P1, s.P2} {
			lo.X = math.Min(lo.X, p.X)
			lo.Y = math.Min(lo.Y, p.Y)
			hi.X = math.Max(hi.X, p.X)
			hi.Y = math.Max(hi.Y, p.Y)
		}
	}
	return lo, hi
}

// Perimeter returns the total wall length.
func (w Walls) Perimeter() float64 {
	var sum float64
	for _, s := range w {
		sum += s.Length()
	}
	return sum
}

// BuildWalls chains points into a closed polyline.
//
// Starting from the first point, the current point is linked to its nearest
// unvisited point, which becomes the current point. The last point visited is
// joined back to the first to close the loop. Ties go to the earlier point.
// The builder does not check for crossings.
func BuildWalls(points []geom.Vec) (Walls, error) {
	pool := dedupe(points)
	if len(pool) < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(pool))
	}

	n := len(pool)
	remaining := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		remaining = append(remaining, i)
	}

	walls := make(Walls, 0, n)
	cur := 0
	for len(remaining) > 0 {
		nearest := 0
		best := geom.Distance(pool[cur], pool[remaining[0]])
		for k := 1; k < len(remaining); k++ {
			if d := geom.Distance(pool[cur], pool[remaining[k]]); d < best {
				best = d
				nearest = k
			}
		}

		next := remaining[nearest]
		remaining = append(remaining[:nearest], remaining[nearest+1:]...)
		walls = append(walls, Segment{P1: pool[cur], P2: pool[next]})
		cur = next
	}
	walls = append(walls, Segment{P1: pool[cur], P2: pool[0]})

	return walls, nil
}

// dedupe drops exact duplicates while keeping first-seen order.
func dedupe(points []geom.Vec) []geom.Vec {
	seen := make(map[geom.Vec]struct{}, len(points))
	out := make([]geom.Vec, 0, len(points))
	for _, p := range points {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
