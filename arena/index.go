package arena

import (
	"fmt"
	"math"
	"slices"

	"github.com/dhconnelly/rtreego"

	"github.com/pthm-cable/shoal/geom"
)

// boxPad keeps degenerate (axis-aligned) boxes at a positive size, which
// rtreego requires.
const boxPad = 1e-6

// R-tree node fan-out.
const (
	indexMinChildren = 4
	indexMaxChildren = 16
)

// wallEntry wraps one segment for the R-tree.
type wallEntry struct {
	rect  rtreego.Rect
	index int
}

func (e *wallEntry) Bounds() rtreego.Rect {
	return e.rect
}

// Index is a read-only spatial index over wall segments. Safe for concurrent
// queries once built.
type Index struct {
	walls Walls
	tree  *rtreego.Rtree
}

// NewIndex bulk-loads the segment bounding boxes of walls into an R-tree.
func NewIndex(walls Walls) (*Index, error) {
	idx := &Index{walls: walls}
	if len(walls) == 0 {
		return idx, nil
	}

	entries := make([]rtreego.Spatial, len(walls))
	for i, s := range walls {
		rect, err := boxOf(s.P1, s.P2)
		if err != nil {
			return nil, fmt.Errorf("indexing wall %d: %w", i, err)
		}
		entries[i] = &wallEntry{rect: rect, index: i}
	}
	idx.tree = rtreego.NewTree(2, indexMinChildren, indexMaxChildren, entries...)
	return idx, nil
}

// Walls returns the indexed segments.
func (x *Index) Walls() Walls {
	return x.walls
}

// Candidates appends to dst the indices of segments whose bounding boxes
// intersect the box spanned by a and b. Results are sorted ascending so
// callers iterate walls in a stable order.
func (x *Index) Candidates(dst []int, a, b geom.Vec) []int {
	if x.tree == nil {
		return dst
	}
	query, err := boxOf(a, b)
	if err != nil {
		// Non-finite query box: fall back to every wall.
		for i := range x.walls {
			dst = append(dst, i)
		}
		return dst
	}
	start := len(dst)
	for _, hit := range x.tree.SearchIntersect(query) {
		dst = append(dst, hit.(*wallEntry).index)
	}
	slices.Sort(dst[start:])
	return dst
}

func boxOf(a, b geom.Vec) (rtreego.Rect, error) {
	lo := rtreego.Point{math.Min(a.X, b.X) - boxPad, math.Min(a.Y, b.Y) - boxPad}
	lengths := []float64{math.Abs(a.X-b.X) + 2*boxPad, math.Abs(a.Y-b.Y) + 2*boxPad}
	if !geom.Finite(a) || !geom.Finite(b) {
		return rtreego.Rect{}, fmt.Errorf("non-finite box corner %v, %v", a, b)
	}
	return rtreego.NewRect(lo, lengths)
}
