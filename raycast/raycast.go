// Package raycast measures distances from an agent to the arena walls along a
// fan of rays centred on its heading.
package raycast

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/shoal/arena"
	"github.com/pthm-cable/shoal/geom"
)

var (
	// ErrZeroHeading is returned when the forward vector has zero length.
	ErrZeroHeading = errors.New("raycast: zero-length forward vector")
	// ErrInvalidCaster is returned by New for unusable ray parameters.
	ErrInvalidCaster = errors.New("raycast: invalid caster parameters")
)

// hitEpsilon absorbs rounding when testing whether an intersection lies on a segment.
const hitEpsilon = 1e-9

// Caster casts a fixed fan of rays against an immutable set of walls.
// A Caster is safe for concurrent use; per-goroutine buffers live in Scratch.
type Caster struct {
	walls    arena.Walls
	index    *arena.Index
	rays     int
	fov      float64 // degrees
	maxRange float64
	offsets  []float64 // ray angles relative to forward, radians
}

// Scratch holds reusable buffers for CastInto.
type Scratch struct {
	candidates []int
}

// New builds a caster with rays rays spread over fovDeg degrees and hits
// clamped to maxRange.
func New(walls arena.Walls, rays int, fovDeg, maxRange float64) (*Caster, error) {
	switch {
	case rays < 1:
		return nil, fmt.Errorf("%w: need at least one ray, got %d", ErrInvalidCaster, rays)
	case fovDeg < 0 || math.IsNaN(fovDeg):
		return nil, fmt.Errorf("%w: field of view %v", ErrInvalidCaster, fovDeg)
	case !(maxRange > 0) || math.IsInf(maxRange, 0):
		return nil, fmt.Errorf("%w: max range %v", ErrInvalidCaster, maxRange)
	}

	index, err := arena.NewIndex(walls)
	if err != nil {
		return nil, err
	}

	c := &Caster{
		walls:    walls,
		index:    index,
		rays:     rays,
		fov:      fovDeg,
		maxRange: maxRange,
		offsets:  make([]float64, rays),
	}

	// Rays run from the clockwise extreme -FOV/2 to +FOV/2. A single ray
	// points straight ahead.
	if rays > 1 {
		half := fovDeg / 2 * math.Pi / 180
		step := 2 * half / float64(rays-1)
		for i := range c.offsets {
			c.offsets[i] = -half + float64(i)*step
		}
	}
	return c, nil
}

// Rays returns the number of rays per cast.
func (c *Caster) Rays() int { return c.rays }

// FOV returns the field of view in degrees.
func (c *Caster) FOV() float64 { return c.fov }

// MaxRange returns the distance reported when a ray hits nothing.
func (c *Caster) MaxRange() float64 { return c.maxRange }

// Walls returns the walls the caster intersects against.
func (c *Caster) Walls() arena.Walls { return c.walls }

// Directions returns the unit ray directions for an agent facing forward.
func (c *Caster) Directions(forward geom.Vec) ([]geom.Vec, error) {
	unit, err := geom.UnitVec(forward)
	if err != nil {
		return nil, ErrZeroHeading
	}
	dirs := make([]geom.Vec, c.rays)
	for i, off := range c.offsets {
		dirs[i] = geom.Rotate(unit, off)
	}
	return dirs, nil
}

// Cast returns one wall distance per ray, each in [0, MaxRange].
func (c *Caster) Cast(position, forward geom.Vec) ([]float64, error) {
	var s Scratch
	return c.CastInto(make([]float64, 0, c.rays), &s, position, forward)
}

// CastInto is Cast writing into dst[:0] and reusing s between calls.
func (c *Caster) CastInto(dst []float64, s *Scratch, position, forward geom.Vec) ([]float64, error) {
	unit, err := geom.UnitVec(forward)
	if err != nil {
		return dst, ErrZeroHeading
	}
	if !geom.Finite(position) || !geom.Finite(unit) {
		return dst, fmt.Errorf("raycast: non-finite ray origin %v or heading %v", position, forward)
	}

	dst = dst[:0]
	for _, off := range c.offsets {
		dir := geom.Rotate(unit, off)
		dst = append(dst, c.castOne(s, position, dir))
	}
	return dst, nil
}

// castOne returns the distance to the nearest wall in front of origin along
// dir, or maxRange.
func (c *Caster) castOne(s *Scratch, origin, dir geom.Vec) float64 {
	end := geom.Add(origin, geom.Scale(c.maxRange, dir))
	s.candidates = c.index.Candidates(s.candidates[:0], origin, end)

	best := c.maxRange
	for _, wi := range s.candidates {
		seg := c.walls[wi]
		p, ok := geom.LineIntersection(origin, end, seg.P1, seg.P2)
		if !ok {
			continue
		}
		if !onSegment(p, seg) {
			continue
		}
		if geom.Dot(geom.Sub(p, origin), dir) < 0 {
			continue
		}
		if d := geom.Distance(origin, p); d < best {
			best = d
		}
	}
	return best
}

func onSegment(p geom.Vec, s arena.Segment) bool {
	return p.X >= math.Min(s.P1.X, s.P2.X)-hitEpsilon &&
		p.X <= math.Max(s.P1.X, s.P2.X)+hitEpsilon &&
		p.Y >= math.Min(s.P1.Y, s.P2.Y)-hitEpsilon &&
		p.Y <= math.Max(s.P1.Y, s.P2.Y)+hitEpsilon
}
