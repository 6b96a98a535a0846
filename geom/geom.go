// Package geom provides the 2D geometry kernel shared by the arena, raycast,
// perception and locomotion packages.
package geom

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a point or direction in world coordinates.
type Vec = r2.Vec

// Unit selects the unit of an angle returned by AngleBetween.
type Unit uint8

const (
	Radians Unit = iota
	Degrees
)

// ErrZeroVector is returned when an angle is requested against a zero-length vector.
var ErrZeroVector = errors.New("geom: zero-length vector")

const twoPi = 2 * math.Pi

// V is shorthand for Vec{X: x, Y: y}.
func V(x, y float64) Vec {
	return Vec{X: x, Y: y}
}

// Distance returns the Euclidean distance between two points.
func Distance(p1, p2 Vec) float64 {
	return r2.Norm(r2.Sub(p2, p1))
}

// AngleBetween returns the signed angle rotating a onto b, counter-clockwise
// positive, in (-π, π] (or the equivalent in degrees).
// The result is NaN when either vector has zero length.
func AngleBetween(a, b Vec, unit Unit) float64 {
	if isZero(a) || isZero(b) {
		return math.NaN()
	}
	ang := math.Atan2(r2.Cross(a, b), r2.Dot(a, b))
	if unit == Degrees {
		return ang * 180 / math.Pi
	}
	return ang
}

// AngleBetweenChecked is AngleBetween with the zero-length case reported as ErrZeroVector.
func AngleBetweenChecked(a, b Vec, unit Unit) (float64, error) {
	if isZero(a) || isZero(b) {
		return 0, ErrZeroVector
	}
	return AngleBetween(a, b, unit), nil
}

// LineIntersection returns the point where the infinite lines through (a1, a2)
// and (b1, b2) cross. ok is false when the lines are parallel (or either pair
// of points coincides); it says nothing about segment bounds.
func LineIntersection(a1, a2, b1, b2 Vec) (p Vec, ok bool) {
	l1 := r3.Cross(homogeneous(a1), homogeneous(a2))
	l2 := r3.Cross(homogeneous(b1), homogeneous(b2))
	x := r3.Cross(l1, l2)
	if x.Z == 0 {
		return Vec{}, false
	}
	return Vec{X: x.X / x.Z, Y: x.Y / x.Z}, true
}

func homogeneous(p Vec) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: 1}
}

// ClusterPoints greedily keeps a point only if it is farther than minDistance
// from every point kept so far. Order matters: the first point seen in a
// cluster represents it.
func ClusterPoints(points []Vec, minDistance float64) []Vec {
	kept := make([]Vec, 0, len(points))
	for _, p := range points {
		if isNear(kept, p, minDistance) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func isNear(kept []Vec, p Vec, minDistance float64) bool {
	for _, k := range kept {
		if Distance(k, p) <= minDistance {
			return true
		}
	}
	return false
}

// NormalizeAngle wraps an angle into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	// Mod of a tiny negative number can round up to exactly 2π.
	if a >= twoPi {
		a = 0
	}
	return a
}

// WrapAngle wraps an angle into (-π, π].
func WrapAngle(a float64) float64 {
	a = NormalizeAngle(a)
	if a > math.Pi {
		a -= twoPi
	}
	return a
}

// Heading returns the world angle of v in [0, 2π), measured from the x-axis.
func Heading(v Vec) (float64, error) {
	ang, err := AngleBetweenChecked(Vec{X: 1}, v, Radians)
	if err != nil {
		return 0, err
	}
	return NormalizeAngle(ang), nil
}

// FromPolar returns the vector of the given length pointing at angle.
func FromPolar(length, angle float64) Vec {
	return Vec{X: length * math.Cos(angle), Y: length * math.Sin(angle)}
}

// Rotate rotates v counter-clockwise by angle around the origin.
func Rotate(v Vec, angle float64) Vec {
	return r2.Rotate(v, angle, Vec{})
}

// UnitVec returns v scaled to length 1, or ErrZeroVector.
func UnitVec(v Vec) (Vec, error) {
	if isZero(v) {
		return Vec{}, ErrZeroVector
	}
	return r2.Unit(v), nil
}

// Add returns p+q.
func Add(p, q Vec) Vec { return r2.Add(p, q) }

// Sub returns p-q.
func Sub(p, q Vec) Vec { return r2.Sub(p, q) }

// Scale returns f*p.
func Scale(f float64, p Vec) Vec { return r2.Scale(f, p) }

// Dot returns the dot product of p and q.
func Dot(p, q Vec) float64 { return r2.Dot(p, q) }

// Finite reports whether both coordinates are finite.
func Finite(p Vec) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func isZero(v Vec) bool {
	return v.X == 0 && v.Y == 0
}
