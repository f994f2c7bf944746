package geometry

import (
	"fmt"
	"math"
)

// Point is a 2D coordinate. The frame of reference (video pixels, canvas
// pixels, normalized) is tracked by the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y}
}

// Scale returns p multiplied by s.
func (p Point) Scale(s float64) Point {
	return Point{p.X * s, p.Y * s}
}

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Quad is an ordered quadrilateral: upper-left, upper-right, lower-right,
// lower-left.
type Quad [4]Point

// RectQuad returns the quad covering a w x h rectangle anchored at the origin.
func RectQuad(w, h float64) Quad {
	return Quad{
		{0, 0},
		{w, 0},
		{w, h},
		{0, h},
	}
}

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Contains reports whether p lies inside the quad or on one of its edges.
// A point is inside when the cross products against every edge share a sign
// or are zero.
func (q Quad) Contains(p Point) bool {
	var pos, neg bool
	for i := 0; i < 4; i++ {
		c := cross(q[i], q[(i+1)%4], p)
		if c > 0 {
			pos = true
		} else if c < 0 {
			neg = true
		}
		if pos && neg {
			return false
		}
	}
	return true
}

// Degenerate reports whether any three corners are collinear (within a small
// tolerance relative to the quad size).
func (q Quad) Degenerate() bool {
	scale := 0.0
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			scale = math.Max(scale, Distance(q[i], q[j]))
		}
	}
	if scale == 0 {
		return true
	}
	tol := 1e-9 * scale * scale

	for i := 0; i < 4; i++ {
		a, b, c := q[i], q[(i+1)%4], q[(i+2)%4]
		if math.Abs(cross(a, b, c)) <= tol {
			return true
		}
	}
	return false
}

// Bounds returns the minimum and maximum corners of the quad's bounding box.
func (q Quad) Bounds() (Point, Point) {
	lo, hi := q[0], q[0]
	for _, p := range q[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi
}

// String renders the quad for log output.
func (q Quad) String() string {
	return fmt.Sprintf("[(%.1f,%.1f) (%.1f,%.1f) (%.1f,%.1f) (%.1f,%.1f)]",
		q[0].X, q[0].Y, q[1].X, q[1].Y, q[2].X, q[2].Y, q[3].X, q[3].Y)
}
