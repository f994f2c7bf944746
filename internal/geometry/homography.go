// Package geometry provides the planar homography solver and the point and
// quadrilateral helpers used to map video pixels onto the projector canvas.
package geometry

import (
	"errors"
	"math"
)

// ErrSingular is returned when four correspondences do not define a
// projective transform, typically because three or more source corners are
// collinear.
var ErrSingular = errors.New("homography: singular system")

// zEpsilon bounds the homogeneous denominator below which a point is treated
// as mapped to infinity.
const zEpsilon = 1e-12

// Homography is a 3x3 projective transform stored row-major with the last
// coefficient normalized to 1.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Mapping holds a forward homography and the inverse solved from the same
// correspondences.
type Mapping struct {
	Forward Homography // source -> destination
	Inverse Homography // destination -> source
}

// Solve computes the homography mapping src[i] onto dst[i] for i in 0..3.
//
// The eight unknowns are found with Gauss-Jordan elimination and partial
// pivoting; the ninth coefficient is fixed to 1. ErrSingular is returned
// when any elimination step has no nonzero pivot.
func Solve(src, dst Quad) (Homography, error) {
	if src.Degenerate() || dst.Degenerate() {
		return Homography{}, ErrSingular
	}

	var a [8][9]float64

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		r := 2 * i

		a[r] = [9]float64{x, y, 1, 0, 0, 0, -x * u, -y * u, u}
		a[r+1] = [9]float64{0, 0, 0, x, y, 1, -x * v, -y * v, v}
	}

	for col := 0; col < 8; col++ {
		pivot := -1
		best := 0.0
		for r := col; r < 8; r++ {
			if v := math.Abs(a[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if pivot < 0 || best < 1e-12 {
			return Homography{}, ErrSingular
		}
		if pivot != col {
			a[pivot], a[col] = a[col], a[pivot]
		}

		div := a[col][col]
		for c := col; c < 9; c++ {
			a[col][c] /= div
		}

		for r := 0; r < 8; r++ {
			if r == col {
				continue
			}
			factor := a[r][col]
			if factor == 0 {
				continue
			}
			for c := col; c < 9; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = a[i][8]
	}
	h[8] = 1

	if !h.finite() {
		return Homography{}, ErrSingular
	}
	return h, nil
}

// Pair solves the forward (src -> dst) and inverse (dst -> src) transforms
// for the same four correspondences.
func Pair(src, dst Quad) (Mapping, error) {
	fwd, err := Solve(src, dst)
	if err != nil {
		return Mapping{}, err
	}
	inv, err := Solve(dst, src)
	if err != nil {
		return Mapping{}, err
	}
	return Mapping{Forward: fwd, Inverse: inv}, nil
}

// Transform maps p through h. The second return value is false when p maps to
// the line at infinity or the result is not a finite number.
func (h Homography) Transform(p Point) (Point, bool) {
	z := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(z) < zEpsilon {
		return Point{}, false
	}

	out := Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / z,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / z,
	}
	if !out.Finite() {
		return Point{}, false
	}
	return out, true
}

// Float32 returns the coefficients as float32, the layout shader uniforms
// expect.
func (h Homography) Float32() []float32 {
	out := make([]float32, 9)
	for i, v := range h {
		out[i] = float32(v)
	}
	return out
}

func (h Homography) finite() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
