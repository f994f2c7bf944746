package geometry

import (
	"math"
	"testing"

	"gocv.io/x/gocv"
)

func toPoint2fVector(q Quad) gocv.Point2fVector {
	pts := make([]gocv.Point2f, len(q))
	for i, p := range q {
		pts[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return gocv.NewPoint2fVectorFromPoints(pts)
}

func TestSolve_MatchesOpenCV(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV")
	}

	src := Quad{{52, 31}, {590, 12}, {610, 455}, {40, 470}}
	dst := RectQuad(1280, 720)

	h, err := Solve(src, dst)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	srcV := toPoint2fVector(src)
	defer srcV.Close()
	dstV := toPoint2fVector(dst)
	defer dstV.Close()

	m := gocv.GetPerspectiveTransform2f(srcV, dstV)
	defer m.Close()

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			want := m.GetDoubleAt(r, c)
			got := h[r*3+c]
			// OpenCV works from float32 inputs
			if math.Abs(got-want) > 1e-3*math.Max(1, math.Abs(want)) {
				t.Errorf("h[%d][%d] = %g, OpenCV = %g", r, c, got, want)
			}
		}
	}
}
