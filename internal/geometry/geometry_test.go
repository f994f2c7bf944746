package geometry

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-6

func approxPoint(t *testing.T, got, want Point, tol float64) {
	t.Helper()
	if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol {
		t.Errorf("got (%f, %f), want (%f, %f)", got.X, got.Y, want.X, want.Y)
	}
}

func TestSolve_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  Quad
		dst  Quad
	}{
		{
			name: "unit square scaled",
			src:  RectQuad(100, 100),
			dst:  RectQuad(200, 200),
		},
		{
			name: "skewed quad to canvas",
			src:  Quad{{52, 31}, {590, 12}, {610, 455}, {40, 470}},
			dst:  RectQuad(1280, 720),
		},
		{
			name: "perspective trapezoid",
			src:  Quad{{200, 100}, {440, 100}, {620, 470}, {20, 470}},
			dst:  RectQuad(800, 600),
		},
		{
			name: "canvas back to quad",
			src:  RectQuad(640, 480),
			dst:  Quad{{10, 20}, {630, 5}, {600, 460}, {30, 470}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Solve(tt.src, tt.dst)
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}

			if h[8] != 1 {
				t.Errorf("h[8] = %f, want 1", h[8])
			}

			for i := range tt.src {
				got, ok := h.Transform(tt.src[i])
				if !ok {
					t.Fatalf("Transform(%v) not finite", tt.src[i])
				}
				approxPoint(t, got, tt.dst[i], epsilon)
			}
		})
	}
}

func TestPair_CompositionLaw(t *testing.T) {
	src := Quad{{52, 31}, {590, 12}, {610, 455}, {40, 470}}
	dst := RectQuad(1280, 720)

	m, err := Pair(src, dst)
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}

	points := []Point{{100, 100}, {320, 240}, {55, 460}, {600, 20}, {0, 0}}
	for _, p := range points {
		fwd, ok := m.Forward.Transform(p)
		if !ok {
			t.Fatalf("forward transform of %v not finite", p)
		}
		back, ok := m.Inverse.Transform(fwd)
		if !ok {
			t.Fatalf("inverse transform of %v not finite", fwd)
		}
		approxPoint(t, back, p, 1e-6)
	}
}

func TestSolve_ScaleByTwo(t *testing.T) {
	h, err := Solve(Quad{{0, 0}, {100, 0}, {100, 100}, {0, 100}}, RectQuad(200, 200))
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	got, ok := h.Transform(Pt(50, 50))
	if !ok {
		t.Fatal("Transform returned not ok")
	}
	approxPoint(t, got, Pt(100, 100), epsilon)

	// no rotation or shear
	for _, i := range []int{1, 3, 6, 7} {
		if math.Abs(h[i]) > epsilon {
			t.Errorf("h[%d] = %f, want 0", i, h[i])
		}
	}
}

func TestSolve_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		src  Quad
	}{
		{"three collinear", Quad{{0, 0}, {50, 0}, {100, 0}, {0, 100}}},
		{"all collinear", Quad{{0, 0}, {10, 10}, {20, 20}, {30, 30}}},
		{"repeated corner", Quad{{0, 0}, {0, 0}, {100, 100}, {0, 100}}},
		{"collapsed to point", Quad{{5, 5}, {5, 5}, {5, 5}, {5, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Solve(tt.src, RectQuad(200, 200))
			if !errors.Is(err, ErrSingular) {
				t.Fatalf("Solve() error = %v, want ErrSingular", err)
			}
			for i, v := range h {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("h[%d] = %f on failure", i, v)
				}
			}
		})
	}
}

func TestTransform_PointAtInfinity(t *testing.T) {
	// Z = x - 10 vanishes on the line x = 10.
	h := Homography{1, 0, 0, 0, 1, 0, 1, 0, -10}

	if _, ok := h.Transform(Pt(10, 3)); ok {
		t.Error("expected point on the vanishing line to be rejected")
	}
	if p, ok := h.Transform(Pt(20, 10)); !ok || !p.Finite() {
		t.Errorf("expected finite mapping, got %v ok=%v", p, ok)
	}
}

func TestQuad_Contains(t *testing.T) {
	square := RectQuad(100, 100)
	skewed := Quad{{10, 10}, {90, 20}, {80, 90}, {20, 80}}

	tests := []struct {
		name string
		quad Quad
		p    Point
		want bool
	}{
		{"center", square, Pt(50, 50), true},
		{"outside right", square, Pt(150, 50), false},
		{"outside above", square, Pt(50, -1), false},
		{"on edge", square, Pt(100, 40), true},
		{"on corner", square, Pt(0, 0), true},
		{"skewed inside", skewed, Pt(50, 50), true},
		{"skewed outside near corner", skewed, Pt(12, 85), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quad.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestQuad_ContainsCounterClockwise(t *testing.T) {
	// winding order must not matter
	q := Quad{{0, 0}, {0, 100}, {100, 100}, {100, 0}}
	if !q.Contains(Pt(30, 70)) {
		t.Error("counter-clockwise quad should contain interior point")
	}
	if q.Contains(Pt(-30, 70)) {
		t.Error("counter-clockwise quad should not contain exterior point")
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(Pt(10, 10), Pt(30, 10)); math.Abs(d-20) > epsilon {
		t.Errorf("Distance = %f, want 20", d)
	}
	if d := Distance(Pt(0, 0), Pt(3, 4)); math.Abs(d-5) > epsilon {
		t.Errorf("Distance = %f, want 5", d)
	}
}
