package warp

import (
	"testing"

	"github.com/ayusman/snoezelen/internal/geometry"
)

func TestNative_AgreesWithCPU(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV")
	}

	src := gradient(160, 120)
	dst := geometry.Quad{{X: 12, Y: 8}, {X: 150, Y: 20}, {X: 140, Y: 110}, {X: 5, Y: 100}}
	m, err := geometry.Pair(dst, geometry.RectQuad(200, 150))
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}

	cpu, err := NewCPU(0).Warp(src, m.Inverse, 200, 150)
	if err != nil {
		t.Fatalf("CPU Warp() error = %v", err)
	}
	native, err := NewNative().Warp(src, m.Inverse, 200, 150)
	if err != nil {
		t.Fatalf("Native Warp() error = %v", err)
	}

	// OpenCV blends with the border colour near the source edges, so only
	// compare the interior.
	worst := 0
	for y := 4; y < 146; y++ {
		for x := 4; x < 196; x++ {
			worst = max(worst, diff(cpu.RGBAAt(x, y), native.RGBAAt(x, y)))
		}
	}
	if worst > 3 {
		t.Errorf("max channel difference between CPU and native = %d, want <= 3", worst)
	}
}

func TestHomographyMat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV")
	}

	h := geometry.Homography{1, 2, 3, 4, 5, 6, 7, 8, 1}
	m := HomographyMat(h)
	defer m.Close()

	if m.Rows() != 3 || m.Cols() != 3 {
		t.Fatalf("size = %dx%d, want 3x3", m.Rows(), m.Cols())
	}
	for i, want := range h {
		if got := m.GetDoubleAt(i/3, i%3); got != want {
			t.Errorf("m[%d][%d] = %f, want %f", i/3, i%3, got, want)
		}
	}
}
