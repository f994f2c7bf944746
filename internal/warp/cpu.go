package warp

import (
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// CPU is the pure Go bilinear warper. Rows are split into bands that are
// resampled concurrently.
type CPU struct {
	workers int
}

// NewCPU creates a CPU warper using up to workers goroutines. Zero or less
// uses GOMAXPROCS.
func NewCPU(workers int) *CPU {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPU{workers: workers}
}

// Warp implements Warper.
func (c *CPU) Warp(src image.Image, inv geometry.Homography, w, h int) (*image.RGBA, error) {
	if err := checkSize(w, h); err != nil {
		return nil, err
	}
	in := toRGBA(src)
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	band := (h + c.workers - 1) / c.workers
	var g errgroup.Group
	g.SetLimit(c.workers)
	for y0 := 0; y0 < h; y0 += band {
		y1 := min(y0+band, h)
		g.Go(func() error {
			warpRows(out, in, inv, y0, y1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Warper.
func (c *CPU) Close() error { return nil }

func warpRows(out, in *image.RGBA, inv geometry.Homography, y0, y1 int) {
	sw, sh := float64(in.Rect.Dx()), float64(in.Rect.Dy())
	w := out.Rect.Dx()

	for y := y0; y < y1; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4 : x*4+4]

			p, ok := inv.Transform(geometry.Pt(float64(x), float64(y)))
			if !ok || p.X < 0 || p.Y < 0 || p.X >= sw || p.Y >= sh {
				px[0], px[1], px[2], px[3] = 0, 0, 0, 255
				continue
			}
			bilinear(px, in, p.X, p.Y)
		}
	}
}

// bilinear writes the interpolated RGBA value at (sx, sy) into px. The
// right and bottom neighbours clamp to the last row and column.
func bilinear(px []uint8, in *image.RGBA, sx, sy float64) {
	maxX, maxY := in.Rect.Dx()-1, in.Rect.Dy()-1

	x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
	fx, fy := sx-float64(x0), sy-float64(y0)
	x1, y1 := min(x0+1, maxX), min(y0+1, maxY)

	i00 := y0*in.Stride + x0*4
	i10 := y0*in.Stride + x1*4
	i01 := y1*in.Stride + x0*4
	i11 := y1*in.Stride + x1*4

	w00 := (1 - fx) * (1 - fy)
	w10 := fx * (1 - fy)
	w01 := (1 - fx) * fy
	w11 := fx * fy

	for ch := 0; ch < 4; ch++ {
		v := float64(in.Pix[i00+ch])*w00 +
			float64(in.Pix[i10+ch])*w10 +
			float64(in.Pix[i01+ch])*w01 +
			float64(in.Pix[i11+ch])*w11
		px[ch] = uint8(math.Min(255, v+0.5))
	}
}
