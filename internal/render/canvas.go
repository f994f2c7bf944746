// Package render rasterises particles and calibration overlays onto RGBA
// images using golang.org/x/image/vector.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// kappa places cubic Bézier control points so four segments approximate a
// circle.
const kappa = 0.5522847498

// Canvas draws anti-aliased shapes onto an *image.RGBA. It implements
// particle.Canvas. Not safe for concurrent use.
type Canvas struct {
	img   *image.RGBA
	z     *vector.Rasterizer
	alpha float64
}

// NewCanvas allocates a transparent w×h canvas.
func NewCanvas(w, h int) *Canvas {
	return Wrap(image.NewRGBA(image.Rect(0, 0, w, h)))
}

// Wrap draws directly into img.
func Wrap(img *image.RGBA) *Canvas {
	return &Canvas{
		img:   img,
		z:     vector.NewRasterizer(1, 1),
		alpha: 1,
	}
}

// Image returns the backing image.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Bounds returns the canvas bounds.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// Clear fills the whole canvas with col, ignoring the current alpha.
func (c *Canvas) Clear(col color.RGBA) {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

// DrawImage copies src into the canvas, scaled by nearest neighbour when the
// sizes differ.
func (c *Canvas) DrawImage(src image.Image) {
	if src == nil {
		return
	}
	if src.Bounds().Size() == c.img.Bounds().Size() {
		draw.Draw(c.img, c.img.Bounds(), src, src.Bounds().Min, draw.Src)
		return
	}

	sb, db := src.Bounds(), c.img.Bounds()
	for y := db.Min.Y; y < db.Max.Y; y++ {
		sy := sb.Min.Y + (y-db.Min.Y)*sb.Dy()/db.Dy()
		for x := db.Min.X; x < db.Max.X; x++ {
			sx := sb.Min.X + (x-db.Min.X)*sb.Dx()/db.Dx()
			c.img.Set(x, y, src.At(sx, sy))
		}
	}
}

// SetAlpha sets the opacity multiplier for subsequent primitives.
func (c *Canvas) SetAlpha(a float64) {
	switch {
	case a < 0 || math.IsNaN(a):
		a = 0
	case a > 1:
		a = 1
	}
	c.alpha = a
}

// Alpha returns the current opacity multiplier.
func (c *Canvas) Alpha() float64 {
	return c.alpha
}

// FillCircle fills a disc of radius r centred on (x, y).
func (c *Canvas) FillCircle(x, y, r float64, col color.RGBA) {
	if r <= 0 {
		return
	}
	c.fill(x-r, y-r, x+r, y+r, col, func(z *vector.Rasterizer, ox, oy float64) {
		circle(z, x-ox, y-oy, r, false)
	})
}

// StrokeCircle draws a ring of the given width centred on radius r.
func (c *Canvas) StrokeCircle(x, y, r, width float64, col color.RGBA) {
	if r <= 0 || width <= 0 {
		return
	}
	outer := r + width/2
	inner := r - width/2
	c.fill(x-outer, y-outer, x+outer, y+outer, col, func(z *vector.Rasterizer, ox, oy float64) {
		circle(z, x-ox, y-oy, outer, false)
		if inner > 0 {
			// opposite winding cancels coverage inside the inner edge
			circle(z, x-ox, y-oy, inner, true)
		}
	})
}

// FillPolygon fills the closed polygon through pts.
func (c *Canvas) FillPolygon(pts []geometry.Point, col color.RGBA) {
	if len(pts) < 3 {
		return
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		if !p.Finite() {
			return
		}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	c.fill(minX, minY, maxX, maxY, col, func(z *vector.Rasterizer, ox, oy float64) {
		z.MoveTo(float32(pts[0].X-ox), float32(pts[0].Y-oy))
		for _, p := range pts[1:] {
			z.LineTo(float32(p.X-ox), float32(p.Y-oy))
		}
		z.ClosePath()
	})
}

// StrokeLine draws a segment of the given width as a filled quad.
func (c *Canvas) StrokeLine(x0, y0, x1, y1, width float64, col color.RGBA) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 || width <= 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	c.FillPolygon([]geometry.Point{
		{X: x0 + nx, Y: y0 + ny},
		{X: x1 + nx, Y: y1 + ny},
		{X: x1 - nx, Y: y1 - ny},
		{X: x0 - nx, Y: y0 - ny},
	}, col)
}

// fill rasterises the path built by path into the pixel box covering
// [minX,maxX]×[minY,maxY]. The rasteriser is sized to the box only, so
// path receives the box origin to offset its coordinates.
func (c *Canvas) fill(minX, minY, maxX, maxY float64, col color.RGBA, path func(z *vector.Rasterizer, ox, oy float64)) {
	if c.alpha <= 0 || col.A == 0 {
		return
	}
	if math.IsNaN(minX+minY+maxX+maxY) || math.IsInf(minX+minY+maxX+maxY, 0) {
		return
	}

	box := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1,
	).Intersect(c.img.Bounds())
	if box.Empty() {
		return
	}

	c.z.Reset(box.Dx(), box.Dy())
	c.z.DrawOp = draw.Over
	path(c.z, float64(box.Min.X), float64(box.Min.Y))

	src := color.NRGBA{R: col.R, G: col.G, B: col.B, A: uint8(math.Round(float64(col.A) * c.alpha))}
	c.z.Draw(c.img, box, image.NewUniform(src), image.Point{})
}

// circle appends a closed circle to z as four cubic segments. reverse
// flips the winding direction.
func circle(z *vector.Rasterizer, cx, cy, r float64, reverse bool) {
	k := r * kappa
	s := 1.0
	if reverse {
		s = -1
	}
	pt := func(x, y float64) (float32, float32) {
		return float32(cx + x), float32(cy + s*y)
	}

	z.MoveTo(pt(r, 0))
	cubic(z, pt, r, k, k, r, 0, r)
	cubic(z, pt, -k, r, -r, k, -r, 0)
	cubic(z, pt, -r, -k, -k, -r, 0, -r)
	cubic(z, pt, k, -r, r, -k, r, 0)
	z.ClosePath()
}

func cubic(z *vector.Rasterizer, pt func(x, y float64) (float32, float32), x1, y1, x2, y2, x3, y3 float64) {
	ax, ay := pt(x1, y1)
	bx, by := pt(x2, y2)
	cx, cy := pt(x3, y3)
	z.CubeTo(ax, ay, bx, by, cx, cy)
}
