package render

import (
	"image/color"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// Overlay draws the calibration preview: the warp quad, its corner handles
// and detected keypoints mapped back into video space.
type Overlay struct {
	QuadColor     color.RGBA
	HandleColor   color.RGBA
	ActiveColor   color.RGBA
	KeypointColor color.RGBA

	LineWidth      float64
	HandleRadius   float64
	KeypointRadius float64
}

// DefaultOverlay returns the standard preview styling.
func DefaultOverlay() Overlay {
	return Overlay{
		QuadColor:      color.RGBA{0, 255, 128, 255},
		HandleColor:    color.RGBA{255, 255, 255, 255},
		ActiveColor:    color.RGBA{255, 80, 80, 255},
		KeypointColor:  color.RGBA{255, 220, 0, 255},
		LineWidth:      2,
		HandleRadius:   8,
		KeypointRadius: 5,
	}
}

// DrawQuad outlines q and draws a handle on each corner. The handle at
// index active is highlighted; pass -1 for none.
func (o Overlay) DrawQuad(c *Canvas, q geometry.Quad, active int) {
	c.SetAlpha(1)
	for i := range q {
		a, b := q[i], q[(i+1)%4]
		c.StrokeLine(a.X, a.Y, b.X, b.Y, o.LineWidth, o.QuadColor)
	}
	for i, p := range q {
		col := o.HandleColor
		if i == active {
			col = o.ActiveColor
		}
		c.FillCircle(p.X, p.Y, o.HandleRadius, col)
		c.StrokeCircle(p.X, p.Y, o.HandleRadius, 1.5, o.QuadColor)
	}
}

// DrawKeypoints marks each point with a dot.
func (o Overlay) DrawKeypoints(c *Canvas, pts []geometry.Point) {
	c.SetAlpha(1)
	for _, p := range pts {
		if !p.Finite() {
			continue
		}
		c.FillCircle(p.X, p.Y, o.KeypointRadius, o.KeypointColor)
	}
}
