// Package calibration maps pointer input on the preview into video space
// and lets the operator drag the corners of the warp quad.
package calibration

import (
	"math"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// edgeEpsilon absorbs rounding when a point maps onto the frame border.
const edgeEpsilon = 1e-6

// View describes how a video frame is letterboxed into a screen area. When
// Mirrored is set the video is shown flipped horizontally, as a selfie view.
type View struct {
	VideoW, VideoH   float64
	ScreenW, ScreenH float64
	Mirrored         bool
}

// fit returns the uniform scale and the offset of the video rectangle
// inside the screen.
func (v View) fit() (scale, offX, offY float64) {
	if v.VideoW <= 0 || v.VideoH <= 0 || v.ScreenW <= 0 || v.ScreenH <= 0 {
		return 1, 0, 0
	}
	scale = math.Min(v.ScreenW/v.VideoW, v.ScreenH/v.VideoH)
	offX = (v.ScreenW - v.VideoW*scale) / 2
	offY = (v.ScreenH - v.VideoH*scale) / 2
	return scale, offX, offY
}

// ScreenToVideo converts a screen point into video pixels. The result is
// clamped into the frame; inside reports whether clamping was unnecessary.
func (v View) ScreenToVideo(p geometry.Point) (pt geometry.Point, inside bool) {
	scale, offX, offY := v.fit()
	x := (p.X - offX) / scale
	y := (p.Y - offY) / scale
	if v.Mirrored {
		x = v.VideoW - x
	}

	inside = x >= -edgeEpsilon && y >= -edgeEpsilon && x <= v.VideoW+edgeEpsilon && y <= v.VideoH+edgeEpsilon
	x = math.Max(0, math.Min(v.VideoW, x))
	y = math.Max(0, math.Min(v.VideoH, y))
	return geometry.Pt(x, y), inside
}

// VideoToScreen converts a video pixel into screen coordinates.
func (v View) VideoToScreen(p geometry.Point) geometry.Point {
	scale, offX, offY := v.fit()
	x := p.X
	if v.Mirrored {
		x = v.VideoW - x
	}
	return geometry.Pt(x*scale+offX, p.Y*scale+offY)
}

// QuadToScreen maps every corner of q into screen space.
func (v View) QuadToScreen(q geometry.Quad) geometry.Quad {
	var out geometry.Quad
	for i, p := range q {
		out[i] = v.VideoToScreen(p)
	}
	return out
}
