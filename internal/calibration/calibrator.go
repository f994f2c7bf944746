package calibration

import (
	"github.com/ayusman/snoezelen/internal/geometry"
)

// DefaultHitRadius is how close, in screen pixels, a pointer must land to
// grab a corner.
const DefaultHitRadius = 20

// Calibrator is the drag state of the warp quad. The quad is kept in video
// pixels; pointer events arrive in screen pixels. Not safe for concurrent
// use.
type Calibrator struct {
	view      View
	quad      geometry.Quad
	hitRadius float64
	active    int
	moved     bool
}

// NewCalibrator starts editing quad as shown through view.
func NewCalibrator(view View, quad geometry.Quad) *Calibrator {
	return &Calibrator{
		view:      view,
		quad:      quad,
		hitRadius: DefaultHitRadius,
		active:    -1,
	}
}

// SetHitRadius changes the grab distance. Values <= 0 are ignored.
func (c *Calibrator) SetHitRadius(r float64) {
	if r > 0 {
		c.hitRadius = r
	}
}

// SetView updates the screen mapping, e.g. after a window resize.
func (c *Calibrator) SetView(v View) {
	c.view = v
}

// View returns the current screen mapping.
func (c *Calibrator) View() View {
	return c.view
}

// SetQuad replaces the quad unless a drag is in progress.
func (c *Calibrator) SetQuad(q geometry.Quad) {
	if c.active < 0 {
		c.quad = q
	}
}

// Quad returns the quad in video pixels.
func (c *Calibrator) Quad() geometry.Quad {
	return c.quad
}

// Active returns the index of the dragged corner, or -1.
func (c *Calibrator) Active() int {
	return c.active
}

// Reset sets the quad to the full w×h frame.
func (c *Calibrator) Reset(w, h float64) {
	c.quad = geometry.RectQuad(w, h)
	c.active = -1
	c.moved = false
}

// PointerDown grabs the corner nearest to p if it lies within the hit
// radius. It reports whether a corner was grabbed.
func (c *Calibrator) PointerDown(p geometry.Point) bool {
	best, bestDist := -1, c.hitRadius
	for i, corner := range c.quad {
		if d := geometry.Distance(p, c.view.VideoToScreen(corner)); d <= bestDist {
			best, bestDist = i, d
		}
	}
	c.active = best
	c.moved = false
	return best >= 0
}

// PointerMove drags the grabbed corner to p. Moves that would make the quad
// degenerate are rejected. It reports whether the quad changed.
func (c *Calibrator) PointerMove(p geometry.Point) bool {
	if c.active < 0 {
		return false
	}
	v, _ := c.view.ScreenToVideo(p)

	next := c.quad
	next[c.active] = v
	if next == c.quad || next.Degenerate() {
		return false
	}
	c.quad = next
	c.moved = true
	return true
}

// PointerUp releases the corner. It returns the quad and whether the drag
// changed it.
func (c *Calibrator) PointerUp() (geometry.Quad, bool) {
	changed := c.active >= 0 && c.moved
	c.active = -1
	c.moved = false
	return c.quad, changed
}
