package particle

import (
	"image/color"
	"math/rand"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// Canvas is the drawing surface particles render onto. Colors are straight
// (non-premultiplied) RGBA; the current alpha multiplies every primitive.
type Canvas interface {
	SetAlpha(a float64)
	FillCircle(x, y, r float64, c color.RGBA)
	StrokeCircle(x, y, r, width float64, c color.RGBA)
	FillPolygon(pts []geometry.Point, c color.RGBA)
	StrokeLine(x0, y0, x1, y1, width float64, c color.RGBA)
}

// Particle is a single live effect element. Type selects which fields the
// update and draw rules use.
type Particle struct {
	Type EffectType

	X, Y   float64
	VX, VY float64
	Size   float64

	Life        float64
	InitialLife float64
	Color       color.RGBA

	Rotation   float64
	Spin       float64
	Phase      float64
	WobbleFreq float64
	WobbleAmp  float64
	Gravity    float64
}

// Alpha returns the linear fade factor life/initialLife clamped into [0,1].
func (p *Particle) Alpha() float64 {
	if p.InitialLife <= 0 {
		return 0
	}
	return clamp(p.Life/p.InitialLife, 0, 1)
}

// Dead reports whether the particle has exhausted its life.
func (p *Particle) Dead() bool {
	return p.Life <= 0
}

// Reset re-randomizes the particle as a fresh emission of type t at (x, y).
func (p *Particle) Reset(rng *rand.Rand, t EffectType, x, y, magnitude float64) {
	*p = Particle{Type: t, X: x, Y: y}
	rules[t].spawn(p, rng, magnitude)
	p.InitialLife = p.Life
}

// Update advances the particle by one frame.
func (p *Particle) Update() {
	rules[p.Type].update(p)
}

// Draw renders the particle with its current fade.
func (p *Particle) Draw(c Canvas) {
	c.SetAlpha(p.Alpha())
	rules[p.Type].draw(c, p)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
