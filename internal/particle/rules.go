package particle

import (
	"image/color"
	"math"
	"math/rand"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// rule describes one effect type. spawn fills in the type specific state
// after the common fields have been set.
type rule struct {
	sizeK, sizeMin, sizeMax float64
	lifeMin, lifeMax        float64
	decay                   float64 // life lost per frame, always > 0
	shrink                  float64 // size multiplier per frame

	spawn  func(p *Particle, rng *rand.Rand, magnitude float64)
	update func(p *Particle)
	draw   func(c Canvas, p *Particle)
}

var rules [numEffects]rule

func init() {
	rules = [numEffects]rule{
		Normal: {
			sizeK: 0.3, sizeMin: 2, sizeMax: 10,
			lifeMin: 50, lifeMax: 100, decay: 1, shrink: 0.98,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				radial(p, rng, between(rng, 1, 3)+math.Min(mag*0.05, 3))
				p.Color = hsv(rng.Float64()*360, 0.8, 1)
			},
			draw: drawDisc,
		},
		Sparkle: {
			sizeK: 0.2, sizeMin: 2, sizeMax: 8,
			lifeMin: 30, lifeMax: 60, decay: 1.2, shrink: 0.97,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				radial(p, rng, between(rng, 1, 4))
				p.Rotation = rng.Float64() * 2 * math.Pi
				p.Spin = between(rng, 0.05, 0.2)
				if rng.Intn(2) == 0 {
					p.Color = color.RGBA{255, 215, 0, 255}
				} else {
					p.Color = color.RGBA{255, 255, 255, 255}
				}
			},
			update: spin,
			draw:   drawStar,
		},
		Fire: {
			sizeK: 0.4, sizeMin: 4, sizeMax: 14,
			lifeMin: 20, lifeMax: 50, decay: 1, shrink: 0.95,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				p.VX = between(rng, -1, 1)
				p.VY = between(rng, -3, -1) - math.Min(mag*0.02, 2)
				p.Color = fireColor(1)
			},
			update: func(p *Particle) {
				p.Color = fireColor(p.Alpha())
			},
			draw: drawDisc,
		},
		Bubbles: {
			sizeK: 0.3, sizeMin: 5, sizeMax: 20,
			lifeMin: 80, lifeMax: 150, decay: 1, shrink: 0.995,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				p.VX = between(rng, -0.5, 0.5)
				p.VY = between(rng, -1.5, -0.5)
				wobble(p, rng)
				p.Color = color.RGBA{150, 210, 255, 255}
			},
			update: drift,
			draw:   drawBubble,
		},
		Snow: {
			sizeK: 0.15, sizeMin: 2, sizeMax: 6,
			lifeMin: 100, lifeMax: 180, decay: 1, shrink: 0.995,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				p.VX = between(rng, -0.5, 0.5)
				p.VY = between(rng, 0.5, 1.5)
				wobble(p, rng)
				p.Color = color.RGBA{255, 255, 255, 255}
			},
			update: drift,
			draw:   drawDisc,
		},
		Holiday: {
			sizeK: 0.25, sizeMin: 3, sizeMax: 10,
			lifeMin: 60, lifeMax: 120, decay: 1, shrink: 0.985,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				radial(p, rng, between(rng, 1, 4))
				p.Gravity = 0.05
				p.Color = holidayColors[rng.Intn(len(holidayColors))]
			},
			update: fall,
			draw:   drawDisc,
		},
		GeometricSnow: {
			sizeK: 0.3, sizeMin: 6, sizeMax: 16,
			lifeMin: 100, lifeMax: 160, decay: 1, shrink: 0.99,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				p.VX = between(rng, -0.5, 0.5)
				p.VY = between(rng, 0.5, 1.2)
				wobble(p, rng)
				p.Rotation = rng.Float64() * math.Pi / 3
				p.Spin = between(rng, -0.03, 0.03)
				p.Color = color.RGBA{210, 240, 255, 255}
			},
			update: func(p *Particle) {
				drift(p)
				spin(p)
			},
			draw: drawFlake,
		},
		GiftBox: {
			sizeK: 0.4, sizeMin: 8, sizeMax: 20,
			lifeMin: 60, lifeMax: 100, decay: 1, shrink: 0.99,
			spawn: func(p *Particle, rng *rand.Rand, mag float64) {
				radial(p, rng, between(rng, 3, 7)+math.Min(mag*0.05, 3))
				p.VY -= 2
				p.Gravity = 0.15
				p.Rotation = rng.Float64() * 2 * math.Pi
				p.Spin = between(rng, -0.1, 0.1)
				p.Color = giftColors[rng.Intn(len(giftColors))]
			},
			update: func(p *Particle) {
				fall(p)
				spin(p)
			},
			draw: drawGift,
		},
	}

	for t := range rules {
		r := &rules[t]
		spawn := r.spawn
		r.spawn = func(p *Particle, rng *rand.Rand, mag float64) {
			p.Size = clamp(mag*r.sizeK, r.sizeMin, r.sizeMax)
			p.Life = between(rng, r.lifeMin, r.lifeMax)
			spawn(p, rng, mag)
		}
		extra := r.update
		r.update = func(p *Particle) {
			p.X += p.VX
			p.Y += p.VY
			p.Life -= r.decay
			p.Size *= r.shrink
			if extra != nil {
				extra(p)
			}
		}
	}
}

var holidayColors = []color.RGBA{
	{220, 30, 40, 255},
	{30, 160, 60, 255},
	{255, 200, 40, 255},
}

var giftColors = []color.RGBA{
	{200, 30, 50, 255},
	{40, 120, 200, 255},
	{40, 160, 80, 255},
	{150, 60, 180, 255},
}

var ribbonColor = color.RGBA{255, 215, 0, 255}

func radial(p *Particle, rng *rand.Rand, speed float64) {
	angle := rng.Float64() * 2 * math.Pi
	p.VX = math.Cos(angle) * speed
	p.VY = math.Sin(angle) * speed
}

func wobble(p *Particle, rng *rand.Rand) {
	p.Phase = rng.Float64() * 2 * math.Pi
	p.WobbleFreq = between(rng, 0.05, 0.1)
	p.WobbleAmp = between(rng, 0.5, 1.5)
}

func drift(p *Particle) {
	p.X += math.Sin(p.Phase) * p.WobbleAmp
	p.Phase += p.WobbleFreq
}

func spin(p *Particle) {
	p.Rotation += p.Spin
}

func fall(p *Particle) {
	p.VY += p.Gravity
}

// fireColor fades yellow to orange to red and finally smoke grey as the
// remaining life fraction f drops.
func fireColor(f float64) color.RGBA {
	switch {
	case f > 0.6:
		t := (f - 0.6) / 0.4
		return color.RGBA{255, uint8(140 + 115*t), uint8(40 * t), 255}
	case f > 0.3:
		t := (f - 0.3) / 0.3
		return color.RGBA{uint8(200 + 55*t), uint8(40 + 100*t), 0, 255}
	default:
		t := f / 0.3
		g := uint8(110 + 40*(1-t))
		return color.RGBA{g, g, g, 255}
	}
}

func hsv(h, s, v float64) color.RGBA {
	c := v * s
	hp := math.Mod(h/60, 6)
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g = c, x
	case hp < 2:
		r, g = x, c
	case hp < 3:
		g, b = c, x
	case hp < 4:
		g, b = x, c
	case hp < 5:
		r, b = x, c
	default:
		r, b = c, x
	}
	m := v - c
	return color.RGBA{uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255), 255}
}

func drawDisc(c Canvas, p *Particle) {
	c.FillCircle(p.X, p.Y, p.Size, p.Color)
}

func drawStar(c Canvas, p *Particle) {
	pts := make([]geometry.Point, 10)
	for i := range pts {
		r := p.Size
		if i%2 == 1 {
			r *= 0.45
		}
		a := p.Rotation + float64(i)*math.Pi/5 - math.Pi/2
		pts[i] = geometry.Pt(p.X+math.Cos(a)*r, p.Y+math.Sin(a)*r)
	}
	c.FillPolygon(pts, p.Color)
}

func drawBubble(c Canvas, p *Particle) {
	c.StrokeCircle(p.X, p.Y, p.Size, 1.5, p.Color)

	disc := p.Color
	disc.A = 60
	c.FillCircle(p.X, p.Y, p.Size, disc)

	c.FillCircle(p.X-p.Size*0.3, p.Y-p.Size*0.3, p.Size*0.25, color.RGBA{255, 255, 255, 200})
}

func drawFlake(c Canvas, p *Particle) {
	for i := 0; i < 6; i++ {
		a := p.Rotation + float64(i)*math.Pi/3
		ex, ey := p.X+math.Cos(a)*p.Size, p.Y+math.Sin(a)*p.Size
		c.StrokeLine(p.X, p.Y, ex, ey, 1.2, p.Color)

		// side branches at 60% of the arm
		bx, by := p.X+math.Cos(a)*p.Size*0.6, p.Y+math.Sin(a)*p.Size*0.6
		for _, off := range []float64{math.Pi / 4, -math.Pi / 4} {
			ba := a + off
			c.StrokeLine(bx, by, bx+math.Cos(ba)*p.Size*0.3, by+math.Sin(ba)*p.Size*0.3, 1, p.Color)
		}
	}
}

func drawGift(c Canvas, p *Particle) {
	half := p.Size / 2
	corners := make([]geometry.Point, 4)
	for i := range corners {
		a := p.Rotation + math.Pi/4 + float64(i)*math.Pi/2
		corners[i] = geometry.Pt(p.X+math.Cos(a)*half*math.Sqrt2, p.Y+math.Sin(a)*half*math.Sqrt2)
	}
	c.FillPolygon(corners, p.Color)

	// ribbon cross through the box center, parallel to its sides
	cos, sin := math.Cos(p.Rotation), math.Sin(p.Rotation)
	w := math.Max(1, p.Size*0.15)
	c.StrokeLine(p.X-cos*half, p.Y-sin*half, p.X+cos*half, p.Y+sin*half, w, ribbonColor)
	c.StrokeLine(p.X+sin*half, p.Y-cos*half, p.X-sin*half, p.Y+cos*half, w, ribbonColor)
}
