package tracking

import (
	"fmt"
	"math"
	"sync"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// ThresholdScale selects how the movement threshold relates to the frame the
// markers are measured in.
type ThresholdScale string

const (
	// ScaleNone applies the threshold as given.
	ScaleNone ThresholdScale = "none"
	// ScaleByCanvas multiplies the threshold by the destination/source
	// width ratio, so it is expressed in canvas pixels.
	ScaleByCanvas ThresholdScale = "canvas"
)

// ParseThresholdScale validates a scale policy name.
func ParseThresholdScale(s string) (ThresholdScale, error) {
	switch ThresholdScale(s) {
	case ScaleNone, "":
		return ScaleNone, nil
	case ScaleByCanvas:
		return ScaleByCanvas, nil
	}
	return "", fmt.Errorf("unknown threshold scale %q", s)
}

// Effective returns the threshold to compare displacements against when
// markers live in a srcW wide frame and the canvas is dstW wide.
func (s ThresholdScale) Effective(threshold, srcW, dstW float64) float64 {
	if s == ScaleByCanvas && srcW > 0 && dstW > 0 {
		return threshold * dstW / srcW
	}
	return threshold
}

// Params tune a single Step.
type Params struct {
	// Threshold is the displacement a marker must exceed to emit.
	Threshold float64
	// MaxMagnitude clamps emission magnitude; zero disables clamping.
	MaxMagnitude float64
	// Region, when set, restricts visibility to points inside the quad.
	Region *geometry.Quad
}

// Emission is a marker that moved far enough to trigger effects.
type Emission struct {
	Marker    Marker
	At        geometry.Point
	Magnitude float64
}

// Tracker holds the last known position of every marker. A marker without
// a position is absent.
type Tracker struct {
	mu   sync.Mutex
	last map[Marker]geometry.Point
}

// NewTracker creates a tracker with every marker absent.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[Marker]geometry.Point)}
}

// Step advances every marker by one frame and returns the emissions.
//
// A marker that becomes visible only records its position. A marker that
// stays visible emits when it moved more than the threshold, with the
// distance as magnitude, and its position is updated either way. Markers
// that are not visible, or missing from obs, become absent.
func (t *Tracker) Step(obs []Observation, p Params) []Emission {
	t.mu.Lock()
	defer t.mu.Unlock()

	var emissions []Emission
	seen := make(map[Marker]bool, len(obs))

	for _, o := range obs {
		visible := o.Visible && o.Point.Finite()
		if visible && p.Region != nil && !p.Region.Contains(o.Point) {
			visible = false
		}
		if !visible {
			continue
		}
		seen[o.Marker] = true

		prev, tracked := t.last[o.Marker]
		t.last[o.Marker] = o.Point
		if !tracked {
			continue
		}

		d := geometry.Distance(o.Point, prev)
		if d > p.Threshold {
			mag := d
			if p.MaxMagnitude > 0 {
				mag = math.Min(mag, p.MaxMagnitude)
			}
			emissions = append(emissions, Emission{Marker: o.Marker, At: o.Point, Magnitude: mag})
		}
	}

	for m := range t.last {
		if !seen[m] {
			delete(t.last, m)
		}
	}
	return emissions
}

// Last returns the recorded position of m.
func (t *Tracker) Last(m Marker) (geometry.Point, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.last[m]
	return p, ok
}

// Positions returns a copy of every present marker's position.
func (t *Tracker) Positions() map[Marker]geometry.Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Marker]geometry.Point, len(t.last))
	for m, p := range t.last {
		out[m] = p
	}
	return out
}

// Reset marks every marker absent.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.last)
}
