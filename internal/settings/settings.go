// Package settings holds the runtime configuration read by the frame loop.
// A Settings value is never mutated after it is published; changes produce
// a new value.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/geometry"
	"github.com/ayusman/snoezelen/internal/particle"
	"github.com/ayusman/snoezelen/internal/tracking"
	"github.com/ayusman/snoezelen/internal/warp"
)

// ErrUnknownSetting is returned by Apply for a key that does not exist.
var ErrUnknownSetting = errors.New("unknown setting")

// Mode selects how the quad is used.
type Mode string

const (
	// ModeWarp rectifies the quad onto the canvas and detects on the result.
	ModeWarp Mode = "warp"
	// ModeGate detects on the raw frame and ignores markers outside the quad.
	ModeGate Mode = "gate"
	// ModeRaw ignores the quad.
	ModeRaw Mode = "raw"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeWarp, ModeGate, ModeRaw:
		return true
	}
	return false
}

// Settings is one configuration snapshot.
type Settings struct {
	Effect         particle.EffectType     `json:"effect"`
	EffectsEnabled bool                    `json:"effectsEnabled"`
	Threshold      float64                 `json:"threshold"`
	ThresholdScale tracking.ThresholdScale `json:"thresholdScale"`
	MaxMagnitude   float64                 `json:"maxMagnitude"`
	ParticleCount  int                     `json:"particleCount"`
	MinScore       float64                 `json:"minScore"`
	Detector       detector.Type           `json:"detector"`
	Markers        []tracking.Marker       `json:"markers"`
	Mode           Mode                    `json:"mode"`
	Warper         warp.Kind               `json:"warper"`
	Mirrored       bool                    `json:"mirrored"`
	Quad           geometry.Quad           `json:"quad"`
	CanvasWidth    int                     `json:"canvasWidth"`
	CanvasHeight   int                     `json:"canvasHeight"`
	Audio          bool                    `json:"audio"`
}

// Default returns the settings used on first start for a 640x480 camera.
func Default() Settings {
	return Settings{
		Effect:         particle.Normal,
		EffectsEnabled: true,
		Threshold:      5,
		ThresholdScale: tracking.ScaleNone,
		MaxMagnitude:   100,
		ParticleCount:  10,
		MinScore:       0.3,
		Detector:       detector.TypeMoveNet,
		Markers:        []tracking.Marker{tracking.LeftHand, tracking.RightHand},
		Mode:           ModeWarp,
		Warper:         warp.KindCPU,
		Mirrored:       true,
		Quad:           geometry.RectQuad(640, 480),
		CanvasWidth:    1280,
		CanvasHeight:   720,
		Audio:          true,
	}
}

// Validate checks every field.
func (s Settings) Validate() error {
	var errs []error
	if !s.Effect.Valid() {
		errs = append(errs, fmt.Errorf("effect: invalid %d", s.Effect))
	}
	if s.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold: must be >= 0, got %v", s.Threshold))
	}
	if _, err := tracking.ParseThresholdScale(string(s.ThresholdScale)); err != nil {
		errs = append(errs, fmt.Errorf("thresholdScale: %w", err))
	}
	if s.MaxMagnitude < 0 {
		errs = append(errs, fmt.Errorf("maxMagnitude: must be >= 0, got %v", s.MaxMagnitude))
	}
	if s.ParticleCount < 0 || s.ParticleCount > 500 {
		errs = append(errs, fmt.Errorf("particleCount: must be in [0,500], got %d", s.ParticleCount))
	}
	if s.MinScore < 0 || s.MinScore > 1 {
		errs = append(errs, fmt.Errorf("minScore: must be in [0,1], got %v", s.MinScore))
	}
	if !s.Detector.Valid() {
		errs = append(errs, fmt.Errorf("detector: unknown %q", s.Detector))
	}
	for _, m := range s.Markers {
		if _, err := tracking.ParseMarker(string(m)); err != nil {
			errs = append(errs, fmt.Errorf("markers: %w", err))
		}
	}
	if !s.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode: unknown %q", s.Mode))
	}
	if _, err := warp.ParseKind(string(s.Warper)); err != nil {
		errs = append(errs, fmt.Errorf("warper: %w", err))
	}
	if s.Quad.Degenerate() {
		errs = append(errs, fmt.Errorf("quad: degenerate %s", s.Quad))
	}
	if s.CanvasWidth <= 0 || s.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas: invalid size %dx%d", s.CanvasWidth, s.CanvasHeight))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	s.Markers = slices.Clone(s.Markers)
	return s
}

// MarkerEnabled reports whether m is tracked.
func (s Settings) MarkerEnabled(m tracking.Marker) bool {
	return slices.Contains(s.Markers, m)
}

// Keys returns the names accepted by Apply.
func Keys() []string {
	fields, _ := Default().Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Apply returns a copy of s with the JSON encoded value stored under key.
// s itself is not modified. The result is validated.
func (s Settings) Apply(key string, value json.RawMessage) (Settings, error) {
	return s.ApplyAll(map[string]json.RawMessage{key: value})
}

// ApplyAll is Apply for several keys at once. Every key is set before the
// result is validated, so either all of values take effect or none does.
func (s Settings) ApplyAll(values map[string]json.RawMessage) (Settings, error) {
	fields, err := s.Fields()
	if err != nil {
		return s, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if _, ok := fields[k]; !ok {
			return s, fmt.Errorf("%w: %q", ErrUnknownSetting, k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fields[k] = values[k]
	}

	label := strings.Join(keys, ",")
	raw, err := json.Marshal(fields)
	if err != nil {
		return s, fmt.Errorf("%s: %w", label, err)
	}
	var next Settings
	if err := json.Unmarshal(raw, &next); err != nil {
		return s, fmt.Errorf("%s: %w", label, err)
	}
	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

// Fields returns every setting keyed by its Apply name.
func (s Settings) Fields() (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return fields, nil
}
