// Package particle provides the pooled particle simulation that renders the
// visual feedback for tracked movement.
package particle

import (
	"fmt"
	"strings"
)

// EffectType selects the physics and drawing rule of a particle.
type EffectType int

const (
	Normal EffectType = iota
	Sparkle
	Fire
	Bubbles
	Snow
	Holiday
	GeometricSnow
	GiftBox

	numEffects
)

var effectNames = [numEffects]string{
	Normal:        "normal",
	Sparkle:       "sparkle",
	Fire:          "fire",
	Bubbles:       "bubbles",
	Snow:          "snow",
	Holiday:       "holiday",
	GeometricSnow: "geometric-snow",
	GiftBox:       "gift-box",
}

// Effects lists every effect type in declaration order.
func Effects() []EffectType {
	out := make([]EffectType, 0, numEffects)
	for t := EffectType(0); t < numEffects; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is one of the declared effect types.
func (t EffectType) Valid() bool {
	return t >= 0 && t < numEffects
}

// String returns the effect name used in settings and remote messages.
func (t EffectType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("effect(%d)", int(t))
	}
	return effectNames[t]
}

// ParseEffect converts a name such as "fire" or "GiftBox" into an EffectType.
func ParseEffect(s string) (EffectType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")
	for t, name := range effectNames {
		if norm == name || norm == strings.ReplaceAll(name, "-", "") {
			return EffectType(t), nil
		}
	}
	return Normal, fmt.Errorf("unknown effect %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t EffectType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid effect %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EffectType) UnmarshalText(b []byte) error {
	v, err := ParseEffect(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
