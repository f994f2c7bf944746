// Package warp resamples video frames through a homography into the
// projector canvas.
package warp

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// ErrUnavailable is returned by New for renderers that need a graphics
// context the caller has to supply itself.
var ErrUnavailable = errors.New("warp: renderer unavailable")

// Warper resamples src into a new w×h image. Destination pixel (x, y)
// takes the bilinear sample of src at inv(x, y); pixels that map outside
// src are opaque black.
type Warper interface {
	Warp(src image.Image, inv geometry.Homography, w, h int) (*image.RGBA, error)
	Close() error
}

// Kind selects a Warper implementation.
type Kind string

const (
	KindCPU    Kind = "cpu"
	KindNative Kind = "native"
	KindGPU    Kind = "gpu"
)

// ParseKind validates a renderer name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCPU, KindNative, KindGPU:
		return k, nil
	}
	return "", fmt.Errorf("unknown warp renderer %q", s)
}

// New returns the renderer for kind. The GPU renderer lives with the
// projector window and is not constructed here.
func New(kind Kind) (Warper, error) {
	switch kind {
	case KindCPU, "":
		return NewCPU(0), nil
	case KindNative:
		return NewNative(), nil
	case KindGPU:
		return nil, fmt.Errorf("%s: %w", kind, ErrUnavailable)
	}
	return nil, fmt.Errorf("unknown warp renderer %q", kind)
}

// toRGBA returns src as an *image.RGBA with origin (0, 0), copying only
// when needed.
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, src, b.Min, draw.Src)
	return rgba
}

func checkSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid destination size %dx%d", w, h)
	}
	return nil
}
