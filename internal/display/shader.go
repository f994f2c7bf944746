package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/ayusman/snoezelen/internal/geometry"
	"github.com/ayusman/snoezelen/internal/warp"
)

// warpShader samples the source at inv(x, y) for every destination pixel
// with bilinear filtering. Pixels mapping outside the source are opaque
// black, matching the CPU renderer.
var warpShader = []byte(`//kage:unit pixels

package main

var Row0 vec3
var Row1 vec3
var Row2 vec3
var SrcSize vec2

func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {
	p := vec3(floor(dstPos.xy-imageDstOrigin()), 1)
	w := dot(Row2, p)
	if abs(w) < 1e-9 {
		return vec4(0, 0, 0, 1)
	}
	s := vec2(dot(Row0, p), dot(Row1, p)) / w
	if s.x < 0 || s.y < 0 || s.x >= SrcSize.x || s.y >= SrcSize.y {
		return vec4(0, 0, 0, 1)
	}

	base := floor(s)
	f := s - base
	next := min(base+1, SrcSize-1)
	o := imageSrc0Origin() + vec2(0.5)

	c00 := imageSrc0At(o + base)
	c10 := imageSrc0At(o + vec2(next.x, base.y))
	c01 := imageSrc0At(o + vec2(base.x, next.y))
	c11 := imageSrc0At(o + next)
	return mix(mix(c00, c10, f.x), mix(c01, c11, f.x), f.y)
}
`)

// ShaderWarper is the GPU warp renderer. Warp must run on the ebiten game
// loop, which is where the window drives Engine.Tick.
type ShaderWarper struct {
	mu     sync.Mutex
	shader *ebiten.Shader
	src    *ebiten.Image
	dst    *ebiten.Image
}

// NewShaderWarper compiles the warp shader.
func NewShaderWarper() (*ShaderWarper, error) {
	sh, err := ebiten.NewShader(warpShader)
	if err != nil {
		return nil, fmt.Errorf("compile warp shader: %w", err)
	}
	return &ShaderWarper{shader: sh}, nil
}

// Warp renders src through inv into a new w×h image.
func (s *ShaderWarper) Warp(src image.Image, inv geometry.Homography, w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid destination size %dx%d", w, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shader == nil {
		return nil, fmt.Errorf("gpu: %w", warp.ErrUnavailable)
	}

	b := src.Bounds()
	s.src = reuse(s.src, b.Dx(), b.Dy())
	s.src.WritePixels(rgbaPix(src))
	s.dst = reuse(s.dst, w, h)
	s.dst.Clear()

	sw, sh := float32(b.Dx()), float32(b.Dy())
	fw, fh := float32(w), float32(h)
	vertices := []ebiten.Vertex{
		{DstX: 0, DstY: 0, SrcX: 0, SrcY: 0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: fw, DstY: 0, SrcX: sw, SrcY: 0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: 0, DstY: fh, SrcX: 0, SrcY: sh, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: fw, DstY: fh, SrcX: sw, SrcY: sh, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
	}
	op := &ebiten.DrawTrianglesShaderOptions{
		Uniforms: uniforms(inv, b.Dx(), b.Dy()),
		Images:   [4]*ebiten.Image{s.src},
	}
	s.dst.DrawTrianglesShader(vertices, []uint16{0, 1, 2, 1, 2, 3}, s.shader, op)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	s.dst.ReadPixels(out.Pix)
	return out, nil
}

// Close releases the GPU resources.
func (s *ShaderWarper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range []*ebiten.Image{s.src, s.dst} {
		if img != nil {
			img.Deallocate()
		}
	}
	if s.shader != nil {
		s.shader.Deallocate()
	}
	s.src, s.dst, s.shader = nil, nil, nil
	return nil
}

// uniforms splits inv into the row vectors the shader expects.
func uniforms(inv geometry.Homography, sw, sh int) map[string]any {
	f := inv.Float32()
	return map[string]any{
		"Row0":    f[0:3],
		"Row1":    f[3:6],
		"Row2":    f[6:9],
		"SrcSize": []float32{float32(sw), float32(sh)},
	}
}

func reuse(img *ebiten.Image, w, h int) *ebiten.Image {
	if img != nil && img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	if img != nil {
		img.Deallocate()
	}
	return ebiten.NewImage(w, h)
}

// rgbaPix returns tightly packed RGBA bytes of img.
func rgbaPix(img image.Image) []byte {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba.Pix
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out.Pix
}

// Warpers returns a renderer factory that adds the GPU renderer to the ones
// warp.New provides.
func Warpers() func(warp.Kind) (warp.Warper, error) {
	return func(kind warp.Kind) (warp.Warper, error) {
		if kind == warp.KindGPU {
			return NewShaderWarper()
		}
		return warp.New(kind)
	}
}
