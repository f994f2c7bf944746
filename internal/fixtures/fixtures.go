// Package fixtures generates synthetic camera frames for tests.
package fixtures

import (
	"image"
	"image/color"
)

// Gradient returns a w×h frame whose red channel grows left to right and
// green channel top to bottom, so every pixel position is recognisable.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: 64,
				A: 255,
			})
		}
	}
	return img
}

// Checkerboard returns a w×h frame of size×size black and white cells.
func Checkerboard(w, h, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if (x/size+y/size)%2 == 0 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// MovingBlock returns n frames with a white square sliding right by step
// pixels per frame over a black background.
func MovingBlock(w, h, n, step int) []image.Image {
	frames := make([]image.Image, n)
	side := h / 4
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
		x0 := (i * step) % max(w-side, 1)
		for y := h/2 - side/2; y < h/2+side/2; y++ {
			for x := x0; x < x0+side; x++ {
				img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
		frames[i] = img
	}
	return frames
}

// Repeat returns img n times.
func Repeat(img image.Image, n int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = img
	}
	return frames
}
