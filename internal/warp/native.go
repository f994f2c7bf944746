package warp

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/snoezelen/internal/geometry"
)

// Native warps through OpenCV's warpPerspective. The homography is handed
// over with WarpInverseMap so OpenCV pulls pixels exactly like CPU does.
type Native struct{}

// NewNative creates an OpenCV backed warper.
func NewNative() *Native {
	return &Native{}
}

// Warp implements Warper.
func (n *Native) Warp(src image.Image, inv geometry.Homography, w, h int) (*image.RGBA, error) {
	if err := checkSize(w, h); err != nil {
		return nil, err
	}
	in := toRGBA(src)
	sb := in.Rect

	mat, err := gocv.NewMatFromBytes(sb.Dy(), sb.Dx(), gocv.MatTypeCV8UC4, packed(in))
	if err != nil {
		return nil, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer mat.Close()

	out, err := n.WarpMat(mat, inv, w, h)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(dst.Pix, out.ToBytes())
	return dst, nil
}

// WarpMat warps a Mat of any channel layout, returning a new Mat the
// caller must close.
func (n *Native) WarpMat(src gocv.Mat, inv geometry.Homography, w, h int) (gocv.Mat, error) {
	if err := checkSize(w, h); err != nil {
		return gocv.NewMat(), err
	}
	m := HomographyMat(inv)
	defer m.Close()

	out := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(src, &out, m, image.Pt(w, h),
		gocv.InterpolationLinear|gocv.WarpInverseMap, gocv.BorderConstant, color.RGBA{0, 0, 0, 255})
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("warpPerspective produced an empty frame")
	}
	return out, nil
}

// Close implements Warper.
func (n *Native) Close() error { return nil }

// HomographyMat converts h into a 3×3 CV_64F Mat. The caller must close it.
func HomographyMat(h geometry.Homography) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for i, v := range h {
		m.SetDoubleAt(i/3, i%3, v)
	}
	return m
}

// packed returns the pixel bytes of img without row padding.
func packed(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == w*4 {
		return img.Pix[:w*h*4]
	}
	buf := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		buf = append(buf, img.Pix[y*img.Stride:y*img.Stride+w*4]...)
	}
	return buf
}
