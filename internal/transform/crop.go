// Package transform implements the geometric operations of the pipeline:
// centered crop and aspect-aware resize of raw RGB8/RGBA8 images.
package transform

import (
	"github.com/rkusa/wimg/internal/rawimage"
)

// Fit selects how a crop box is placed inside the source.
type Fit uint8

const (
	// Contain centers the box, discarding equal margins on both sides.
	Contain Fit = iota
)

// offsets returns the top-left corner of a w x h box. Contain is the only
// fit.
func (f Fit) offsets(srcW, srcH, w, h uint32) (x, y uint32) {
	return (srcW - w) / 2, (srcH - h) / 2
}

// Crop copies a width x height region out of img. The source is not
// modified.
func Crop(img *rawimage.Image, width, height uint32, fit Fit) (*rawimage.Image, error) {
	pf, err := img.PixelFormat("crop")
	if err != nil {
		return nil, err
	}
	srcW, srcH := img.Width(), img.Height()
	if width == 0 || height == 0 || width > srcW || height > srcH {
		return nil, rawimage.CropOutOfBoundsError()
	}

	x, y := fit.offsets(srcW, srcH, width, height)
	bpp := pf.BytesPerPixel()
	srcStride := int(srcW) * bpp
	rowLen := int(width) * bpp

	src := img.Bytes()
	dst := make([]byte, 0, rowLen*int(height))
	for row := 0; row < int(height); row++ {
		start := (int(y)+row)*srcStride + int(x)*bpp
		dst = append(dst, src[start:start+rowLen]...)
	}

	return rawimage.New(dst, pf.Format(), width, height)
}
