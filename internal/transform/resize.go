package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/rkusa/wimg/internal/rawimage"
)

// ResizeSeed disambiguates resized outputs in content hashes.
const ResizeSeed uint64 = 1

// Seed returns the hash seed of the resize stage.
func Seed() uint64 { return ResizeSeed }

// epsilon is the float64 machine epsilon; aspects closer than this are
// considered equal.
const epsilon = 2.220446049250313e-16

// Resize scales img down to at most width x height. It never upscales.
//
// When the source and target aspect ratios differ, maintainAspect shrinks
// the target box to the source aspect; otherwise the source is first
// cropped (Contain) to the target aspect so the result fills the box.
func Resize(img *rawimage.Image, width, height uint32, maintainAspect bool) (*rawimage.Image, error) {
	pf, err := img.PixelFormat("resize")
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, rawimage.ResizeError(errors.Errorf("invalid target size %dx%d", width, height))
	}

	srcW, srcH := img.Width(), img.Height()
	width = min(width, srcW)
	height = min(height, srcH)

	src := img
	aspectBefore := float64(srcW) / float64(srcH)
	aspectAfter := float64(width) / float64(height)

	if math.Abs(aspectBefore-aspectAfter) >= epsilon {
		if maintainAspect {
			width, height = fitAspect(width, height, aspectBefore)
		} else {
			cw, ch := containBox(srcW, srcH, aspectAfter)
			src, err = Crop(img, cw, ch, Contain)
			if err != nil {
				return nil, err
			}
		}
	}

	return resample(src, pf, width, height)
}

// fitAspect shrinks the box width x height along one axis so that it has
// the given aspect.
func fitAspect(width, height uint32, aspect float64) (uint32, uint32) {
	if aspect > float64(width)/float64(height) {
		height = atLeastOne(math.Round(float64(width) / aspect))
	} else {
		width = atLeastOne(math.Round(float64(height) * aspect))
	}
	return width, height
}

// containBox returns the largest region of a srcW x srcH image with the
// given aspect.
func containBox(srcW, srcH uint32, aspect float64) (uint32, uint32) {
	if float64(srcW)/float64(srcH) > aspect {
		return min(atLeastOne(math.Round(float64(srcH)*aspect)), srcW), srcH
	}
	return srcW, min(atLeastOne(math.Round(float64(srcW)/aspect)), srcH)
}

func atLeastOne(v float64) uint32 {
	if v < 1 {
		return 1
	}
	return uint32(v)
}

// scale is the resampling kernel behind Resize.
var scale = func(src image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(src, width, height, imaging.Linear)
}

func resample(img *rawimage.Image, pf rawimage.PixelFormat, width, height uint32) (out *rawimage.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = rawimage.ResizeError(errors.Errorf("resampler panic: %v", r))
		}
	}()

	src, err := img.ToNRGBA("resize")
	if err != nil {
		return nil, err
	}
	dst := scale(src, int(width), int(height))
	if dst.Rect.Dx() != int(width) || dst.Rect.Dy() != int(height) {
		return nil, rawimage.ResizeError(errors.Errorf("resampler produced %dx%d, want %dx%d",
			dst.Rect.Dx(), dst.Rect.Dy(), width, height))
	}
	return rawimage.FromImage(dst, pf), nil
}
