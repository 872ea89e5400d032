// Package rawimage defines the value passed between every stage of the
// transcoding pipeline: a byte buffer, a format tag and its dimensions.
//
// An Image has exactly one owner. New takes ownership of the buffer it is
// given; the caller must not touch that slice afterwards. Operations never
// mutate their input, they return a freshly allocated Image, so a decoded
// source can be shared read-only between goroutines.
package rawimage

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Image is an owned pixel or container buffer. For raw formats the buffer
// holds width*height*bpp bytes, row-major without padding. For encoded
// formats it is an opaque stream and width/height describe the pixels it
// was produced from.
type Image struct {
	buf    []byte
	format Format
	width  uint32
	height uint32
}

// New wraps buf without copying it.
func New(buf []byte, format Format, width, height uint32) (*Image, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("unknown image format %d", uint8(format))
	}
	if format.IsRaw() {
		if width == 0 || height == 0 {
			return nil, fmt.Errorf("invalid %s dimensions %dx%d", format, width, height)
		}
		want := uint64(width) * uint64(height) * uint64(PixelFormat(format).BytesPerPixel())
		if uint64(len(buf)) != want {
			return nil, fmt.Errorf("%s buffer is %d bytes, want %d for %dx%d", format, len(buf), want, width, height)
		}
	}
	return &Image{buf: buf, format: format, width: width, height: height}, nil
}

func (img *Image) Bytes() []byte  { return img.buf }
func (img *Image) Len() int       { return len(img.buf) }
func (img *Image) Format() Format { return img.format }
func (img *Image) Width() uint32  { return img.width }
func (img *Image) Height() uint32 { return img.height }

// Released reports whether Release has been called (or img is nil).
func (img *Image) Released() bool {
	return img == nil || img.buf == nil
}

// Release drops the buffer. Any later operation on img fails with a
// null pointer error.
func (img *Image) Release() {
	if img == nil {
		return
	}
	img.buf = nil
	img.width, img.height = 0, 0
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	buf := make([]byte, len(img.buf))
	copy(buf, img.buf)
	return &Image{buf: buf, format: img.format, width: img.width, height: img.height}
}

// PixelFormat returns the channel layout for raw images. op names the
// operation for the Process error returned on encoded images.
func (img *Image) PixelFormat(op string) (PixelFormat, error) {
	if img.Released() {
		return 0, NullPtrError()
	}
	if !img.format.IsRaw() {
		return 0, ProcessError(op, img.format)
	}
	return PixelFormat(img.format), nil
}

// ToNRGBA exposes raw pixels as an *image.NRGBA. RGBA8 buffers are shared,
// not copied, so the result must be treated as read-only.
func (img *Image) ToNRGBA(op string) (*image.NRGBA, error) {
	pf, err := img.PixelFormat(op)
	if err != nil {
		return nil, err
	}
	w, h := int(img.width), int(img.height)
	rect := image.Rect(0, 0, w, h)
	if pf == PixelRGBA8 {
		return &image.NRGBA{Pix: img.buf, Stride: 4 * w, Rect: rect}, nil
	}

	dst := image.NewNRGBA(rect)
	src := img.buf
	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		dst.Pix[j] = src[i]
		dst.Pix[j+1] = src[i+1]
		dst.Pix[j+2] = src[i+2]
		dst.Pix[j+3] = 0xff
	}
	return dst, nil
}

// FromImage converts any image.Image into a raw Image with the given
// layout. Alpha is dropped for RGB8. The result never shares memory with m.
func FromImage(m image.Image, pf PixelFormat) *Image {
	nrgba, ok := m.(*image.NRGBA)
	owned := false
	if !ok || nrgba.Rect.Min != (image.Point{}) || nrgba.Stride != 4*nrgba.Rect.Dx() {
		nrgba = imaging.Clone(m)
		owned = true
	}
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()

	if pf == PixelRGBA8 {
		pix := nrgba.Pix[:w*h*4]
		if !owned {
			pix = bytes.Clone(pix)
		}
		return &Image{buf: pix, format: RGBA8, width: uint32(w), height: uint32(h)}
	}

	buf := make([]byte, w*h*3)
	src := nrgba.Pix
	for i, j := 0, 0; j < len(buf); i, j = i+4, j+3 {
		buf[j] = src[i]
		buf[j+1] = src[i+1]
		buf[j+2] = src[i+2]
	}
	return &Image{buf: buf, format: RGB8, width: uint32(w), height: uint32(h)}
}
