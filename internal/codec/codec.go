// Package codec adapts external image codecs to a uniform
// decode(bytes) -> rawimage.Image / encode(rawimage.Image, opts) -> bytes
// contract. Each codec declares a seed that disambiguates its outputs in
// content hashes.
package codec

import (
	"github.com/pkg/errors"

	"github.com/rkusa/wimg/internal/rawimage"
)

// Codec encodes raw images into one container format.
type Codec interface {
	// Format returns the container format produced by Encode.
	Format() rawimage.Format

	// Seed returns the hash seed for outputs of this codec.
	Seed() uint64

	// Encode converts an RGB8/RGBA8 image into the container format.
	// The returned image carries the input's dimensions.
	Encode(img *rawimage.Image, opts Options) (*rawimage.Image, error)

	// Available returns true if the encoder is ready to use.
	// External encoders (avifenc) may not be installed.
	Available() bool
}

// Decoder turns container bytes into a raw image.
type Decoder interface {
	Decode(data []byte) (*rawimage.Image, error)
}

// JPEGOptions configures JPEG encoding.
type JPEGOptions struct {
	Quality int // 0-100
}

// WebPOptions configures WEBP encoding.
type WebPOptions struct {
	Quality int // 0-100
}

// AVIFOptions configures AVIF encoding.
type AVIFOptions struct {
	Quality int // 0-100
	Speed   int // 1 (slow) - 10 (fast)
}

// Options holds the encode settings of every format. Each codec reads
// only its own section.
type Options struct {
	JPEG JPEGOptions
	WebP WebPOptions
	AVIF AVIFOptions
}

// DefaultOptions returns JPEG 80, WEBP 80, AVIF 60 at speed 5.
func DefaultOptions() Options {
	return Options{
		JPEG: JPEGOptions{Quality: 80},
		WebP: WebPOptions{Quality: 80},
		AVIF: AVIFOptions{Quality: 60, Speed: 5},
	}
}

// Normalize clamps qualities to 0-100 and the AVIF speed to 1-10.
func (o Options) Normalize() Options {
	o.JPEG.Quality = clamp(o.JPEG.Quality, 0, 100)
	o.WebP.Quality = clamp(o.WebP.Quality, 0, 100)
	o.AVIF.Quality = clamp(o.AVIF.Quality, 0, 100)
	o.AVIF.Speed = clamp(o.AVIF.Speed, 1, 10)
	return o
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// guardDecode runs fn and converts a panic from the underlying library into
// a decode error, so a codec fault never takes down the caller.
func guardDecode(format rawimage.Format, fn func() (*rawimage.Image, error)) (img *rawimage.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = rawimage.DecodeError(format, errors.Errorf("codec panic: %v", r))
		}
	}()
	return fn()
}

// guardEncode is guardDecode for the encode direction.
func guardEncode(format rawimage.Format, fn func() (*rawimage.Image, error)) (img *rawimage.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = rawimage.EncodeError(format, errors.Errorf("codec panic: %v", r))
		}
	}()
	return fn()
}

// sourcePixels validates that img can be fed to an encoder for format.
func sourcePixels(img *rawimage.Image, format rawimage.Format) (rawimage.PixelFormat, error) {
	return img.PixelFormat("encode as " + format.String())
}
