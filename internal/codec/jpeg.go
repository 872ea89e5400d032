package codec

import (
	"bytes"
	"image/jpeg"

	"github.com/pkg/errors"

	"github.com/rkusa/wimg/internal/rawimage"
)

// JPEGSeed disambiguates JPEG outputs in content hashes.
const JPEGSeed uint64 = 1

// JPEGCodec decodes and encodes JPEG using Go's standard library.
type JPEGCodec struct{}

func (c *JPEGCodec) Format() rawimage.Format { return rawimage.JPEG }
func (c *JPEGCodec) Seed() uint64            { return JPEGSeed }
func (c *JPEGCodec) Available() bool         { return true }

// Decode always yields RGB8; grayscale and CMYK sources are converted.
func (c *JPEGCodec) Decode(data []byte) (*rawimage.Image, error) {
	return guardDecode(rawimage.JPEG, func() (*rawimage.Image, error) {
		m, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, rawimage.DecodeError(rawimage.JPEG, errors.WithMessage(err, "read JPEG stream"))
		}
		if m.Bounds().Empty() {
			return nil, rawimage.DecodeError(rawimage.JPEG, errors.New("image has no pixels"))
		}
		return rawimage.FromImage(m, rawimage.PixelRGB8), nil
	})
}

func (c *JPEGCodec) Encode(img *rawimage.Image, opts Options) (*rawimage.Image, error) {
	if _, err := sourcePixels(img, rawimage.JPEG); err != nil {
		return nil, err
	}
	return guardEncode(rawimage.JPEG, func() (*rawimage.Image, error) {
		src, err := img.ToNRGBA("encode as JPEG")
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		buf.Grow(img.Len() / 8) // rough compressed size, avoids repeated grow

		// image/jpeg clamps quality to 1-100 itself.
		if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: opts.JPEG.Quality}); err != nil {
			return nil, rawimage.EncodeError(rawimage.JPEG, err)
		}
		return rawimage.New(buf.Bytes(), rawimage.JPEG, img.Width(), img.Height())
	})
}
