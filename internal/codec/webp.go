package codec

import (
	"bytes"
	"image"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	xwebp "golang.org/x/image/webp"

	"github.com/rkusa/wimg/internal/rawimage"
)

// WebPSeed disambiguates WEBP outputs in content hashes.
const WebPSeed uint64 = 3

// WebPCodec encodes lossy WEBP through libwebp (cgo) and decodes with the
// pure Go x/image decoder.
type WebPCodec struct{}

func (c *WebPCodec) Format() rawimage.Format { return rawimage.WEBP }
func (c *WebPCodec) Seed() uint64            { return WebPSeed }
func (c *WebPCodec) Available() bool         { return true }

// Decode yields RGBA8 when the bitstream carries alpha, RGB8 otherwise.
func (c *WebPCodec) Decode(data []byte) (*rawimage.Image, error) {
	return guardDecode(rawimage.WEBP, func() (*rawimage.Image, error) {
		m, err := xwebp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, rawimage.DecodeError(rawimage.WEBP, errors.WithMessage(err, "read WEBP stream"))
		}
		pf := rawimage.PixelRGB8
		switch m.(type) {
		case *image.NYCbCrA, *image.NRGBA:
			pf = rawimage.PixelRGBA8
		}
		return rawimage.FromImage(m, pf), nil
	})
}

func (c *WebPCodec) Encode(img *rawimage.Image, opts Options) (*rawimage.Image, error) {
	pf, err := sourcePixels(img, rawimage.WEBP)
	if err != nil {
		return nil, err
	}
	return guardEncode(rawimage.WEBP, func() (*rawimage.Image, error) {
		src, err := img.ToNRGBA("encode as WEBP")
		if err != nil {
			return nil, err
		}

		quality := float32(clamp(opts.WebP.Quality, 0, 100))
		var data []byte
		if pf == rawimage.PixelRGB8 {
			data, err = webp.EncodeRGB(src, quality)
		} else {
			data, err = webp.EncodeRGBA(src, quality)
		}
		if err != nil {
			return nil, rawimage.EncodeError(rawimage.WEBP, err)
		}
		if len(data) == 0 {
			return nil, rawimage.EncodeError(rawimage.WEBP, errors.New("encoder produced no data"))
		}
		return rawimage.New(data, rawimage.WEBP, img.Width(), img.Height())
	})
}
