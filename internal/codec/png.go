package codec

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"

	"github.com/pkg/errors"

	"github.com/rkusa/wimg/internal/rawimage"
)

// PNGSeed disambiguates PNG outputs in content hashes.
const PNGSeed uint64 = 2

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ErrAnimatedPNG is the decode cause for APNG input.
var ErrAnimatedPNG = errors.New("animated PNGs are not supported")

// PNGCodec decodes and encodes PNG using Go's standard library.
type PNGCodec struct{}

func (c *PNGCodec) Format() rawimage.Format { return rawimage.PNG }
func (c *PNGCodec) Seed() uint64            { return PNGSeed }
func (c *PNGCodec) Available() bool         { return true }

// Decode yields RGB8 or RGBA8. 16-bit samples are reduced to 8 bits and
// palettes are expanded; plain grayscale is rejected.
func (c *PNGCodec) Decode(data []byte) (*rawimage.Image, error) {
	return guardDecode(rawimage.PNG, func() (*rawimage.Image, error) {
		animated, err := isAnimatedPNG(data)
		if err != nil {
			return nil, rawimage.DecodeError(rawimage.PNG, err)
		}
		if animated {
			return nil, rawimage.DecodeError(rawimage.PNG, ErrAnimatedPNG)
		}

		m, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, rawimage.DecodeError(rawimage.PNG, errors.WithMessage(err, "read PNG stream"))
		}

		var pf rawimage.PixelFormat
		switch src := m.(type) {
		case *image.RGBA, *image.RGBA64:
			pf = rawimage.PixelRGB8
		case *image.NRGBA, *image.NRGBA64:
			pf = rawimage.PixelRGBA8
		case *image.Paletted:
			pf = rawimage.PixelRGB8
			for _, entry := range src.Palette {
				if _, _, _, a := entry.RGBA(); a != 0xffff {
					pf = rawimage.PixelRGBA8
					break
				}
			}
		case *image.Gray, *image.Gray16:
			return nil, rawimage.DecodeError(rawimage.PNG, errors.New("unsupported color type: Grayscale"))
		default:
			return nil, rawimage.DecodeError(rawimage.PNG, errors.Errorf("unsupported color type: %T", m))
		}
		return rawimage.FromImage(m, pf), nil
	})
}

func (c *PNGCodec) Encode(img *rawimage.Image, _ Options) (*rawimage.Image, error) {
	if _, err := sourcePixels(img, rawimage.PNG); err != nil {
		return nil, err
	}
	return guardEncode(rawimage.PNG, func() (*rawimage.Image, error) {
		src, err := img.ToNRGBA("encode as PNG")
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		buf.Grow(img.Len() / 2)

		enc := &png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, src); err != nil {
			return nil, rawimage.EncodeError(rawimage.PNG, err)
		}
		return rawimage.New(buf.Bytes(), rawimage.PNG, img.Width(), img.Height())
	})
}

// isAnimatedPNG walks the chunk list up to the first IDAT and reports
// whether an acTL (animation control) chunk precedes it.
func isAnimatedPNG(data []byte) (bool, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return false, errors.New("not a PNG file")
	}
	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		switch typ {
		case "acTL":
			return true, nil
		case "IDAT", "IEND":
			return false, nil
		}
		pos += 8 + length + 4 // header, data, CRC
		if length < 0 || pos < 0 {
			return false, errors.New("invalid chunk length")
		}
	}
	return false, errors.New("truncated chunk list")
}
