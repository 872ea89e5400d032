package rawimage

import (
	"fmt"
	"strings"
)

// Format tags the contents of an Image buffer. RGB8 and RGBA8 are raw
// pixel data; the rest are opaque encoded containers.
type Format uint8

const (
	RGB8  Format = 1
	RGBA8 Format = 2
	JPEG  Format = 3
	PNG   Format = 4
	WEBP  Format = 5
	AVIF  Format = 6
)

// EncodedFormats lists the container formats in CLI priority order.
var EncodedFormats = []Format{AVIF, WEBP, JPEG, PNG}

func (f Format) String() string {
	switch f {
	case RGB8:
		return "RGB8"
	case RGBA8:
		return "RGBA8"
	case JPEG:
		return "JPEG"
	case PNG:
		return "PNG"
	case WEBP:
		return "WEBP"
	case AVIF:
		return "AVIF"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// IsRaw reports whether the format holds uncompressed pixels.
func (f Format) IsRaw() bool {
	return f == RGB8 || f == RGBA8
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	return f >= RGB8 && f <= AVIF
}

// Extension returns the file extension (without dot) used for encoded output.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return "jpg"
	case PNG:
		return "png"
	case WEBP:
		return "webp"
	case AVIF:
		return "avif"
	default:
		return ""
	}
}

// MimeType returns the media type used as manifest bucket key.
func (f Format) MimeType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case WEBP:
		return "image/webp"
	case AVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat maps a user supplied format name to an encoded Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "avif":
		return AVIF, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WEBP, nil
	default:
		return 0, fmt.Errorf("invalid output format %q", s)
	}
}

// PixelFormat is the channel layout of raw image data.
type PixelFormat uint8

const (
	PixelRGB8  PixelFormat = PixelFormat(RGB8)
	PixelRGBA8 PixelFormat = PixelFormat(RGBA8)
)

// BytesPerPixel returns 3 for RGB8 and 4 for RGBA8.
func (p PixelFormat) BytesPerPixel() int {
	if p == PixelRGBA8 {
		return 4
	}
	return 3
}

// Format returns the Image format tag matching p.
func (p PixelFormat) Format() Format {
	return Format(p)
}

func (p PixelFormat) String() string {
	return Format(p).String()
}
