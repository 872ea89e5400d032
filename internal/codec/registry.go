package codec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rkusa/wimg/internal/rawimage"
)

// Registry holds every codec and selects one per format.
type Registry struct {
	codecs   map[rawimage.Format]Codec
	decoders map[rawimage.Format]Decoder
}

// NewRegistry creates a registry with all built-in codecs. Availability of
// external encoders is probed lazily.
func NewRegistry() *Registry {
	r := &Registry{
		codecs:   make(map[rawimage.Format]Codec),
		decoders: make(map[rawimage.Format]Decoder),
	}

	all := []Codec{
		&AVIFCodec{},
		&WebPCodec{},
		&JPEGCodec{},
		&PNGCodec{},
	}

	for _, c := range all {
		r.Register(c)
	}

	return r
}

// Register adds c, replacing any codec for the same format. A codec that
// also implements Decoder becomes the decoder for its format.
func (r *Registry) Register(c Codec) {
	r.codecs[c.Format()] = c
	if d, ok := c.(Decoder); ok {
		r.decoders[c.Format()] = d
	}
}

// Get returns the codec for the given format, or nil.
func (r *Registry) Get(format rawimage.Format) Codec {
	return r.codecs[format]
}

// Decoder returns the decoder for the given format, or nil.
func (r *Registry) Decoder(format rawimage.Format) Decoder {
	return r.decoders[format]
}

// Available returns all usable output formats in priority order.
func (r *Registry) Available() []rawimage.Format {
	var result []rawimage.Format
	for _, f := range rawimage.EncodedFormats {
		if c, ok := r.codecs[f]; ok && c.Available() {
			result = append(result, f)
		}
	}
	return result
}

// ResolveFormats removes duplicates from requested and fails if any
// requested format has no usable encoder.
func (r *Registry) ResolveFormats(requested []rawimage.Format) ([]rawimage.Format, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("no output format specified")
	}

	var resolved []rawimage.Format
	var missing []string
	seen := map[rawimage.Format]bool{}

	for _, f := range requested {
		if seen[f] {
			continue
		}
		seen[f] = true
		c, ok := r.codecs[f]
		if !ok || !c.Available() {
			missing = append(missing, strings.ToLower(f.String()))
			continue
		}
		resolved = append(resolved, f)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("no encoder available for: %s", strings.Join(missing, ", "))
	}
	return resolved, nil
}

// inputExtensions maps recognized source file extensions to formats.
var inputExtensions = map[string]rawimage.Format{
	".jpg":  rawimage.JPEG,
	".jpeg": rawimage.JPEG,
	".png":  rawimage.PNG,
	".webp": rawimage.WEBP,
}

// IsInputExtension reports whether ext (with dot) names a decodable format.
func IsInputExtension(ext string) bool {
	_, ok := inputExtensions[strings.ToLower(ext)]
	return ok
}

// FormatForPath guesses the container format from the file extension.
func FormatForPath(path string) (rawimage.Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return 0, fmt.Errorf("%s must have an extension to guess the image format from", path)
	}
	f, ok := inputExtensions[strings.ToLower(ext)]
	if !ok {
		return 0, fmt.Errorf("unsupported image format: %s", strings.TrimPrefix(ext, "."))
	}
	return f, nil
}

// DecoderForPath returns the decoder matching path's extension.
func (r *Registry) DecoderForPath(path string) (Decoder, rawimage.Format, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return nil, 0, err
	}
	d := r.decoders[f]
	if d == nil {
		return nil, 0, fmt.Errorf("no decoder for %s", f)
	}
	return d, f, nil
}

// String returns a summary of available encoders.
func (r *Registry) String() string {
	avail := r.Available()
	if len(avail) == 0 {
		return "no encoders available"
	}
	names := make([]string, len(avail))
	for i, f := range avail {
		names[i] = strings.ToLower(f.String())
	}
	return fmt.Sprintf("encoders: %s", strings.Join(names, ", "))
}
