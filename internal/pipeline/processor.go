package pipeline

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rkusa/wimg/internal/codec"
	"github.com/rkusa/wimg/internal/hasher"
	"github.com/rkusa/wimg/internal/manifest"
	"github.com/rkusa/wimg/internal/rawimage"
	"github.com/rkusa/wimg/internal/transform"
)

// OutputPath returns the slash-separated output path, relative to the
// output directory, for source rel: the source's directory is mirrored
// and the name becomes "{stem}-{hash}[@{n}x].{ext}".
func OutputPath(rel, hash string, density uint32, ext string) string {
	dir, name := path.Split(rel)
	stem := strings.TrimSuffix(name, path.Ext(name))
	return dir + manifest.OutputName(stem, hash, density, ext)
}

// Seed returns the combined hash seed for outputs in format.
func Seed(c codec.Codec) uint64 {
	return transform.Seed() + c.Seed()
}

// SeedForMIME is Seed keyed by MIME type, as stored in manifests.
func SeedForMIME(registry *codec.Registry, mime string) (uint64, bool) {
	for _, f := range rawimage.EncodedFormats {
		if f.MimeType() == mime {
			if c := registry.Get(f); c != nil {
				return Seed(c), true
			}
		}
	}
	return 0, false
}

// decode reads and decodes one source, then fans out one resize per
// density. The source bytes and decoded image are shared read-only by all
// dependents.
func (r *run) decode(src Source) error {
	log := r.p.log.With("image", src.RelPath)
	log.Debug("processing")

	data, err := os.ReadFile(src.AbsPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src.RelPath, err)
	}

	dec := r.p.registry.Decoder(src.Format)
	if dec == nil {
		return fmt.Errorf("unsupported image format: %s", strings.ToLower(src.Format.String()))
	}
	img, err := dec.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src.RelPath, err)
	}
	log.Debug("decoded", "width", img.Width(), "height", img.Height(), "pixels", img.Format().String())

	for _, d := range r.p.densities {
		r.spawn(func() error { return r.resize(src, data, img, d) })
	}
	return nil
}

// resize scales the decoded image for one density and fans out one encode
// per format.
func (r *run) resize(src Source, data []byte, img *rawimage.Image, density uint32) error {
	cfg := r.p.cfg
	r.p.log.Debug("resizing", "image", src.RelPath, "density", density)

	resized, err := transform.Resize(img, scaled(cfg.Width, density), scaled(cfg.Height, density), cfg.MaintainAspect)
	if err != nil {
		return fmt.Errorf("failed to resize %s: %w", src.RelPath, err)
	}

	variant := ""
	if cfg.Manifest != nil {
		variant = cfg.Variant
	}

	for _, f := range r.p.formats {
		c := r.p.registry.Get(f)
		seed := Seed(c)
		hash := hasher.Hex(hasher.Compose(data, variant, seed))
		out := OutputPath(src.RelPath, hash, density, f.Extension())
		if !r.claim(out) {
			continue
		}
		r.spawn(func() error { return r.encode(src, resized, density, c, out) })
	}
	return nil
}

// scaled multiplies a target dimension by density, saturating at the
// uint32 range. Resize clamps the result to the source size anyway.
func scaled(v, density uint32) uint32 {
	return uint32(min(uint64(v)*uint64(density), math.MaxUint32))
}

// encode writes one output file and records it in the manifest.
func (r *run) encode(src Source, img *rawimage.Image, density uint32, c codec.Codec, out string) error {
	cfg := r.p.cfg
	f := c.Format()

	encoded, err := c.Encode(img, cfg.Options)
	if err != nil {
		return fmt.Errorf("failed to encode %s as %s: %w", src.RelPath, strings.ToLower(f.String()), err)
	}

	dst := filepath.Join(cfg.OutDir, filepath.FromSlash(out))
	r.p.log.Debug("writing", "path", dst, "bytes", encoded.Len())
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return rawimage.IOError(filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, encoded.Bytes(), 0o644); err != nil {
		return rawimage.IOError(dst, err)
	}

	if cfg.Manifest != nil {
		cfg.Manifest.Upsert(src.RelPath, cfg.Variant,
			encoded.Width()/density, encoded.Height()/density,
			f.MimeType(), density, out)
	}

	r.record(Output{
		Source:  src.RelPath,
		Density: density,
		Format:  f,
		Path:    out,
		Width:   encoded.Width(),
		Height:  encoded.Height(),
		Size:    int64(encoded.Len()),
	})
	return nil
}
