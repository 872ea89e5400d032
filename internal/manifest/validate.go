package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rkusa/wimg/internal/hasher"
)

// ValidateOptions controls which checks Validate runs beyond the schema.
type ValidateOptions struct {
	// OutDir resolves output paths. Empty skips file existence checks.
	OutDir string

	// BaseDir resolves image keys. When set together with Seed, each
	// output's hash is recomputed from its source.
	BaseDir string

	// Seed returns the combined hash seed for a MIME type.
	Seed func(mime string) (uint64, bool)
}

// Validate checks m and returns one message per problem, in stable order.
func Validate(m *Manifest, opts ValidateOptions) []string {
	var errs []string
	snap := m.Snapshot()

	images := make([]string, 0, len(snap))
	for k := range snap {
		images = append(images, k)
	}
	sort.Strings(images)

	for _, image := range images {
		variants := snap[image]
		if len(variants) == 0 {
			errs = append(errs, fmt.Sprintf("image %q: no variants", image))
			continue
		}

		sourceHashes := map[uint64]uint64{}
		for _, name := range sortedKeys(variants) {
			v := variants[name]
			prefix := fmt.Sprintf("image %q variant %q", image, name)

			if v.Width == 0 || v.Height == 0 {
				errs = append(errs, fmt.Sprintf("%s: invalid dimensions %dx%d", prefix, v.Width, v.Height))
			}
			if len(v.Formats) == 0 {
				errs = append(errs, fmt.Sprintf("%s: no formats", prefix))
			}

			seenPaths := map[string]bool{}
			for _, mime := range sortedKeys(v.Formats) {
				if !strings.HasPrefix(mime, "image/") {
					errs = append(errs, fmt.Sprintf("%s: invalid MIME type %q", prefix, mime))
				}
				densities := v.Formats[mime]
				for _, label := range sortedKeys(densities) {
					path := densities[label]
					where := fmt.Sprintf("%s %s %s", prefix, mime, label)

					density, err := ParseDensityLabel(label)
					if err != nil {
						errs = append(errs, fmt.Sprintf("%s: %v", where, err))
					}
					if path == "" {
						errs = append(errs, fmt.Sprintf("%s: missing path", where))
						continue
					}
					if seenPaths[path] {
						errs = append(errs, fmt.Sprintf("%s: duplicate path %q", where, path))
					}
					seenPaths[path] = true

					_, hash, nameDensity, err := ParseOutputName(path)
					if err != nil {
						errs = append(errs, fmt.Sprintf("%s: %v", where, err))
					} else if density != 0 && nameDensity != density {
						errs = append(errs, fmt.Sprintf("%s: file name density %dx does not match", where, nameDensity))
					}

					if opts.OutDir != "" {
						if _, err := os.Stat(filepath.Join(opts.OutDir, filepath.FromSlash(path))); err != nil {
							errs = append(errs, fmt.Sprintf("%s: file not found: %s", where, path))
						}
					}

					if hash != "" && opts.BaseDir != "" && opts.Seed != nil {
						if msg := checkHash(opts, image, name, mime, hash, sourceHashes); msg != "" {
							errs = append(errs, fmt.Sprintf("%s: %s", where, msg))
						}
					}
				}
			}
		}
	}
	return errs
}

// checkHash recomputes the content hash of image for mime/variant and
// compares it with the one embedded in the output name. cache holds source
// hashes per seed.
func checkHash(opts ValidateOptions, image, variant, mime, want string, cache map[uint64]uint64) string {
	seed, ok := opts.Seed(mime)
	if !ok {
		return fmt.Sprintf("no seed for %s", mime)
	}
	sum, ok := cache[seed]
	if !ok {
		f, err := os.Open(filepath.Join(opts.BaseDir, filepath.FromSlash(image)))
		if err != nil {
			return fmt.Sprintf("source not readable: %v", err)
		}
		sum, err = hasher.HashReader(f, seed)
		f.Close()
		if err != nil {
			return fmt.Sprintf("hash source: %v", err)
		}
		cache[seed] = sum
	}
	if got := hasher.Hex(hasher.WithVariant(sum, variant, seed)); got != want {
		return fmt.Sprintf("stale output: source hash is %s, file has %s", got, want)
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
