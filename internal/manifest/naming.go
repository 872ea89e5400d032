package manifest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// MaxDensity is the largest pixel density a build accepts.
const MaxDensity = 255

// DensityLabel renders a pixel density as its manifest key, e.g. "2x".
func DensityLabel(density uint32) string {
	return strconv.FormatUint(uint64(density), 10) + "x"
}

var densitySuffix = regexp.MustCompile(`^[1-9][0-9]*x$`)

// ParseDensityLabel is the inverse of DensityLabel. Zero is rejected.
func ParseDensityLabel(label string) (uint32, error) {
	num, ok := strings.CutSuffix(label, "x")
	if !ok {
		return 0, fmt.Errorf("density label %q: missing x suffix", label)
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("density label %q: not a positive integer", label)
	}
	return uint32(n), nil
}

// OutputName returns the file name for an output of the source named
// stem: "{stem}-{hash}.{ext}", with "@{n}x" before the extension for
// densities above 1.
func OutputName(stem, hash string, density uint32, ext string) string {
	if density > 1 {
		return fmt.Sprintf("%s-%s@%dx.%s", stem, hash, density, ext)
	}
	return fmt.Sprintf("%s-%s.%s", stem, hash, ext)
}

// ParseOutputName splits a name produced by OutputName. density is 1 when
// the name carries no suffix. An "@" is only a density marker when it is
// followed by a label like "2x"; otherwise it belongs to the stem.
func ParseOutputName(name string) (stem, hash string, density uint32, err error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	density = 1
	if at := strings.LastIndexByte(base, '@'); at >= 0 && densitySuffix.MatchString(base[at+1:]) {
		density, err = ParseDensityLabel(base[at+1:])
		if err != nil {
			return "", "", 0, fmt.Errorf("output name %q: %w", name, err)
		}
		base = base[:at]
	}

	dash := strings.LastIndexByte(base, '-')
	if dash < 0 {
		return "", "", 0, fmt.Errorf("output name %q: missing hash", name)
	}
	stem, hash = base[:dash], base[dash+1:]
	if len(hash) != 16 {
		return "", "", 0, fmt.Errorf("output name %q: hash %q is not 16 hex chars", name, hash)
	}
	if _, perr := strconv.ParseUint(hash, 16, 64); perr != nil {
		return "", "", 0, fmt.Errorf("output name %q: hash %q is not hex", name, hash)
	}
	return stem, hash, density, nil
}
