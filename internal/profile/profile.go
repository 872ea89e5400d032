// Package profile resolves build parameters from built-in defaults, an
// optional TOML config file and named presets.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/rkusa/wimg/internal/codec"
	"github.com/rkusa/wimg/internal/manifest"
	"github.com/rkusa/wimg/internal/rawimage"
)

// DefaultConfigFile is looked up in the working directory when no
// explicit config path is given.
const DefaultConfigFile = "wimg.toml"

// Profile is a fully resolved set of build parameters.
type Profile struct {
	Name           string
	Width          uint32
	Height         uint32
	Densities      []uint32
	Formats        []rawimage.Format
	MaintainAspect bool
	Options        codec.Options
	Workers        int // 0 = NumCPU
}

// Settings is one layer of configuration. Unset fields leave the layer
// below untouched.
type Settings struct {
	Width          uint32   `toml:"width"`
	Height         uint32   `toml:"height"`
	PixelDensity   []uint32 `toml:"pixel_density"`
	Formats        []string `toml:"formats"`
	MaintainAspect *bool    `toml:"maintain_aspect"`
	JPEGQuality    *int     `toml:"jpeg_quality"`
	WebPQuality    *int     `toml:"webp_quality"`
	AVIFQuality    *int     `toml:"avif_quality"`
	AVIFSpeed      *int     `toml:"avif_speed"`
	Workers        *int     `toml:"workers"`
}

// Config is the contents of a wimg.toml file.
type Config struct {
	Defaults Settings            `toml:"defaults"`
	Presets  map[string]Settings `toml:"presets"`
}

func ptr[T any](v T) *T { return &v }

// Built-in presets. Presets of the same name in a config file replace them.
var builtins = map[string]Settings{
	"thumbnail": {
		Width:          320,
		Height:         320,
		PixelDensity:   []uint32{1, 2},
		Formats:        []string{"webp", "jpeg"},
		MaintainAspect: ptr(false),
	},
	"preview": {
		Width:          960,
		Height:         960,
		PixelDensity:   []uint32{1, 2},
		Formats:        []string{"webp", "jpeg"},
		MaintainAspect: ptr(true),
	},
	"hero": {
		Width:          1920,
		Height:         1080,
		PixelDensity:   []uint32{1, 2},
		Formats:        []string{"avif", "webp", "jpeg"},
		MaintainAspect: ptr(true),
		AVIFQuality:    ptr(65),
	},
}

// Default returns the built-in parameters: density 1, default encode
// options, no formats and no target size.
func Default() Profile {
	return Profile{
		Densities: []uint32{1},
		Options:   codec.DefaultOptions(),
	}
}

// Load reads a config file. An empty path looks for DefaultConfigFile in
// the working directory and returns an empty config when it is absent;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	file, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every layer of the config.
func (c *Config) Validate() error {
	if err := c.Defaults.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for name, s := range c.Presets {
		if strings.TrimSpace(name) == "" {
			return errors.New("preset with empty name")
		}
		if err := s.validate(); err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return nil
}

// PresetNames lists all preset names, built-in and configured, sorted.
func (c *Config) PresetNames() []string {
	seen := map[string]bool{}
	var names []string
	for name := range builtins {
		seen[name] = true
		names = append(names, name)
	}
	if c != nil {
		for name := range c.Presets {
			if !seen[name] {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (c *Config) preset(name string) (Settings, bool) {
	if c != nil {
		if s, ok := c.Presets[name]; ok {
			return s, true
		}
	}
	s, ok := builtins[name]
	return s, ok
}

// Resolve layers the built-in defaults, the config's [defaults] and the
// named preset (if any). c may be nil.
func (c *Config) Resolve(preset string) (Profile, error) {
	p := Default()
	if c != nil {
		if err := c.Defaults.apply(&p); err != nil {
			return Profile{}, fmt.Errorf("defaults: %w", err)
		}
	}
	if preset == "" {
		return p, nil
	}

	s, ok := c.preset(preset)
	if !ok {
		return Profile{}, fmt.Errorf("unknown preset %q (available: %s)", preset, strings.Join(c.PresetNames(), ", "))
	}
	if err := s.apply(&p); err != nil {
		return Profile{}, fmt.Errorf("preset %q: %w", preset, err)
	}
	p.Name = preset
	return p, nil
}

func (s Settings) validate() error {
	for _, f := range s.Formats {
		if _, err := rawimage.ParseFormat(f); err != nil {
			return err
		}
	}
	for _, q := range []struct {
		name string
		v    *int
	}{
		{"jpeg_quality", s.JPEGQuality},
		{"webp_quality", s.WebPQuality},
		{"avif_quality", s.AVIFQuality},
	} {
		if q.v != nil && (*q.v < 0 || *q.v > 100) {
			return fmt.Errorf("%s must be between 0 and 100, got %d", q.name, *q.v)
		}
	}
	if s.AVIFSpeed != nil && (*s.AVIFSpeed < 1 || *s.AVIFSpeed > 10) {
		return fmt.Errorf("avif_speed must be between 1 and 10, got %d", *s.AVIFSpeed)
	}
	for _, d := range s.PixelDensity {
		if d == 0 || d > manifest.MaxDensity {
			return fmt.Errorf("pixel_density must be between 1 and %d, got %d", manifest.MaxDensity, d)
		}
	}
	if s.Workers != nil && *s.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", *s.Workers)
	}
	return nil
}

func (s Settings) apply(p *Profile) error {
	if s.Width > 0 {
		p.Width = s.Width
	}
	if s.Height > 0 {
		p.Height = s.Height
	}
	if len(s.PixelDensity) > 0 {
		p.Densities = append([]uint32(nil), s.PixelDensity...)
	}
	if len(s.Formats) > 0 {
		formats, err := ParseFormats(s.Formats)
		if err != nil {
			return err
		}
		p.Formats = formats
	}
	if s.MaintainAspect != nil {
		p.MaintainAspect = *s.MaintainAspect
	}
	if s.JPEGQuality != nil {
		p.Options.JPEG.Quality = *s.JPEGQuality
	}
	if s.WebPQuality != nil {
		p.Options.WebP.Quality = *s.WebPQuality
	}
	if s.AVIFQuality != nil {
		p.Options.AVIF.Quality = *s.AVIFQuality
	}
	if s.AVIFSpeed != nil {
		p.Options.AVIF.Speed = *s.AVIFSpeed
	}
	if s.Workers != nil {
		p.Workers = *s.Workers
	}
	return nil
}

// ParseFormats parses format names, keeping the first occurrence of each.
func ParseFormats(names []string) ([]rawimage.Format, error) {
	var out []rawimage.Format
	seen := map[rawimage.Format]bool{}
	for _, name := range names {
		f, err := rawimage.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}
