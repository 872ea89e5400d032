// Package manifest records every output of a build, keyed by source image
// and variant name:
//
//	{ "<image>": { "<variant>": { "width": W, "height": H,
//	    "formats": { "<mime>": { "<n>x": "<output path>" } } } } }
//
// Image keys are relative to the base directory, output paths relative to
// the output directory. Width and height are the density-normalized (1x)
// dimensions.
package manifest

import (
	"encoding/json"
	"sort"
	"sync"
)

// Variant is one named size of a source image and all files produced for it.
type Variant struct {
	Width   uint32                       `json:"width"`
	Height  uint32                       `json:"height"`
	Formats map[string]map[string]string `json:"formats"`
}

// Manifest is safe for concurrent Upsert.
type Manifest struct {
	mu     sync.Mutex
	images map[string]map[string]*Variant
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{images: make(map[string]map[string]*Variant)}
}

// Upsert records path as the density output for mime under image/variant.
// Width and height are set when the variant is first created and left alone
// afterwards.
func (m *Manifest) Upsert(image, variant string, width, height uint32, mime string, density uint32, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	variants := m.images[image]
	if variants == nil {
		variants = make(map[string]*Variant)
		m.images[image] = variants
	}
	v := variants[variant]
	if v == nil {
		v = &Variant{Width: width, Height: height, Formats: make(map[string]map[string]string)}
		variants[variant] = v
	}
	densities := v.Formats[mime]
	if densities == nil {
		densities = make(map[string]string)
		v.Formats[mime] = densities
	}
	densities[DensityLabel(density)] = path
}

// Len returns the number of source images.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images)
}

// Images returns the image keys in sorted order.
func (m *Manifest) Images() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.images))
	for k := range m.images {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Variant returns a copy of the named variant of image.
func (m *Manifest) Variant(image, variant string) (Variant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.images[image][variant]
	if !ok {
		return Variant{}, false
	}
	return v.clone(), true
}

// Snapshot returns a deep copy of the manifest contents.
func (m *Manifest) Snapshot() map[string]map[string]Variant {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]Variant, len(m.images))
	for image, variants := range m.images {
		vs := make(map[string]Variant, len(variants))
		for name, v := range variants {
			vs[name] = v.clone()
		}
		out[image] = vs
	}
	return out
}

func (v *Variant) clone() Variant {
	c := Variant{Width: v.Width, Height: v.Height, Formats: make(map[string]map[string]string, len(v.Formats))}
	for mime, densities := range v.Formats {
		d := make(map[string]string, len(densities))
		for label, path := range densities {
			d[label] = path
		}
		c.Formats[mime] = d
	}
	return c
}

// MarshalJSON writes the image map directly. encoding/json sorts map keys.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(m.images)
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	images := make(map[string]map[string]*Variant)
	if err := json.Unmarshal(data, &images); err != nil {
		return err
	}
	// A literal null decodes to a nil map.
	if images == nil {
		images = make(map[string]map[string]*Variant)
	}
	for _, variants := range images {
		for name, v := range variants {
			if v == nil {
				v = &Variant{}
				variants[name] = v
			}
			if v.Formats == nil {
				v.Formats = make(map[string]map[string]string)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = images
	return nil
}
