package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkusa/wimg/internal/codec"
	"github.com/rkusa/wimg/internal/hasher"
	"github.com/rkusa/wimg/internal/manifest"
	"github.com/rkusa/wimg/internal/rawimage"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		require.NoError(t, jpeg.Encode(f, m, nil))
	default:
		require.NoError(t, png.Encode(f, m))
	}
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, p)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func testConfig(base, out string, images ...string) Config {
	return Config{
		Images:    images,
		BaseDir:   base,
		OutDir:    out,
		Width:     10,
		Height:    10,
		Densities: []uint32{1},
		Formats:   []rawimage.Format{rawimage.PNG},
		Options:   codec.DefaultOptions(),
	}
}

func TestRunFanOut(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		base := t.TempDir()
		out := t.TempDir()
		writeImage(t, filepath.Join(base, "a.png"), 40, 30)
		writeImage(t, filepath.Join(base, "photos", "b.jpg"), 30, 40)
		writeImage(t, filepath.Join(base, "photos", "c.png"), 50, 50)

		m := manifest.New()
		cfg := testConfig(base, out, base)
		cfg.Densities = []uint32{1, 2, 0, 2}
		cfg.Formats = []rawimage.Format{rawimage.PNG, rawimage.JPEG, rawimage.WEBP}
		cfg.Workers = workers
		cfg.Manifest = m
		cfg.Variant = "thumb"

		p, err := New(cfg)
		require.NoError(t, err)
		res, err := p.Run(context.Background())
		require.NoError(t, err)

		// 3 images x 2 densities x 3 formats.
		assert.Len(t, res.Outputs, 18, "workers=%d", workers)
		assert.Len(t, listFiles(t, out), 18, "workers=%d", workers)
		assert.Equal(t, 3, m.Len())
		assert.Equal(t, []string{"a.png", "photos/b.jpg", "photos/c.png"}, m.Images())
		assert.Equal(t, 18, manifest.Summarize(m).Outputs)
		assert.Positive(t, res.Bytes())

		for _, o := range res.Outputs {
			_, err := os.Stat(filepath.Join(out, filepath.FromSlash(o.Path)))
			assert.NoError(t, err, o.Path)
		}
	}
}

func TestRunOutputNames(t *testing.T) {
	base := t.TempDir()
	out := t.TempDir()
	src := filepath.Join(base, "dir", "cat.png")
	writeImage(t, src, 40, 40)
	data, err := os.ReadFile(src)
	require.NoError(t, err)

	cfg := testConfig(base, out, src)
	cfg.Densities = []uint32{1, 2}
	cfg.Formats = []rawimage.Format{rawimage.JPEG}

	p, err := New(cfg)
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	hash := hasher.Hex(hasher.Hash(data, 1+codec.JPEGSeed))
	assert.Equal(t, []string{
		"dir/cat-" + hash + ".jpg",
		"dir/cat-" + hash + "@2x.jpg",
	}, listFiles(t, out))
}

func TestRunHashIgnoresQuality(t *testing.T) {
	base := t.TempDir()
	writeImage(t, filepath.Join(base, "a.jpg"), 20, 20)

	var runs [][]string
	for _, q := range []int{80, 80, 20} {
		out := t.TempDir()
		cfg := testConfig(base, out, filepath.Join(base, "a.jpg"))
		cfg.Formats = []rawimage.Format{rawimage.JPEG}
		cfg.Options.JPEG.Quality = q

		p, err := New(cfg)
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.NoError(t, err)
		runs = append(runs, listFiles(t, out))
	}
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, runs[0], runs[2])
}

func TestRunVariantChangesHash(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "a.png")
	writeImage(t, src, 20, 20)
	data, err := os.ReadFile(src)
	require.NoError(t, err)

	out := t.TempDir()
	m := manifest.New()
	cfg := testConfig(base, out, src)
	cfg.Manifest = m
	cfg.Variant = "small"

	p, err := New(cfg)
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	want := "a-" + hasher.Hex(hasher.Compose(data, "small", 1+codec.PNGSeed)) + ".png"
	assert.Equal(t, want, res.Outputs[0].Path)

	v, ok := m.Variant("a.png", "small")
	require.True(t, ok)
	assert.Equal(t, want, v.Formats["image/png"]["1x"])
}

func TestRunManifestDimensionsNormalized(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "wide.png")
	writeImage(t, src, 100, 50)

	m := manifest.New()
	cfg := testConfig(base, t.TempDir(), src)
	cfg.Width, cfg.Height = 40, 40
	cfg.Densities = []uint32{2}
	cfg.MaintainAspect = true
	cfg.Manifest = m
	cfg.Variant = "v"

	p, err := New(cfg)
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Outputs, 1)
	assert.Equal(t, uint32(80), res.Outputs[0].Width)
	assert.Equal(t, uint32(40), res.Outputs[0].Height)

	v, ok := m.Variant("wide.png", "v")
	require.True(t, ok)
	assert.Equal(t, uint32(40), v.Width)
	assert.Equal(t, uint32(20), v.Height)
}

func TestNewRejectsEscapingInputs(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "base")
	outside := filepath.Join(root, "outside.png")
	writeImage(t, filepath.Join(base, "inside.png"), 8, 8)
	writeImage(t, outside, 8, 8)

	_, err := New(testConfig(base, t.TempDir(), outside))
	assert.ErrorIs(t, err, ErrOutsideBaseDir)

	link := filepath.Join(base, "link.png")
	require.NoError(t, os.Symlink(outside, link))
	_, err = New(testConfig(base, t.TempDir(), link))
	assert.ErrorIs(t, err, ErrOutsideBaseDir)

	_, err = New(testConfig(base, t.TempDir(), filepath.Join(base, "inside.png")))
	assert.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := t.TempDir()
	writeImage(t, filepath.Join(base, "a.png"), 8, 8)
	img := filepath.Join(base, "a.png")

	tests := map[string]func(*Config){
		"no formats":            func(c *Config) { c.Formats = nil },
		"no images":             func(c *Config) { c.Images = nil },
		"zero width":            func(c *Config) { c.Width = 0 },
		"manifest sans variant": func(c *Config) { c.Manifest = manifest.New() },
		"raw output format":     func(c *Config) { c.Formats = []rawimage.Format{rawimage.RGB8} },
		"base dir is file":      func(c *Config) { c.BaseDir = img },
		"missing image":         func(c *Config) { c.Images = []string{filepath.Join(base, "nope.png")} },
		"density too large":     func(c *Config) { c.Densities = []uint32{1, manifest.MaxDensity + 1} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(base, t.TempDir(), img)
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewUnsupportedExtension(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "scan.tiff")
	require.NoError(t, os.WriteFile(path, []byte("II*\x00"), 0o644))

	_, err := New(testConfig(base, t.TempDir(), path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format: tiff")
}

func TestRunFailsOnUndecodableImage(t *testing.T) {
	base := t.TempDir()
	writeImage(t, filepath.Join(base, "good.png"), 16, 16)
	require.NoError(t, os.WriteFile(filepath.Join(base, "bad.png"), []byte("not a png"), 0o644))

	cfg := testConfig(base, t.TempDir(), base)
	cfg.Workers = 1
	p, err := New(cfg)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rawimage.ErrDecode)
	assert.Contains(t, err.Error(), "bad.png")
}

func TestRunCancelled(t *testing.T) {
	base := t.TempDir()
	out := t.TempDir()
	writeImage(t, filepath.Join(base, "a.png"), 16, 16)

	p, err := New(testConfig(base, out, base))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Outputs)
	assert.Empty(t, listFiles(t, out))
}

func TestResolveSourcesWalksDirectories(t *testing.T) {
	base := t.TempDir()
	writeImage(t, filepath.Join(base, "a.png"), 4, 4)
	writeImage(t, filepath.Join(base, "sub", "b.jpg"), 4, 4)
	writeImage(t, filepath.Join(base, ".hidden", "c.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes.txt"), []byte("x"), 0o644))

	resolved, err := ResolveBaseDir(base)
	require.NoError(t, err)

	sources, err := ResolveSources([]string{base, filepath.Join(base, "a.png")}, resolved)
	require.NoError(t, err)

	var rels []string
	for _, s := range sources {
		rels = append(rels, s.RelPath)
	}
	assert.Equal(t, []string{"a.png", "sub/b.jpg"}, rels)
	assert.Equal(t, rawimage.JPEG, sources[1].Format)
}

func TestOutputPath(t *testing.T) {
	const hash = "00112233445566ff"
	assert.Equal(t, "cat-"+hash+".png", OutputPath("cat.jpg", hash, 1, "png"))
	assert.Equal(t, "a/b/cat-"+hash+"@2x.webp", OutputPath("a/b/cat.jpg", hash, 2, "webp"))
	assert.Equal(t, "x.y-"+hash+"@3x.avif", OutputPath("x.y.png", hash, 3, "avif"))
}

func TestSeedForMIME(t *testing.T) {
	r := codec.NewRegistry()
	seed, ok := SeedForMIME(r, "image/webp")
	require.True(t, ok)
	assert.Equal(t, 1+codec.WebPSeed, seed)

	_, ok = SeedForMIME(r, "image/gif")
	assert.False(t, ok)
}

func TestScaledSaturates(t *testing.T) {
	assert.Equal(t, uint32(600), scaled(300, 2))
	assert.Equal(t, uint32(math.MaxUint32), scaled(math.MaxUint32/2, 3))
	assert.Equal(t, uint32(math.MaxUint32), scaled(math.MaxUint32, manifest.MaxDensity))
}

func TestRunLargeTargetDoesNotWrap(t *testing.T) {
	base, out := t.TempDir(), t.TempDir()
	src := filepath.Join(base, "a.png")
	writeImage(t, src, 8, 8)

	// 2^31 * 2 wraps to 0 in uint32 arithmetic.
	cfg := testConfig(base, out, src)
	cfg.Width, cfg.Height = 1<<31, 1<<31
	cfg.Densities = []uint32{2}
	p, err := New(cfg)
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.Outputs)
	for _, o := range res.Outputs {
		assert.Equal(t, uint32(8), o.Width)
		assert.Equal(t, uint32(8), o.Height)
	}
}

func TestUniqueDensities(t *testing.T) {
	assert.Equal(t, []uint32{2, 1, 3}, uniqueDensities([]uint32{0, 2, 1, 2, 0, 3}))
	assert.Empty(t, uniqueDensities([]uint32{0}))
}

func TestResultBytes(t *testing.T) {
	r := Result{Outputs: []Output{{Size: 10}, {Size: 32}}}
	assert.Equal(t, int64(42), r.Bytes())
}
