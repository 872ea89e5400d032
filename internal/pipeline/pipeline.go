// Package pipeline fans a set of images out over pixel densities and
// output formats: each image is decoded once, resized once per density and
// encoded once per format, with every stage running on a bounded pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/rkusa/wimg/internal/codec"
	"github.com/rkusa/wimg/internal/manifest"
	"github.com/rkusa/wimg/internal/rawimage"
)

// Config holds all parameters for a build pipeline run.
type Config struct {
	Images         []string // files or directories
	BaseDir        string   // defaults to the working directory
	OutDir         string
	Width          uint32
	Height         uint32
	Densities      []uint32 // 0 entries are skipped; at most manifest.MaxDensity
	Formats        []rawimage.Format
	Variant        string
	MaintainAspect bool
	Options        codec.Options
	Workers        int                // <= 0 means runtime.NumCPU()
	Manifest       *manifest.Manifest // optional; requires Variant
	Logger         *slog.Logger
}

// Validate rejects configurations that cannot produce any output.
func (c *Config) Validate() error {
	switch {
	case len(c.Formats) == 0:
		return errors.New("no output format specified")
	case len(c.Images) == 0:
		return errors.New("no input images provided")
	case c.OutDir == "":
		return errors.New("no output directory specified")
	case c.Width == 0 || c.Height == 0:
		return errors.New("width and height must be greater than zero")
	case c.Manifest != nil && c.Variant == "":
		return errors.New("when writing into a manifest (--manifest), the variant name (--variant) is required")
	}
	for _, f := range c.Formats {
		if f.IsRaw() || !f.Valid() {
			return errors.New("invalid output format " + f.String())
		}
	}
	for _, d := range c.Densities {
		if d > manifest.MaxDensity {
			return fmt.Errorf("pixel density %d exceeds the maximum of %d", d, manifest.MaxDensity)
		}
	}
	return nil
}

// Output describes one written file.
type Output struct {
	Source  string // RelPath of the input
	Density uint32
	Format  rawimage.Format
	Path    string // slash-separated, relative to OutDir
	Width   uint32
	Height  uint32
	Size    int64
}

// Result is what a run produced. Outputs are in completion order.
type Result struct {
	Sources int
	Outputs []Output
	Elapsed time.Duration
}

// Bytes returns the total size of all outputs.
func (r *Result) Bytes() int64 {
	var n int64
	for _, o := range r.Outputs {
		n += o.Size
	}
	return n
}

// Pipeline orchestrates image processing.
type Pipeline struct {
	cfg       Config
	registry  *codec.Registry
	log       *slog.Logger
	baseDir   string
	sources   []Source
	formats   []rawimage.Format
	densities []uint32
}

// New validates cfg, resolves the inputs against the base directory and
// checks that every requested encoder is available.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	cfg.Options = cfg.Options.Normalize()

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	registry := codec.NewRegistry()
	formats, err := registry.ResolveFormats(cfg.Formats)
	if err != nil {
		return nil, err
	}

	baseDir, err := ResolveBaseDir(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	log.Debug("base dir", "path", baseDir)

	sources, err := ResolveSources(cfg.Images, baseDir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.New("no input images provided")
	}

	return &Pipeline{
		cfg:       cfg,
		registry:  registry,
		log:       log,
		baseDir:   baseDir,
		sources:   sources,
		formats:   formats,
		densities: uniqueDensities(cfg.Densities),
	}, nil
}

// Sources returns the resolved inputs.
func (p *Pipeline) Sources() []Source { return p.sources }

// Run processes every (image, density, format) combination. The first
// failure cancels all pending work and is returned; files written before
// that stay on disk.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	p.log.Debug("starting build",
		"images", len(p.sources),
		"densities", len(p.densities),
		"formats", len(p.formats),
		"workers", p.cfg.Workers,
		"encoders", p.registry.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		p:       p,
		ctx:     ctx,
		cancel:  cancel,
		sem:     make(chan struct{}, p.cfg.Workers),
		claimed: make(map[string]bool),
	}
	for _, src := range p.sources {
		r.spawn(func() error { return r.decode(src) })
	}
	r.wg.Wait()

	if r.err == nil && r.pending() {
		// Cancelled by the caller with work left over.
		r.err = ctx.Err()
	}

	res := &Result{Sources: len(p.sources), Outputs: r.outputs, Elapsed: time.Since(start)}
	if r.err != nil {
		return res, r.err
	}
	p.log.Debug("build finished", "outputs", len(res.Outputs), "elapsed", res.Elapsed)
	return res, nil
}

// run is the state of one Run call.
type run struct {
	p      *Pipeline
	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	err     error
	outputs []Output
	claimed map[string]bool
	skipped int
}

// spawn runs fn on the pool. Spawning never blocks, so a task may spawn
// its dependents while it still holds a slot.
func (r *run) spawn(fn func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case r.sem <- struct{}{}:
		case <-r.ctx.Done():
			r.skip()
			return
		}
		defer func() { <-r.sem }()

		if r.ctx.Err() != nil {
			r.skip()
			return
		}
		if err := fn(); err != nil {
			r.fail(err)
		}
	}()
}

func (r *run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
}

func (r *run) skip() {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
}

func (r *run) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped > 0
}

// claim reserves an output path. It reports false if the path was already
// taken by another task of this run.
func (r *run) claim(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed[path] {
		return false
	}
	r.claimed[path] = true
	return true
}

func (r *run) record(o Output) {
	r.mu.Lock()
	r.outputs = append(r.outputs, o)
	r.mu.Unlock()
}

func uniqueDensities(ds []uint32) []uint32 {
	var out []uint32
	seen := map[uint32]bool{}
	for _, d := range ds {
		if d == 0 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
