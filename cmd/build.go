package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rkusa/wimg/internal/manifest"
	"github.com/rkusa/wimg/internal/pipeline"
	"github.com/rkusa/wimg/internal/profile"
	"github.com/rkusa/wimg/internal/rawimage"
)

type buildOptions struct {
	outDir         string
	baseDir        string
	width          uint32
	height         uint32
	densities      []uint
	variant        string
	manifestPath   string
	formats        []string
	maintainAspect bool
	jpegQuality    int
	webpQuality    int
	avifQuality    int
	avifSpeed      int
	workers        int
	preset         string
	config         string
}

func newBuildCommand(root *rootOptions) *cobra.Command {
	o := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build <images...>",
		Short: "Resize and encode images into hashed output files",
		Long: `Resizes every input image (directories are walked) to the target box
at each pixel density and writes one file per requested format.

Outputs mirror the input's directory below --base-dir inside --out-dir and
are named <stem>-<hash>[@<n>x].<ext>. With --manifest the outputs are
merged into a JSON manifest under the --variant name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, root, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.outDir, "out-dir", "o", "", "output directory")
	f.StringVarP(&o.baseDir, "base-dir", "b", ".", "directory the input paths are relative to")
	f.Uint32VarP(&o.width, "width", "W", 0, "target width")
	f.Uint32VarP(&o.height, "height", "H", 0, "target height")
	f.UintSliceVarP(&o.densities, "pixel-density", "d", []uint{1}, "pixel densities to generate")
	f.StringVarP(&o.variant, "variant", "n", "", "variant name in the manifest")
	f.StringVar(&o.manifestPath, "manifest", "", "manifest file to merge outputs into")
	f.StringSliceVarP(&o.formats, "format", "f", nil, "output formats (avif|jpeg|png|webp)")
	f.BoolVar(&o.maintainAspect, "maintain-aspect", false, "fit into the box instead of cropping")
	f.IntVar(&o.jpegQuality, "jpeg-quality", 80, "JPEG quality 0-100")
	f.IntVar(&o.webpQuality, "webp-quality", 80, "WebP quality 0-100")
	f.IntVar(&o.avifQuality, "avif-quality", 60, "AVIF quality 0-100")
	f.IntVar(&o.avifSpeed, "avif-speed", 5, "AVIF encoder speed 1-10")
	f.IntVarP(&o.workers, "workers", "w", 0, "parallel workers (0 = NumCPU)")
	f.StringVarP(&o.preset, "preset", "p", "", "named preset from the config file")
	f.StringVar(&o.config, "config", "", "config file (default ./"+profile.DefaultConfigFile+" if present)")
	_ = cmd.MarkFlagRequired("out-dir")

	return cmd
}

// resolveProfile layers explicitly set flags over the config and preset.
func resolveProfile(flags *pflag.FlagSet, o *buildOptions) (profile.Profile, error) {
	cfg, err := profile.Load(o.config)
	if err != nil {
		return profile.Profile{}, err
	}
	p, err := cfg.Resolve(o.preset)
	if err != nil {
		return profile.Profile{}, err
	}

	if flags.Changed("width") {
		p.Width = o.width
	}
	if flags.Changed("height") {
		p.Height = o.height
	}
	if flags.Changed("pixel-density") {
		p.Densities = make([]uint32, len(o.densities))
		for i, d := range o.densities {
			if d == 0 || d > manifest.MaxDensity {
				return profile.Profile{}, fmt.Errorf("--pixel-density must be between 1 and %d, got %d", manifest.MaxDensity, d)
			}
			p.Densities[i] = uint32(d)
		}
	}
	if flags.Changed("format") {
		if p.Formats, err = profile.ParseFormats(o.formats); err != nil {
			return profile.Profile{}, err
		}
	}
	if flags.Changed("maintain-aspect") {
		p.MaintainAspect = o.maintainAspect
	}
	if flags.Changed("workers") {
		p.Workers = o.workers
	}

	for _, q := range []struct {
		flag string
		v    int
		dst  *int
		lo   int
		hi   int
	}{
		{"jpeg-quality", o.jpegQuality, &p.Options.JPEG.Quality, 0, 100},
		{"webp-quality", o.webpQuality, &p.Options.WebP.Quality, 0, 100},
		{"avif-quality", o.avifQuality, &p.Options.AVIF.Quality, 0, 100},
		{"avif-speed", o.avifSpeed, &p.Options.AVIF.Speed, 1, 10},
	} {
		if !flags.Changed(q.flag) {
			continue
		}
		if q.v < q.lo || q.v > q.hi {
			return profile.Profile{}, fmt.Errorf("--%s must be between %d and %d, got %d", q.flag, q.lo, q.hi, q.v)
		}
		*q.dst = q.v
	}
	return p, nil
}

func runBuild(cmd *cobra.Command, root *rootOptions, o *buildOptions, args []string) error {
	log := root.log()

	p, err := resolveProfile(cmd.Flags(), o)
	if err != nil {
		return err
	}
	variant := o.variant
	if variant == "" {
		variant = p.Name
	}

	var m *manifest.Manifest
	if o.manifestPath != "" {
		if variant == "" {
			return errors.New("when writing into a manifest (--manifest), the variant name (--variant) is required")
		}
		unlock, err := manifest.Lock(o.manifestPath)
		if err != nil {
			return err
		}
		defer func() { _ = unlock() }()

		if m, err = manifest.Load(o.manifestPath); err != nil {
			return err
		}
		log.Debug("loaded manifest", "path", o.manifestPath, "images", m.Len())
	}

	pl, err := pipeline.New(pipeline.Config{
		Images:         args,
		BaseDir:        o.baseDir,
		OutDir:         o.outDir,
		Width:          p.Width,
		Height:         p.Height,
		Densities:      p.Densities,
		Formats:        p.Formats,
		Variant:        variant,
		MaintainAspect: p.MaintainAspect,
		Options:        p.Options,
		Workers:        p.Workers,
		Manifest:       m,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	log.Info("build started",
		"sources", len(pl.Sources()),
		"size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"densities", p.Densities,
		"formats", formatNames(p.Formats),
		"preset", p.Name,
	)

	res, err := pl.Run(cmd.Context())
	if err != nil {
		return err
	}

	if m != nil {
		if err := manifest.WriteJSON(m, o.manifestPath); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}

	printBuildReport(cmd.OutOrStdout(), res, o.manifestPath)
	return nil
}

func formatNames(formats []rawimage.Format) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.Extension()
	}
	return strings.Join(names, ",")
}

func printBuildReport(w io.Writer, res *pipeline.Result, manifestPath string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Sources:     %d\n", res.Sources)
	fmt.Fprintf(w, "  Outputs:     %d\n", len(res.Outputs))
	fmt.Fprintf(w, "  Output size: %s\n", humanize.Bytes(uint64(res.Bytes())))
	fmt.Fprintf(w, "  Time:        %s\n", res.Elapsed.Round(time.Millisecond))

	perFormat := map[rawimage.Format]int{}
	for _, out := range res.Outputs {
		perFormat[out.Format]++
	}
	var parts []string
	for _, f := range rawimage.EncodedFormats {
		if n := perFormat[f]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s (%d)", f.Extension(), n))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  Formats:     %s\n", strings.Join(parts, ", "))
	}
	if manifestPath != "" {
		fmt.Fprintf(w, "  Manifest:    %s\n", manifestPath)
	}
	fmt.Fprintln(w)

	if len(res.Outputs) == 0 {
		return
	}

	heaviest := append([]pipeline.Output(nil), res.Outputs...)
	sort.Slice(heaviest, func(i, j int) bool {
		if heaviest[i].Size != heaviest[j].Size {
			return heaviest[i].Size > heaviest[j].Size
		}
		return heaviest[i].Path < heaviest[j].Path
	})
	n := min(len(heaviest), 10)
	fmt.Fprintf(w, "  Top %d heaviest outputs:\n", n)
	for _, out := range heaviest[:n] {
		fmt.Fprintf(w, "    %-48s %9s  %dx%d\n",
			truncKey(out.Path, 48),
			humanize.Bytes(uint64(out.Size)),
			out.Width, out.Height,
		)
	}
	fmt.Fprintln(w)
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
