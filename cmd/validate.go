package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rkusa/wimg/internal/codec"
	"github.com/rkusa/wimg/internal/manifest"
	"github.com/rkusa/wimg/internal/pipeline"
)

type validateOptions struct {
	outDir  string
	baseDir string
}

func newValidateCommand(root *rootOptions) *cobra.Command {
	o := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a manifest and check referenced files exist",
		Long: `Checks the manifest structure and that every referenced output exists
below --out-dir. With --base-dir the source images are re-hashed and
outputs whose hash no longer matches their source are reported as stale.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, root, o, args[0])
		},
	}
	cmd.Flags().StringVarP(&o.outDir, "out-dir", "o", "", "directory the output paths are relative to")
	cmd.Flags().StringVarP(&o.baseDir, "base-dir", "b", "", "directory the image keys are relative to (enables hash checks)")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}

func runValidate(cmd *cobra.Command, root *rootOptions, o *validateOptions, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	registry := codec.NewRegistry()
	errs := manifest.Validate(m, manifest.ValidateOptions{
		OutDir:  o.outDir,
		BaseDir: o.baseDir,
		Seed: func(mime string) (uint64, bool) {
			return pipeline.SeedForMIME(registry, mime)
		},
	})

	w := cmd.OutOrStdout()
	s := manifest.Summarize(m)
	if len(errs) == 0 {
		fmt.Fprintln(w, "  ✓ Manifest is valid")
		fmt.Fprintf(w, "  ✓ %d images, %d outputs, all files present\n", s.Images, s.Outputs)
		return nil
	}

	root.log().Debug("validation finished", "problems", len(errs))
	fmt.Fprintf(w, "  ✗ Manifest has %d error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "    • %s\n", e)
	}
	return fmt.Errorf("validation failed with %d errors", len(errs))
}
