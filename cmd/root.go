package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rkusa/wimg/internal/logging"
)

var version = "0.1.0"

// rootOptions holds the persistent flags and the logger built from them.
type rootOptions struct {
	verbose   bool
	logFormat string
	logger    *slog.Logger
}

func (o *rootOptions) log() *slog.Logger {
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	return o.logger
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "wimg",
		Short: "Resize and transcode images into content-addressed variants",
		Long: `wimg resizes source images to a target box at one or more pixel
densities and encodes each result as AVIF, WebP, JPEG or PNG.

Output filenames carry a content hash of the source and processing
parameters: <stem>-<hash>[@<n>x].<ext>. An optional JSON manifest maps
every image and variant to its outputs.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "info"
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.New(logging.Options{
				Level:  level,
				Format: opts.logFormat,
				Writer: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "log format (console|json)")
	root.SetVersionTemplate(fmt.Sprintf(
		"wimg %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))

	root.AddCommand(
		newBuildCommand(opts),
		newStatsCommand(opts),
		newValidateCommand(opts),
	)
	return root
}

// Execute runs the CLI until completion or SIGINT/SIGTERM. Errors are
// logged before being returned.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{}
	root := newRootCommand(opts)
	err := root.ExecuteContext(ctx)
	if err != nil {
		reportError(root, opts, err)
	}
	return err
}

func reportError(root *cobra.Command, opts *rootOptions, err error) {
	logger := opts.logger
	if logger == nil {
		// Flag parsing failed before the logger was built.
		logger, _ = logging.New(logging.Options{Writer: root.ErrOrStderr()})
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("interrupted")
		return
	}
	logger.Error(err.Error())
}
