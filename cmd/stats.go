package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rkusa/wimg/internal/manifest"
)

func newStatsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <manifest>",
		Short: "Display statistics for a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			m, err := manifest.Load(path)
			if err != nil {
				return err
			}
			root.log().Debug("loaded manifest", "path", path, "images", m.Len())
			printStats(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func printStats(w io.Writer, m *manifest.Manifest) {
	s := manifest.Summarize(m)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Images:   %d\n", s.Images)
	fmt.Fprintf(w, "  Variants: %d\n", s.Variants)
	fmt.Fprintf(w, "  Outputs:  %d\n", s.Outputs)
	fmt.Fprintln(w)

	if s.Outputs > 0 {
		fmt.Fprintln(w, renderTable([]string{"Format", "Outputs"}, countRows(s.ByFormat, nil), 1))
		fmt.Fprintln(w, renderTable([]string{"Density", "Outputs"}, countRows(s.ByDensity, byDensity), 1))
	}
	if s.Variants > 0 {
		fmt.Fprintln(w, renderTable([]string{"Variant", "Images"}, countRows(s.ByVariant, nil), 1))
	}

	var warnings []string
	for image, variants := range m.Snapshot() {
		if len(variants) == 0 {
			warnings = append(warnings, fmt.Sprintf("image %q has no variants", image))
		}
		for name, v := range variants {
			if len(v.Formats) == 0 {
				warnings = append(warnings, fmt.Sprintf("image %q variant %q has no outputs", image, name))
			}
		}
	}
	if len(warnings) > 0 {
		sort.Strings(warnings)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Warnings (%d):\n", len(warnings))
		for _, msg := range warnings {
			fmt.Fprintf(w, "    ⚠ %s\n", msg)
		}
	}
	fmt.Fprintln(w)
}

// byDensity orders "1x" < "2x" < "10x" instead of lexically.
func byDensity(a, b string) bool {
	da, errA := manifest.ParseDensityLabel(a)
	db, errB := manifest.ParseDensityLabel(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return da < db
}

func countRows(counts map[string]int, less func(a, b string) bool) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	if less == nil {
		sort.Strings(keys)
	} else {
		sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(counts[k])})
	}
	return rows
}
