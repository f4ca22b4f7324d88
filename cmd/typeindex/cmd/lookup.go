package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/typeindex"
)

var lookupFlags struct {
	patternsFile string
	glob         bool
	normalize    string
	format       string
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <segment> [pattern...]",
	Short: "Resolve patterns against a saved segment",
	Long: `Lookup answers patterns from a segment written by "typeindex resolve --save".
Glob and normalisation default to the settings the segment was built with;
passing --glob or --normalize with other values is an error. Patterns whose
configuration the segment was not built with resolve to no matches, and a
warning is printed when that happens.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	patterns, err := readPatterns(args[1:], lookupFlags.patternsFile)
	if err != nil {
		return err
	}

	seg, err := segment.OpenReader(args[0])
	if err != nil {
		return err
	}
	defer seg.Close()

	cfg.Indexer.Glob = seg.Glob()
	cfg.Indexer.Normalize = string(seg.Normalization())
	flags := cmd.Flags()
	if flags.Changed("glob") {
		cfg.Indexer.Glob = lookupFlags.glob
	}
	if flags.Changed("normalize") {
		cfg.Indexer.Normalize = lookupFlags.normalize
	}

	r, err := typeindex.NewResolver(cfg.Indexer, typeindex.WithSource("cli"))
	if err != nil {
		return err
	}
	if err := seg.CheckSettings(r.Glob(), r.Form()); err != nil {
		return err
	}
	configs := r.Configs(patterns)
	if !seg.Covers(configs) {
		fmt.Fprintf(os.Stderr, "warning: %s was built for other patterns; some results may be incomplete\n", args[0])
	}
	if extra := seg.Extra(configs); len(extra) > 0 {
		fmt.Fprintf(os.Stderr, "warning: %s holds %d configurations these patterns do not use; mid-pattern wildcards may over-match\n", args[0], len(extra))
	}
	return writeResult(cmd.OutOrStdout(), r.Lookup(cmd.Context(), seg, patterns), lookupFlags.format)
}

func init() {
	f := lookupCmd.Flags()
	f.StringVarP(&lookupFlags.patternsFile, "patterns", "p", "", "file with one pattern per line")
	f.BoolVar(&lookupFlags.glob, "glob", true, "interpret * and ? as wildcards (must match the segment)")
	f.StringVar(&lookupFlags.normalize, "normalize", "none", "Unicode normalisation (must match the segment)")
	f.StringVarP(&lookupFlags.format, "output", "o", "json", "output format (json, text)")
}
