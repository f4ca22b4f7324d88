package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/typeindex"
)

var resolveFlags struct {
	patternsFile string
	typesFile    string
	vocabulary   string
	glob         bool
	workers      int
	normalize    string
	save         string
	format       string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [pattern...]",
	Short: "Resolve patterns against a list of types",
	Long: `Resolve reads types one per line from --types (or a stored vocabulary with
--vocabulary) and prints, for each pattern, the 1-based positions of the
types it matches. Patterns come from the arguments or from --patterns.

With --save the built index is also written as a segment that "typeindex
lookup" can query without rebuilding.`,
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyIndexerFlags(cmd, &cfg.Indexer)

	patterns, err := readPatterns(args, resolveFlags.patternsFile)
	if err != nil {
		return err
	}
	types, err := readTypes(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	r, err := typeindex.NewResolver(cfg.Indexer, typeindex.WithSource("cli"))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	idx, configs, err := r.Build(ctx, patterns, types)
	if err != nil {
		return err
	}
	res := r.Lookup(ctx, idx, patterns)

	if resolveFlags.save != "" {
		w := segment.NewWriter(filepath.Dir(resolveFlags.save))
		meta := segment.Meta{
			TypeCount: len(types),
			Configs:   configs,
			Glob:      r.Glob(),
			Normalize: r.Form(),
		}
		if err := w.WriteFile(filepath.Base(resolveFlags.save), idx.Snapshot(), meta); err != nil {
			return fmt.Errorf("saving segment: %w", err)
		}
		fmt.Fprintf(os.Stderr, "segment written to %s (%d keys)\n", resolveFlags.save, idx.Stats().Keys)
	}
	return writeResult(cmd.OutOrStdout(), res, resolveFlags.format)
}

func applyIndexerFlags(cmd *cobra.Command, cfg *config.IndexerConfig) {
	flags := cmd.Flags()
	if flags.Changed("glob") {
		cfg.Glob = resolveFlags.glob
	}
	if flags.Changed("workers") {
		cfg.Workers = resolveFlags.workers
	}
	if flags.Changed("normalize") {
		cfg.Normalize = resolveFlags.normalize
	}
}

func readPatterns(args []string, file string) ([]string, error) {
	if file == "" {
		if len(args) == 0 {
			return nil, fmt.Errorf("no patterns: pass them as arguments or with --patterns")
		}
		return args, nil
	}
	patterns, err := vocab.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return append(patterns, args...), nil
}

func readTypes(ctx context.Context, cfg *config.Config) ([]string, error) {
	switch {
	case resolveFlags.vocabulary != "" && resolveFlags.typesFile != "":
		return nil, fmt.Errorf("--types and --vocabulary are mutually exclusive")
	case resolveFlags.vocabulary != "":
		store, closeStore, err := openVocabStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer closeStore()
		return store.Load(ctx, resolveFlags.vocabulary)
	case resolveFlags.typesFile != "":
		return vocab.ReadFile(resolveFlags.typesFile)
	default:
		return nil, fmt.Errorf("no types: pass --types or --vocabulary")
	}
}

func init() {
	f := resolveCmd.Flags()
	f.StringVarP(&resolveFlags.patternsFile, "patterns", "p", "", "file with one pattern per line")
	f.StringVarP(&resolveFlags.typesFile, "types", "t", "", `file with one type per line ("-" for stdin)`)
	f.StringVar(&resolveFlags.vocabulary, "vocabulary", "", "name of a stored vocabulary")
	f.BoolVar(&resolveFlags.glob, "glob", true, "interpret * and ? as wildcards")
	f.IntVarP(&resolveFlags.workers, "workers", "j", -1, "build workers (-1 for one per CPU, 1 for sequential)")
	f.StringVar(&resolveFlags.normalize, "normalize", "none", "Unicode normalisation (none, nfc, nfd)")
	f.StringVar(&resolveFlags.save, "save", "", "also write the index to this segment file")
	f.StringVarP(&resolveFlags.format, "output", "o", "json", "output format (json, text)")
}
