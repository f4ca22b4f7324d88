package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/postgres"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Manage stored vocabularies",
}

var vocabImportCmd = &cobra.Command{
	Use:   "import <name> <file>",
	Short: "Store a vocabulary read one type per line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := vocab.ReadFile(args[1])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, closeDB, err := openVocabStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeDB()
		if err := store.Save(cmd.Context(), args[0], types); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d types as %q\n", len(types), args[0])
		return nil
	},
}

var vocabListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored vocabularies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, closeDB, err := openVocabStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeDB()
		names, err := store.Names(cmd.Context())
		if err != nil {
			return err
		}
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		for _, name := range sorted {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, names[name])
		}
		return nil
	},
}

// openVocabStore opens PostgreSQL when it is enabled in the config, and the
// bbolt file at vocab.boltPath otherwise.
func openVocabStore(ctx context.Context, cfg *config.Config) (vocab.Backend, func(), error) {
	var db *postgres.Client
	if cfg.Postgres.Enabled {
		var err error
		if db, err = postgres.New(cfg.Postgres); err != nil {
			return nil, nil, err
		}
	}
	closeDB := func() {
		if db != nil {
			db.Close()
		}
	}
	store, closeStore, err := vocab.Open(ctx, cfg.Vocab, db)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	if store == nil {
		closeDB()
		return nil, nil, fmt.Errorf("no vocabulary store: enable postgres or set vocab.boltPath")
	}
	return store, func() {
		closeStore()
		closeDB()
	}, nil
}

func init() {
	vocabCmd.AddCommand(vocabImportCmd)
	vocabCmd.AddCommand(vocabListCmd)
}
