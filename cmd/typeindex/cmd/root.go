package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "typeindex",
	Short:         "Resolve glob patterns against a vocabulary of types",
	Long:          "Builds a wildcard index over a list of types and reports, for each pattern, the 1-based positions of the types it matches.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetupTo(os.Stderr, logLevel, "text")
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

// loadConfig reads --config when given; otherwise defaults plus TI_*
// overrides.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(vocabCmd)
}
