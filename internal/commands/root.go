// Package commands implements the statement CLI.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/logger"
)

// env carries what every subcommand needs after the root flags are read.
type env struct {
	cfg *config.Config
	log zerolog.Logger
	out io.Writer
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	e := &env{log: zerolog.Nop()}
	var (
		logLevel string
		dbURL    string
	)

	rootCmd := &cobra.Command{
		Use:   "finance",
		Short: "Import, classify and inspect Brazilian bank statement CSVs",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log, err := logger.NewWithLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			e.cfg, e.log = cfg, log
			e.out = cmd.OutOrStdout()
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "database URL (overrides DATABASE_URL)")

	rootCmd.AddCommand(
		newDetectCommand(e),
		newParseCommand(e),
		newClassifyCommand(e),
		newImportCommand(e),
	)
	return rootCmd
}

func readStatement(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
