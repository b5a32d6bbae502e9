// Package main implements the rowindex CLI, which rebuilds a vector
// collection from the rows of a SQL table and prints samples of the result.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/rowindex/internal/config"
	"github.com/fyrsmithlabs/rowindex/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML or TOML file to load; empty searches the default paths
	configPath string
	// logLevel overrides logging.level from the config file
	logLevel string
	// version information
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rowindex",
	Short: "Index SQL table rows into a vector collection",
	Long: `rowindex reads every row of a SQL query, turns each row into a short text
document, embeds the documents and writes them to a vector collection that is
rebuilt from scratch on every run.

Configuration is read from rowindex.yaml (or --config) and ROWINDEX_*
environment variables, for example ROWINDEX_SOURCE__PASSWORD.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default rowindex.yaml or ~/.config/rowindex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(initCmd)
}

// setup loads the configuration and builds the logger shared by subcommands.
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
