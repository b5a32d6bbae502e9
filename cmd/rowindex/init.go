package main

import (
	"fmt"

	"github.com/fyrsmithlabs/rowindex/internal/embeddings"
	"github.com/fyrsmithlabs/rowindex/internal/logging"
	"github.com/spf13/cobra"
)

// initCmd installs the ONNX runtime used by the fastembed provider.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Download the ONNX runtime for local embeddings",
	Long: `Init downloads the ONNX runtime library required by the fastembed
embedding provider. The library is installed to:
  ~/.config/rowindex/lib/

If the ONNX_PATH environment variable is set, that path is used instead and
nothing is downloaded. Rebuild performs the same step on demand; running init
ahead of time keeps the first rebuild from reaching out to the network.

Examples:
  rowindex init`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, _ []string) error {
	// Runs without a config file.
	logCfg := logging.NewDefaultConfig()
	if logLevel != "" {
		lvl, err := logging.LevelFromString(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logCfg.Level = lvl
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	path, err := embeddings.EnsureONNXRuntime(cmd.Context(), logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to install ONNX runtime: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ONNX runtime available at: %s\n", path)
	return nil
}
