package main

import (
	"fmt"

	"github.com/fyrsmithlabs/rowindex/internal/inspect"
	"github.com/fyrsmithlabs/rowindex/internal/logging"
	"github.com/fyrsmithlabs/rowindex/internal/vectorstore"
	"github.com/spf13/cobra"
)

var (
	inspectCollection string
	inspectLimit      int
)

func init() {
	inspectCmd.Flags().StringVar(&inspectCollection, "collection", "", "collection to inspect (overrides vectorstore.collection)")
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "n", inspect.DefaultLimit, "number of documents to print")
}

// inspectCmd prints the document count and a few sample documents.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the size of a collection and a few of its documents",
	Long: `Inspect opens the configured vector store and prints the number of
documents in the collection followed by the first documents with their IDs,
metadata and text.

Examples:
  # Show the default collection
  rowindex inspect

  # Show ten documents of another collection
  rowindex inspect --collection powerbi_staging --limit 10`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	name := cfg.VectorStore.Collection
	if inspectCollection != "" {
		name = inspectCollection
	}

	ctx := logging.WithCollection(cmd.Context(), name)
	store, err := vectorstore.NewStore(cfg.VectorStore, logger.Underlying().With(logging.ContextFields(ctx)...))
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	return inspect.Run(ctx, store, name, inspectLimit, cmd.OutOrStdout())
}
