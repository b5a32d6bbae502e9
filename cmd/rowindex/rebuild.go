package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/rowindex/internal/embeddings"
	"github.com/fyrsmithlabs/rowindex/internal/logging"
	"github.com/fyrsmithlabs/rowindex/internal/rebuild"
	"github.com/fyrsmithlabs/rowindex/internal/source"
	"github.com/fyrsmithlabs/rowindex/internal/telemetry"
	"github.com/fyrsmithlabs/rowindex/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rebuildCollection string
	rebuildBatchSize  int
	metricsTextfile   string
)

func init() {
	rebuildCmd.Flags().StringVar(&rebuildCollection, "collection", "", "destination collection (overrides vectorstore.collection)")
	rebuildCmd.Flags().IntVar(&rebuildBatchSize, "batch-size", 0, "documents per write (overrides vectorstore.batch_size)")
	rebuildCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write run metrics to this node_exporter textfile (overrides metrics.textfile)")
}

// rebuildCmd runs one full fetch, embed and write cycle.
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the vector collection from the source table",
	Long: `Rebuild fetches every row returned by source.query, embeds one document per
row and replaces the destination collection with the result. The previous
contents of the collection are deleted before anything is written.

Examples:
  # Rebuild using rowindex.yaml in the current directory
  rowindex rebuild

  # Write to a different collection in smaller batches
  rowindex rebuild --collection powerbi_staging --batch-size 1000

  # Export run metrics for node_exporter
  rowindex rebuild --metrics-textfile /var/lib/node_exporter/rowindex.prom`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if rebuildCollection != "" {
		cfg.VectorStore.Collection = rebuildCollection
	}
	if rebuildBatchSize != 0 {
		cfg.VectorStore.BatchSize = rebuildBatchSize
	}
	if metricsTextfile != "" {
		cfg.Metrics.Textfile = metricsTextfile
	}

	// The pipeline adds the collection to its own log lines.
	ctx := logging.WithRunID(cmd.Context(), uuid.NewString())
	log := logger.Underlying().With(logging.ContextFields(ctx)...)

	log.Info("starting rebuild",
		zap.String("version", version),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.String("source_driver", cfg.Source.Driver),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.String("embeddings_model", cfg.Embeddings.Model),
		zap.String("vectorstore_provider", cfg.VectorStore.Provider),
		zap.Int("batch_size", cfg.VectorStore.BatchSize),
	)

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), log)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	// Tee into the OTLP log pipeline once telemetry is up.
	if bridged, err := logger.WithOTEL(tel.LoggerProvider()); err != nil {
		log.Warn("otel log bridge disabled", zap.Error(err))
	} else {
		logger = bridged
		log = logger.Underlying().With(logging.ContextFields(ctx)...)
	}

	src, err := source.Open(ctx, cfg.Source, log)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	embedder, err := embeddings.NewProvider(ctx, embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		CacheDir:  cfg.Embeddings.CacheDir,
		MaxLength: cfg.Embeddings.MaxLength,
		Dimension: cfg.Embeddings.Dimension,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer embedder.Close()

	store, err := vectorstore.NewStore(cfg.VectorStore, log)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	metrics := rebuild.NewMetrics()
	pipeline := &rebuild.Pipeline{
		Source:     src,
		Embedder:   embedder,
		Store:      store,
		Collection: cfg.VectorStore.Collection,
		BatchSize:  cfg.VectorStore.BatchSize,
		Logger:     log,
		Metrics:    metrics,
		Tracer:     tel.Tracer(rebuild.TracerName),
	}

	res, runErr := pipeline.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("failed to write metrics textfile",
				zap.String("path", cfg.Metrics.Textfile),
				zap.Error(err))
		}
	}

	if runErr != nil {
		log.Error("rebuild failed",
			zap.String("state", string(res.State)),
			zap.Int("documents_written", res.DocumentsWritten),
			zap.Error(runErr))
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Data embedded and stored in collection %q: %d documents in %d batches, %d-dimensional vectors (%s)\n",
		res.Collection, res.DocumentsWritten, len(res.Batches), res.Dimension, res.Duration.Round(time.Millisecond))
	return nil
}
