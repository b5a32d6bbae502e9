package rebuild

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/rowindex/internal/batch"
	"github.com/fyrsmithlabs/rowindex/internal/logging"
	"github.com/fyrsmithlabs/rowindex/internal/source"
	"github.com/fyrsmithlabs/rowindex/internal/vectorstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName is the instrumentation scope of rebuild spans.
const TracerName = "rowindex.rebuild"

// Source reads every row to index.
type Source interface {
	FetchAll(ctx context.Context) ([]source.Record, error)
}

// Embedder turns texts into vectors, one per text, in input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is used to create the collection when there is nothing to
	// embed.
	Dimension() int
}

// Pipeline wires a source, an embedder and a destination store.
type Pipeline struct {
	Source     Source
	Embedder   Embedder
	Store      vectorstore.Store
	Collection string

	// BatchSize is the number of documents per Add. Must not exceed
	// Store.MaxBatchSize().
	BatchSize int

	// Logger defaults to zap.NewNop().
	Logger *zap.Logger

	// Metrics is optional.
	Metrics *Metrics

	// Tracer defaults to the global provider's TracerName tracer.
	Tracer trace.Tracer
}

// Run executes one full rebuild. The returned Result is non-nil even on
// error and reports the last stage reached.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	ctx, span := p.tracer().Start(ctx, "rebuild.Run", trace.WithAttributes(
		attribute.String("collection", p.Collection),
		attribute.Int("batch_size", p.BatchSize),
	))
	defer span.End()

	logger := p.spanLogger(ctx)
	res = &Result{
		Collection: p.Collection,
		State:      StateIdle,
		StartedAt:  time.Now(),
	}
	defer func() {
		end := time.Now()
		res.Duration = end.Sub(res.StartedAt)
		p.Metrics.observeRun(res, end)
		span.SetAttributes(attribute.String("state", string(res.State)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "success")
	}()

	if err := p.validate(); err != nil {
		return res, err
	}

	// Fetch
	records, err := p.fetch(ctx)
	if err != nil {
		return res, err
	}
	res.RowsFetched = len(records)
	res.State = StateFetched

	// Transform
	texts, metadatas := TransformAll(records)
	res.State = StateTransformed
	logger.Info("data prepared", zap.Int("rows", len(texts)))

	// Embed
	vectors, dim, err := p.embed(ctx, texts)
	if err != nil {
		return res, err
	}
	res.Dimension = dim
	res.State = StateEmbedded

	// Reset destination
	col, deleted, err := p.reset(ctx, dim)
	if err != nil {
		return res, err
	}
	res.PreviousDeleted = deleted
	res.State = StateDestinationReset
	logger.Info("destination reset",
		zap.String("collection", p.Collection),
		zap.Int("dimension", dim),
		zap.Bool("previous_deleted", deleted),
	)

	// Populate
	res.State = StatePopulating
	if err := p.populate(ctx, col, texts, metadatas, vectors, res); err != nil {
		return res, err
	}
	res.State = StateDone

	logger.Info("population complete",
		zap.String("collection", p.Collection),
		zap.Int("documents", res.DocumentsWritten),
		zap.Int("batches", len(res.Batches)),
		zap.Int("dimension", dim),
	)
	return res, nil
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// spanLogger links bridged log records to the span in ctx.
func (p *Pipeline) spanLogger(ctx context.Context) *zap.Logger {
	return p.logger().With(logging.TraceContext(ctx))
}

func (p *Pipeline) tracer() trace.Tracer {
	if p.Tracer == nil {
		return otel.Tracer(TracerName)
	}
	return p.Tracer
}

// validate runs before anything is fetched.
func (p *Pipeline) validate() error {
	switch {
	case p.Source == nil:
		return fmt.Errorf("%w: source is required", ErrInvalidPipeline)
	case p.Embedder == nil:
		return fmt.Errorf("%w: embedder is required", ErrInvalidPipeline)
	case p.Store == nil:
		return fmt.Errorf("%w: store is required", ErrInvalidPipeline)
	}
	if err := vectorstore.ValidateCollectionName(p.Collection); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}
	if err := batch.Validate(p.BatchSize); err != nil {
		return err
	}
	if limit := p.Store.MaxBatchSize(); p.BatchSize > limit {
		return fmt.Errorf("%w: batch size %d exceeds store maximum %d",
			vectorstore.ErrBatchTooLarge, p.BatchSize, limit)
	}
	return nil
}

// stage starts a child span and returns a func that ends it and records the
// stage duration.
func (p *Pipeline) stage(ctx context.Context, name string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer().Start(ctx, "rebuild."+name)
	return ctx, func(err error) {
		p.Metrics.observeStage(name, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		span.End()
	}
}

func (p *Pipeline) fetch(ctx context.Context) (records []source.Record, err error) {
	ctx, done := p.stage(ctx, "fetch")
	defer func() { done(err) }()

	records, err = p.Source.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching rows: %w", err)
	}
	p.Metrics.observeFetched(len(records))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("rows", len(records)))
	return records, nil
}

// embed calls the embedder once with every text and checks the output
// lines up with the input.
func (p *Pipeline) embed(ctx context.Context, texts []string) (vectors [][]float32, dim int, err error) {
	ctx, done := p.stage(ctx, "embed")
	defer func() { done(err) }()

	if len(texts) == 0 {
		dim = p.Embedder.Dimension()
		p.Metrics.observeDimension(dim)
		return nil, dim, nil
	}

	vectors, err = p.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, 0, fmt.Errorf("%w: %d embeddings for %d texts", ErrEmbeddingMismatch, len(vectors), len(texts))
	}

	dim = len(vectors[0])
	if dim == 0 {
		return nil, 0, fmt.Errorf("%w: empty embedding at index 0", ErrEmbeddingMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, 0, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				ErrEmbeddingMismatch, i, len(v), dim)
		}
	}

	p.Metrics.observeDimension(dim)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("dimension", dim))
	return vectors, dim, nil
}

// reset deletes the destination collection if present and recreates it
// empty. A failed delete other than "not found" is logged and ignored.
func (p *Pipeline) reset(ctx context.Context, dim int) (col vectorstore.Collection, deleted bool, err error) {
	ctx, done := p.stage(ctx, "reset")
	defer func() { done(err) }()

	logger := p.spanLogger(ctx).With(zap.String("collection", p.Collection))

	switch delErr := p.Store.DeleteCollection(ctx, p.Collection); {
	case delErr == nil:
		deleted = true
		logger.Info("old collection deleted")
	case errors.Is(delErr, vectorstore.ErrCollectionNotFound):
		logger.Info("no existing collection to delete")
	default:
		logger.Warn("could not delete collection", zap.Error(delErr))
	}

	col, err = p.Store.GetOrCreateCollection(ctx, p.Collection, dim)
	if err != nil {
		return nil, deleted, fmt.Errorf("creating collection %s: %w", p.Collection, err)
	}
	return col, deleted, nil
}

// populate writes one document per text in BatchSize chunks. Text, metadata,
// embedding and ID travel together in a Document, so every batch keeps the
// four aligned.
func (p *Pipeline) populate(
	ctx context.Context,
	col vectorstore.Collection,
	texts []string,
	metadatas []map[string]any,
	vectors [][]float32,
	res *Result,
) (err error) {
	ctx, done := p.stage(ctx, "populate")
	defer func() { done(err) }()

	docs := make([]vectorstore.Document, len(texts))
	for i := range texts {
		docs[i] = vectorstore.Document{
			ID:        uuid.NewString(),
			Content:   texts[i],
			Metadata:  metadatas[i],
			Embedding: vectors[i],
		}
	}

	chunks, err := batch.Slice(docs, p.BatchSize)
	if err != nil {
		return err
	}

	logger := p.spanLogger(ctx)
	for chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("populating %s: %w", p.Collection, err)
		}
		if err := col.Add(ctx, chunk); err != nil {
			return fmt.Errorf("writing batch %d (%d documents) to %s: %w",
				len(res.Batches)+1, len(chunk), p.Collection, err)
		}
		res.Batches = append(res.Batches, len(chunk))
		res.DocumentsWritten += len(chunk)
		p.Metrics.observeBatch(len(chunk))

		logger.Debug("batch written",
			zap.Int("batch", len(res.Batches)),
			zap.Int("size", len(chunk)),
			zap.Int("written", res.DocumentsWritten),
			zap.Int("total", len(docs)),
		)
	}
	return nil
}
