package vectorstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("rowindex.vectorstore.chromem")

// ChromemMaxBatchSize caps a single Add on the embedded store. It matches the
// largest batch SQLite-backed Chroma accepts, so collections built here can be
// replayed against it unchanged.
const ChromemMaxBatchSize = 5461

// errPrecomputedOnly is returned if chromem ever asks us to embed text.
var errPrecomputedOnly = errors.New("embeddings must be precomputed")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "./chroma_store"
	Path string

	// Compress enables gzip compression for stored documents.
	Compress bool

	// MaxBatchSize overrides ChromemMaxBatchSize when positive.
	MaxBatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./chroma_store"
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = ChromemMaxBatchSize
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("%w: max batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// Documents are held in memory and persisted as gob files below Path, one
// directory per collection, so a later process sees what an earlier run wrote.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// dims tracks the vector size each collection was created with.
	dims sync.Map
}

// NewChromemStore opens (or creates) the persistent database at config.Path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB at %s: %v", ErrConnectionFailed, expandedPath, err)
	}

	config.Path = expandedPath
	logger.Info("ChromemStore initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("max_batch_size", config.MaxBatchSize),
	)

	return &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// embedFunc is handed to chromem so it never falls back to its default
// OpenAI embedder for persisted collections.
func embedFunc(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// MaxBatchSize returns the largest batch a single Add accepts.
func (s *ChromemStore) MaxBatchSize() int {
	return s.config.MaxBatchSize
}

// DeleteCollection deletes a collection and all its documents.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	// chromem treats deleting a missing collection as success.
	if s.db.GetCollection(name, embedFunc) == nil {
		span.SetStatus(codes.Error, "collection not found")
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	s.dims.Delete(name)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("deleted chromem collection", zap.String("collection", name))
	return nil
}

// GetOrCreateCollection returns the named collection, creating it if needed.
func (s *ChromemStore) GetOrCreateCollection(ctx context.Context, name string, dim int) (Collection, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.GetOrCreateCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", dim),
	)

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if dim < 0 {
		return nil, fmt.Errorf("%w: vector size must not be negative, got %d", ErrInvalidConfig, dim)
	}

	collection, err := s.db.GetOrCreateCollection(name, nil, embedFunc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}

	if dim > 0 {
		s.dims.Store(name, dim)
	}
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("opened chromem collection",
		zap.String("collection", name),
		zap.Int("vector_size", dim),
		zap.Int("count", collection.Count()),
	)

	return &chromemCollection{store: s, col: collection}, nil
}

// GetCollection returns an existing collection.
func (s *ChromemStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.GetCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	collection := s.db.GetCollection(name, embedFunc)
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	span.SetStatus(codes.Ok, "success")
	return &chromemCollection{store: s, col: collection}, nil
}

// Close closes the ChromemStore. Every Add is persisted before it returns,
// so there is nothing to flush.
func (s *ChromemStore) Close() error {
	s.logger.Debug("chromem store closed")
	return nil
}

// dimension returns the vector size recorded for name, or 0 if unknown.
func (s *ChromemStore) dimension(name string) int {
	if v, ok := s.dims.Load(name); ok {
		return v.(int)
	}
	return 0
}

// chromemCollection adapts *chromem.Collection to Collection.
type chromemCollection struct {
	store *ChromemStore
	col   *chromem.Collection
}

func (c *chromemCollection) Name() string {
	return c.col.Name
}

// Add validates and writes docs. Concurrency is 1 because embeddings are
// precomputed and the gob writes are the only work left.
func (c *chromemCollection) Add(ctx context.Context, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Add")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", c.col.Name),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	if limit := c.store.MaxBatchSize(); len(docs) > limit {
		err := fmt.Errorf("%w: %d documents, maximum %d", ErrBatchTooLarge, len(docs), limit)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	dim := c.store.dimension(c.col.Name)
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document at index %d has no ID", ErrEmptyDocuments, i)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("%w: document %s has no embedding", ErrDimensionMismatch, doc.ID)
		}
		if dim == 0 {
			dim = len(doc.Embedding)
			c.store.dims.Store(c.col.Name, dim)
		}
		if len(doc.Embedding) != dim {
			return fmt.Errorf("%w: document %s has %d dimensions, collection has %d",
				ErrDimensionMismatch, doc.ID, len(doc.Embedding), dim)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  convertMetadataToString(doc.Metadata),
			Embedding: doc.Embedding,
		}
	}

	if err := c.col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", c.col.Name, err)
	}

	span.SetStatus(codes.Ok, "success")
	c.store.logger.Debug("added documents to chromem",
		zap.String("collection", c.col.Name),
		zap.Int("count", len(docs)),
	)
	return nil
}

func (c *chromemCollection) Count(ctx context.Context) (int, error) {
	return c.col.Count(), nil
}

// Get returns up to limit documents ordered by ID.
//
// chromem has no listing API, so the collection is exported through the
// database's gob export and decoded here.
func (c *chromemCollection) Get(ctx context.Context, limit int) ([]Record, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Get")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", c.col.Name),
		attribute.Int("limit", limit),
	)

	if limit <= 0 {
		return []Record{}, nil
	}

	docs, err := c.exportDocuments()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		doc := docs[id]
		records = append(records, Record{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: convertMetadataFromString(doc.Metadata),
		})
	}

	span.SetAttributes(attribute.Int("returned", len(records)))
	span.SetStatus(codes.Ok, "success")
	return records, nil
}

// exportedDB mirrors the gob layout written by (*chromem.DB).ExportToWriter.
type exportedDB struct {
	Collections map[string]*exportedCollection
}

type exportedCollection struct {
	Name      string
	Metadata  map[string]string
	Documents map[string]*chromem.Document
}

func (c *chromemCollection) exportDocuments() (map[string]*chromem.Document, error) {
	var buf bytes.Buffer
	if err := c.store.db.ExportToWriter(&buf, false, "", c.col.Name); err != nil {
		return nil, fmt.Errorf("exporting collection %s: %w", c.col.Name, err)
	}

	var exported exportedDB
	if err := gob.NewDecoder(&buf).Decode(&exported); err != nil {
		return nil, fmt.Errorf("decoding collection %s: %w", c.col.Name, err)
	}

	col, ok := exported.Collections[c.col.Name]
	if !ok || col.Documents == nil {
		return map[string]*chromem.Document{}, nil
	}
	return col.Documents, nil
}

// convertMetadataToString converts scalar metadata to chromem's string map.
func convertMetadataToString(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case float64:
			result[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			result[k] = strconv.FormatBool(val)
		case nil:
			result[k] = ""
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// convertMetadataFromString converts map[string]string back to map[string]any.
func convertMetadataFromString(metadata map[string]string) map[string]any {
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
