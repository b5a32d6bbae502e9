package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("rowindex.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Payload keys holding the document text and the caller's document ID.
const (
	payloadContentKey = "document"
	payloadIDKey      = "id"
)

// QdrantDefaultMaxBatchSize is the default number of points per Upsert.
const QdrantDefaultMaxBatchSize = 10000

// QdrantConfig holds configuration for Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334
	Port int

	// APIKey authenticates against Qdrant Cloud or secured deployments.
	APIKey string

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// Distance is the similarity metric for new collections.
	// Default: Cosine
	Distance qdrant.Distance

	// MaxBatchSize is the largest number of points a single Add accepts.
	// Default: 10000
	MaxBatchSize int

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry (exponential backoff).
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of failures before opening circuit.
	// Default: 5
	CircuitBreakerThreshold int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("%w: max batch size must be positive, got %d", ErrInvalidConfig, c.MaxBatchSize)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = QdrantDefaultMaxBatchSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = qdrant.Distance_Cosine
	}
}

// ValidateCollectionName validates a collection name.
// Pattern: ^[a-z0-9_]{1,64}$
// Rejects: uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
// Returns false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// isNotFound reports a gRPC NotFound anywhere in err's chain.
func isNotFound(err error) bool {
	return status.Code(err) == grpccodes.NotFound
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// gRPC avoids the REST payload limit, which matters when a single Add carries
// thousands of points.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore connects to Qdrant and verifies the connection with a
// health check.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Int("max_batch_size", config.MaxBatchSize),
	)

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// MaxBatchSize returns the largest batch a single Add accepts.
func (s *QdrantStore) MaxBatchSize() int {
	return s.config.MaxBatchSize
}

// healthCheck performs a health check on the Qdrant connection.
func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open: %w", operationName, err)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		s.logger.Debug("retrying qdrant operation",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// collectionExists reports whether name exists.
func (s *QdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, name)
		return err
	})
	return exists, err
}

// DeleteCollection deletes a collection and all its points.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		span.SetStatus(codes.Error, "collection not found")
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	err = s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("deleted qdrant collection", zap.String("collection", name))
	return nil
}

// GetOrCreateCollection returns the named collection, creating it with
// vectors of size dim when it does not exist.
func (s *QdrantStore) GetOrCreateCollection(ctx context.Context, name string, dim int) (Collection, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.GetOrCreateCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", dim),
	)

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return &qdrantCollection{store: s, name: name, dim: dim}, nil
	}

	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive to create %s, got %d", ErrInvalidConfig, name, dim)
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: s.config.Distance,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "created")
	s.logger.Info("created qdrant collection",
		zap.String("collection", name),
		zap.Int("vector_size", dim),
	)

	return &qdrantCollection{store: s, name: name, dim: dim}, nil
}

// GetCollection returns an existing collection.
func (s *QdrantStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.GetCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		span.SetStatus(codes.Error, "collection not found")
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	span.SetStatus(codes.Ok, "success")
	return &qdrantCollection{store: s, name: name}, nil
}

// qdrantCollection is a Collection backed by a Qdrant collection.
type qdrantCollection struct {
	store *QdrantStore
	name  string
	// dim is 0 when the collection was opened without a known size.
	dim int
}

func (c *qdrantCollection) Name() string {
	return c.name
}

// Add upserts docs as points. Point IDs reuse the document ID when it is a
// UUID; the document ID is kept in the payload either way.
func (c *qdrantCollection) Add(ctx context.Context, docs []Document) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Add")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", c.name),
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

	points, err := c.toPoints(docs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = c.store.retryOperation(ctx, "upsert", func() error {
		_, err := c.store.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", c.name, err)
	}

	span.SetAttributes(attribute.Int("points_added", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (c *qdrantCollection) toPoints(docs []Document) ([]*qdrant.PointStruct, error) {
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("%w: document at index %d has no ID", ErrEmptyDocuments, i)
		}
		if len(doc.Embedding) == 0 || (c.dim > 0 && len(doc.Embedding) != c.dim) {
			return nil, fmt.Errorf("%w: document %s has %d dimensions, collection has %d",
				ErrDimensionMismatch, doc.ID, len(doc.Embedding), c.dim)
		}

		payload, err := qdrantPayload(doc)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}

		pointID := doc.ID
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.NewString()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		}
	}
	return points, nil
}

// qdrantPayload flattens metadata next to the reserved content and ID keys.
func qdrantPayload(doc Document) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		value, err := qdrant.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		payload[k] = value
	}
	payload[payloadContentKey] = qdrant.NewValueString(doc.Content)
	payload[payloadIDKey] = qdrant.NewValueString(doc.ID)
	return payload, nil
}

// Count returns the exact number of points.
func (c *qdrantCollection) Count(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	span.SetAttributes(attribute.String("collection", c.name))

	var n uint64
	err := c.store.retryOperation(ctx, "count", func() error {
		var err error
		n, err = c.store.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: c.name,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, c.name)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting points in %s: %w", c.name, err)
	}

	span.SetAttributes(attribute.Int64("point_count", int64(n)))
	span.SetStatus(codes.Ok, "success")
	return int(n), nil
}

// Get scrolls the first limit points in point ID order.
func (c *qdrantCollection) Get(ctx context.Context, limit int) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Get")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", c.name),
		attribute.Int("limit", limit),
	)

	if limit <= 0 {
		return []Record{}, nil
	}

	var points []*qdrant.RetrievedPoint
	err := c.store.retryOperation(ctx, "scroll", func() error {
		var err error
		points, err = c.store.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: c.name,
			Limit:          qdrant.PtrOf(uint32(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, c.name)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scrolling %s: %w", c.name, err)
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		records = append(records, recordFromPoint(p))
	}

	span.SetAttributes(attribute.Int("returned", len(records)))
	span.SetStatus(codes.Ok, "success")
	return records, nil
}

// recordFromPoint splits a retrieved payload back into content, ID and
// metadata.
func recordFromPoint(p *qdrant.RetrievedPoint) Record {
	rec := Record{Metadata: make(map[string]any, len(p.GetPayload()))}
	for k, v := range p.GetPayload() {
		switch k {
		case payloadContentKey:
			rec.Content = v.GetStringValue()
		case payloadIDKey:
			rec.ID = v.GetStringValue()
		default:
			rec.Metadata[k] = valueFromQdrant(v)
		}
	}
	if rec.ID == "" {
		rec.ID = p.GetId().GetUuid()
	}
	return rec
}

func valueFromQdrant(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_NullValue:
		return nil
	default:
		return v.String()
	}
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
