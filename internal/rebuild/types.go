package rebuild

import (
	"errors"
	"time"
)

var (
	// ErrEmbeddingMismatch is returned when the embedder output does not line
	// up with its input: wrong count or vectors of differing length.
	ErrEmbeddingMismatch = errors.New("embedding output does not match input")

	// ErrInvalidPipeline indicates a Pipeline missing a dependency or setting.
	ErrInvalidPipeline = errors.New("invalid pipeline")
)

// State is the last stage a run reached.
type State string

const (
	StateIdle             State = "idle"
	StateFetched          State = "fetched"
	StateTransformed      State = "transformed"
	StateEmbedded         State = "embedded"
	StateDestinationReset State = "destination_reset"
	StatePopulating       State = "populating"
	StateDone             State = "done"
)

// Result summarizes a run. It is returned even when Run fails, with State
// set to the last stage that completed.
type Result struct {
	// Collection is the destination collection name.
	Collection string

	// State is the last stage reached.
	State State

	// RowsFetched is the number of source rows read.
	RowsFetched int

	// DocumentsWritten is the number of documents committed to the store.
	DocumentsWritten int

	// Batches holds the size of every batch written, in order.
	Batches []int

	// Dimension is the embedding vector length used for the collection.
	Dimension int

	// PreviousDeleted is true when an existing collection was removed.
	PreviousDeleted bool

	// StartedAt and Duration time the whole run.
	StartedAt time.Time
	Duration  time.Duration
}
