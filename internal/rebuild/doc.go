// Package rebuild replaces a vector collection with embeddings of the rows
// returned by a source query.
//
// A run fetches every row, renders each one as a short text document,
// embeds all texts in one call, deletes and recreates the destination
// collection, then writes the documents in fixed-size batches:
//
//	Idle → Fetched → Transformed → Embedded → DestinationReset → Populating → Done
//
// Nothing touches the destination before embedding succeeds. A failure while
// populating leaves the batches already written in place; the next run
// starts from scratch anyway.
//
// Concurrent runs against the same collection are not supported.
package rebuild
