// Package vectorstore stores embedded documents in named collections.
//
// Two providers implement Store: ChromemStore, an embedded chromem-go
// database persisted to a local directory, and QdrantStore, which talks to a
// Qdrant server over gRPC. NewStore picks one from configuration.
//
// Embeddings are always computed by the caller; stores never embed text.
//
// # Usage
//
//	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.DeleteCollection(ctx, "powerbi"); err != nil &&
//	    !errors.Is(err, vectorstore.ErrCollectionNotFound) {
//	    return err
//	}
//	col, err := store.GetOrCreateCollection(ctx, "powerbi", 384)
//	if err != nil {
//	    return err
//	}
//	err = col.Add(ctx, docs) // len(docs) <= store.MaxBatchSize()
//
// Collection names must match ^[a-z0-9_]{1,64}$.
package vectorstore
