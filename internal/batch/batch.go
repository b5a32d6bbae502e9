// Package batch splits sequences into bounded, lazily produced chunks.
//
// Only one chunk is materialized at a time, so memory stays proportional to
// the batch size regardless of the input length. Every sequence returned by
// this package is restartable: ranging over it again starts a fresh pass over
// the input.
//
// Example:
//
//	chunks, err := batch.Slice(docs, 5000)
//	if err != nil {
//	    return err
//	}
//	for chunk := range chunks {
//	    if err := collection.Add(ctx, chunk); err != nil {
//	        return err
//	    }
//	}
package batch

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidBatchSize is returned when the batch size is not positive.
var ErrInvalidBatchSize = errors.New("invalid argument: batch size must be positive")

// Validate returns ErrInvalidBatchSize when size is not positive.
func Validate(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidBatchSize, size)
	}
	return nil
}

// Seq groups the values produced by seq into chunks of size elements.
//
// Every chunk holds exactly size elements except possibly the last one,
// which holds the remainder. An empty input yields no chunks. A fresh slice
// is allocated per chunk, so callers may retain chunks after the next one is
// produced.
func Seq[T any](seq iter.Seq[T], size int) (iter.Seq[[]T], error) {
	if err := Validate(size); err != nil {
		return nil, err
	}

	return func(yield func([]T) bool) {
		chunk := make([]T, 0, size)
		for v := range seq {
			chunk = append(chunk, v)
			if len(chunk) < size {
				continue
			}
			if !yield(chunk) {
				return
			}
			chunk = make([]T, 0, size)
		}
		if len(chunk) > 0 {
			yield(chunk)
		}
	}, nil
}

// Slice groups items into consecutive sub-slices of at most size elements.
//
// Chunks share the backing array of items but have their capacity capped, so
// appending to a chunk never overwrites the next one.
func Slice[T any](items []T, size int) (iter.Seq[[]T], error) {
	ranges, err := Ranges(len(items), size)
	if err != nil {
		return nil, err
	}

	return func(yield func([]T) bool) {
		for start, end := range ranges {
			if !yield(items[start:end:end]) {
				return
			}
		}
	}, nil
}

// Ranges yields the half-open index ranges [start, end) covering an input of
// length n in chunks of at most size. Slice cuts its chunks on these bounds.
func Ranges(n, size int) (iter.Seq2[int, int], error) {
	if err := Validate(size); err != nil {
		return nil, err
	}

	return func(yield func(int, int) bool) {
		for start := 0; start < n; start += size {
			if !yield(start, min(start+size, n)) {
				return
			}
		}
	}, nil
}
