package batch

import "iter"

// Iterator exposes a chunked sequence through explicit HasNext/Next calls.
//
// An Iterator is single-pass: once HasNext reports false it stays exhausted.
// Call Stop when abandoning an iterator before exhaustion to release the
// underlying sequence.
type Iterator[T any] struct {
	next    func() ([]T, bool)
	stop    func()
	pending []T
	ready   bool
	done    bool
}

// NewIterator returns an Iterator over chunks of size elements drawn from seq.
func NewIterator[T any](seq iter.Seq[T], size int) (*Iterator[T], error) {
	chunks, err := Seq(seq, size)
	if err != nil {
		return nil, err
	}

	next, stop := iter.Pull(chunks)
	return &Iterator[T]{next: next, stop: stop}, nil
}

// HasNext reports whether another chunk is available.
func (it *Iterator[T]) HasNext() bool {
	if it.done {
		return false
	}
	if !it.ready {
		chunk, ok := it.next()
		if !ok {
			it.done = true
			it.stop()
			return false
		}
		it.pending = chunk
		it.ready = true
	}
	return true
}

// Next returns the next chunk, or nil when the iterator is exhausted.
func (it *Iterator[T]) Next() []T {
	if !it.HasNext() {
		return nil
	}
	chunk := it.pending
	it.pending = nil
	it.ready = false
	return chunk
}

// Stop releases the underlying sequence. It is safe to call more than once.
func (it *Iterator[T]) Stop() {
	if it.done {
		return
	}
	it.done = true
	it.pending = nil
	it.stop()
}
