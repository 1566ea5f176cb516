// Package streams provides generic, zero-overhead, pull-based stream iterators.
//
// The primary goal of this package is to offer a type-safe and efficient way to
// process sequences of data, such as notifications from a channel, without the
// overhead of creating new goroutines and channels for each transformation step.
//
// # The Problem with Channel Adapters
//
// A common pattern in Go for processing data from a channel is to create a
// "channel adapter": a new goroutine that reads from a source channel, transforms
// the data, and pushes it to a new destination channel.
//
//	// A goroutine to convert a channel of raw updates to a channel of keys.
//	func adapt(updates <-chan Update) <-chan string {
//		keys := make(chan string)
//		go func() {
//			defer close(keys)
//			for u := range updates {
//				keys <- encode(u.Signature)
//			}
//		}()
//		return keys
//	}
//
// Every such stage costs a goroutine and a channel hop. For a latency benchmark
// the extra hop also distorts what is being measured.
//
// # The Stream Solution
//
// A Stream is pulled synchronously within the consumer's goroutine. Transport
// packages produce a Stream from their reader goroutine's channel, and callers
// chain transformations with Map, with no intermediate goroutines or channels.
package streams

import (
	"context"
)

// Stream represents a lazy, pull-based iterator over a sequence of items of type T.
//
// The zero value of a Stream is not useful and will panic if Next() is called.
type Stream[T any] struct {
	// next produces the next item. ok is false once the source is exhausted.
	// A non-nil error is only ever the context's error.
	next func(ctx context.Context) (item T, ok bool, err error)
}

// New creates a new Stream from a read-only channel.
//
// The returned Stream will produce items until the source channel is closed and
// drained.
func New[T any](sourceChan <-chan T) Stream[T] {
	return Stream[T]{
		next: func(ctx context.Context) (T, bool, error) {
			select {
			case <-ctx.Done():
				var zero T
				return zero, false, ctx.Err()
			case val, ok := <-sourceChan:
				return val, ok, nil
			}
		},
	}
}

// Map returns a new Stream that applies the conversion function `conv` to each
// item from a source Stream.
//
// This is a lazy operation. The conversion function is not called until the
// returned Stream is pulled.
func Map[T, U any](sourceStream Stream[T], conv func(T) U) Stream[U] {
	return Stream[U]{
		next: func(ctx context.Context) (U, bool, error) {
			val, ok, err := sourceStream.next(ctx)
			if err != nil || !ok {
				var zeroU U
				return zeroU, false, err
			}
			return conv(val), true, nil
		},
	}
}

// Filter returns a new Stream that only yields the items of sourceStream for
// which keep returns true.
func Filter[T any](sourceStream Stream[T], keep func(T) bool) Stream[T] {
	return Stream[T]{
		next: func(ctx context.Context) (T, bool, error) {
			for {
				val, ok, err := sourceStream.next(ctx)
				if err != nil || !ok || keep(val) {
					return val, ok, err
				}
			}
		},
	}
}

// Next produces the next item from the stream, blocking until one is available.
//
// The `ok` flag is false once the stream is exhausted.
func (s *Stream[T]) Next() (T, bool) {
	item, ok, _ := s.next(context.Background())
	return item, ok
}

// NextContext is like Next but returns early with the context's error if ctx is
// done before an item arrives.
func (s *Stream[T]) NextContext(ctx context.Context) (T, bool, error) {
	return s.next(ctx)
}

// Exhaust pulls every remaining item from the stream.
// On context cancellation it returns a nil slice and the context's error.
func (s *Stream[T]) Exhaust(ctx context.Context) ([]T, error) {
	var items []T
	for {
		item, ok, err := s.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, item)
	}
}

// All is a more convenient way of looping over the Stream for Go 1.22+
func (s *Stream[T]) All(yield func(T) bool) {
	for {
		event, ok := s.Next()
		if !ok {
			return
		}

		if !yield(event) {
			return
		}
	}
}
