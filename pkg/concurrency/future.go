/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package concurrency

import (
	"context"
	"sync"
)

// Future is a single-assignment promise: exactly one of Complete or Fail
// may be called, exactly once, and every subsequent Wait observes the
// same result. It is the idiomatic rendering of the nested-continuation
// completion chains the source composes: callers that need "do X, then
// observe the result of X" block on Wait instead of nesting callbacks.
type Future[T any] struct {
	mu     sync.Mutex
	done   chan struct{}
	once   sync.Once
	value  T
	err    error
	closed bool
}

// NewFuture creates a not-yet-completed future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete fulfils the future with a value. Only the first call (of
// Complete or Fail) has an effect.
func (f *Future[T]) Complete(value T) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value = value
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	})
}

// Fail fulfils the future exceptionally. Only the first call (of
// Complete or Fail) has an effect.
func (f *Future[T]) Fail(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	})
}

// IsDone reports whether the future has already been fulfilled.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future is fulfilled, or ctx is done, whichever
// happens first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Completed returns a future that is already fulfilled with value.
func Completed[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(value)
	return f
}

// Failed returns a future that is already fulfilled exceptionally.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}
