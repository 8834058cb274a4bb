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

// Package concurrency contains small, generic primitives for coordinating
// goroutines without resorting to ambient singletons: a one-shot gate
// (Executed) and a generic single-assignment future (Future[T]).
package concurrency

import "sync"

// Executed is a one-shot gate: it starts not-done, and is flipped to done
// exactly once. Goroutines can wait for it or poll it without racing.
type Executed struct {
	once sync.Once
	done chan struct{}
}

// NewExecuted creates a new, not-yet-done gate.
func NewExecuted() *Executed {
	return &Executed{done: make(chan struct{})}
}

// Broadcast marks the gate as done. Safe to call more than once; only the
// first call has an effect.
func (e *Executed) Broadcast() {
	e.once.Do(func() { close(e.done) })
}

// IsDone reports whether the gate has already been broadcast.
func (e *Executed) IsDone() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the gate is broadcast, so it
// can be used directly in a select statement alongside ctx.Done().
func (e *Executed) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the gate is broadcast.
func (e *Executed) Wait() {
	<-e.done
}
