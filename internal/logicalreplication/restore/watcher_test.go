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

package restore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAwaitReturnsOnceLookupSucceeds(t *testing.T) {
	var attempts int32
	lookup := func(ctx context.Context, restoreID string) (*Info, bool) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, false
		}
		return &Info{TotalShards: 2, FailedShards: 0}, true
	}

	watcher := NewPollingCompletionWatcher(lookup)
	watcher.delay.Duration = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := watcher.Await(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil || info.TotalShards != 2 {
		t.Fatalf("expected the terminal Info to be returned, got %+v", info)
	}
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected at least 3 polling attempts, got %d", attempts)
	}
}

func TestAwaitRespectsContextCancellation(t *testing.T) {
	lookup := func(ctx context.Context, restoreID string) (*Info, bool) {
		return nil, false
	}

	watcher := NewPollingCompletionWatcher(lookup)
	watcher.delay.Duration = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := watcher.Await(ctx, "r1"); err == nil {
		t.Fatal("expected Await to fail once the context is done")
	}
}
