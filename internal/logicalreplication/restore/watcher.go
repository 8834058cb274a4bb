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
	"errors"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/cratedb/logical-replication/pkg/management/log"
)

// errStillInProgress is the sentinel Await's retry predicate retries
// on, mirroring pkg/management/postgres/restore.go's
// waitUntilRecoveryFinishes: poll a condition with client-go's
// backoff/retry helpers instead of a hand-rolled ticker loop.
var errStillInProgress = errors.New("restore still in progress")

// InProgressLookup peeks at the in-progress-restores table for
// restoreID, returning the terminal Info once it has disappeared. A
// false ok means the restore is still running.
type InProgressLookup func(ctx context.Context, restoreID string) (info *Info, ok bool)

// PollingCompletionWatcher implements CompletionWatcher by repeatedly
// peeking at an in-progress-restores table until the entry for a given
// restoreID disappears, the same polling shape
// pkg/management/postgres/restore.go uses for pg_is_in_recovery().
type PollingCompletionWatcher struct {
	lookup InProgressLookup
	delay  wait.Backoff
}

// NewPollingCompletionWatcher creates a watcher polling lookup on a
// fixed, unbounded-retries backoff (the restore itself, not this poll
// loop, is what ultimately bounds wait time via ctx cancellation).
func NewPollingCompletionWatcher(lookup InProgressLookup) *PollingCompletionWatcher {
	return &PollingCompletionWatcher{
		lookup: lookup,
		delay: wait.Backoff{
			Duration: 2 * time.Second,
			Factor:   1,
			Jitter:   0,
			Steps:    math.MaxInt64,
			Cap:      math.MaxInt64,
		},
	}
}

// Await blocks until restoreID's entry disappears from the
// in-progress-restores table, or ctx is cancelled.
func (w *PollingCompletionWatcher) Await(ctx context.Context, restoreID string) (*Info, error) {
	var result *Info

	err := retry.OnError(w.delay, func(err error) bool { return errors.Is(err, errStillInProgress) },
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			info, ok := w.lookup(ctx, restoreID)
			if !ok {
				log.FromContext(ctx).V(log.TraceLevel).Info("restore still in progress", "restoreID", restoreID)
				return errStillInProgress
			}

			result = info
			return nil
		})
	if err != nil {
		return nil, err
	}

	return result, nil
}
