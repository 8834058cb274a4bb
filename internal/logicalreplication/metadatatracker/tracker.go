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

// Package metadatatracker implements §4.6's MetadataTracker: a
// master-only periodic reconciler, one ticking goroutine per tracked
// subscription, cooperatively scheduled and cancellable. It is grounded
// on internal/management/controller/roles/runnable.go's ticker/select
// loop (RoleSynchronizer.Start), generalized from "sync local roles
// against a ticker" to "poll a publisher and reconcile relations against
// a ticker".
package metadatatracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/remotecluster"
	"github.com/cratedb/logical-replication/internal/logicalreplication/replerrors"
	"github.com/cratedb/logical-replication/internal/logicalreplication/restore"
	"github.com/cratedb/logical-replication/internal/logicalreplication/statemachine"
	"github.com/cratedb/logical-replication/internal/logicalreplication/transport"
	"github.com/cratedb/logical-replication/pkg/management/log"
)

// SubscriptionReader gives the tracker read access to the current
// subscription definition, without needing a Kubernetes client directly.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, name string) (apiv1.Subscription, bool, error)
}

// Tracker is §4.6's MetadataTracker. It starts only while isMaster
// reports true, and one tick per subscription is prohibited from
// overlapping with itself.
type Tracker struct {
	registry    *remotecluster.Registry
	sm          *statemachine.StateMachine
	reader      SubscriptionReader
	isMaster    func() bool
	catalog     restore.LocalCatalog
	coordinator *restore.Coordinator

	// schedule decides how often each tracked subscription is polled; it
	// is parsed with robfig/cron, so operators can configure it with
	// familiar cron syntax instead of a bare duration.
	schedule cron.Schedule

	mu      sync.Mutex
	cancel  map[string]context.CancelFunc
	running bool
}

// New creates a Tracker. scheduleExpr is a robfig/cron expression (e.g.
// "@every 30s") controlling the tick interval for every tracked
// subscription. catalog and coordinator may be nil in tests that never
// exercise reconcileRelations' newly-published-relation path.
func New(
	registry *remotecluster.Registry,
	sm *statemachine.StateMachine,
	reader SubscriptionReader,
	isMaster func() bool,
	scheduleExpr string,
	catalog restore.LocalCatalog,
	coordinator *restore.Coordinator,
) (*Tracker, error) {
	schedule, err := cron.ParseStandard(scheduleExpr)
	if err != nil {
		// accept robfig/cron's "@every" shorthand too
		schedule, err = cron.Parse(scheduleExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid tracker schedule %q: %w", scheduleExpr, err)
		}
	}

	return &Tracker{
		registry:    registry,
		sm:          sm,
		reader:      reader,
		isMaster:    isMaster,
		catalog:     catalog,
		coordinator: coordinator,
		schedule:    schedule,
		cancel:      make(map[string]context.CancelFunc),
	}, nil
}

// MaybeStart is idempotent: it is a no-op unless this node is currently
// master and the tracker is not already running.
func (t *Tracker) MaybeStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isMaster() || t.running {
		return
	}
	t.running = true
}

// StopAll halts every tracked subscription's ticking goroutine. Safe to
// call when not master, or already stopped.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, cancel := range t.cancel {
		cancel()
		delete(t.cancel, name)
	}
	t.running = false
}

// StartTracking registers interest in subscriptionName and begins
// ticking it on a dedicated goroutine.
func (t *Tracker) StartTracking(ctx context.Context, subscriptionName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.cancel[subscriptionName]; exists {
		return
	}

	tickCtx, cancel := context.WithCancel(ctx)
	t.cancel[subscriptionName] = cancel
	go t.run(tickCtx, subscriptionName)
}

// StopTracking cancels subscriptionName's ticking goroutine. A tick
// already in flight is allowed to complete; its side effects stand.
func (t *Tracker) StopTracking(subscriptionName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancel[subscriptionName]; ok {
		cancel()
		delete(t.cancel, subscriptionName)
	}
}

func (t *Tracker) run(ctx context.Context, subscriptionName string) {
	contextLogger := log.FromContext(ctx).WithValues("subscription", subscriptionName)
	next := t.schedule.Next(time.Now())

	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			if !t.isMaster() {
				next = t.schedule.Next(now)
				continue
			}
			if err := t.tick(ctx, subscriptionName); err != nil {
				contextLogger.Error(err, "metadata tracker tick failed")
			}
			next = t.schedule.Next(now)
		}
	}
}

// tick is one pass of the periodic action in §4.6.
func (t *Tracker) tick(ctx context.Context, subscriptionName string) error {
	sub, found, err := t.reader.GetSubscription(ctx, subscriptionName)
	if err != nil || !found {
		return err
	}

	remote, err := t.registry.GetClient(subscriptionName)
	if err != nil {
		reason := "Failed to connect to the remote cluster"
		_, _ = t.sm.Update(ctx, subscriptionName, nil, apiv1.RelationFailed, &reason).Wait(ctx)
		return replerrors.Wrap(replerrors.KindRemoteConnectFailed, err, reason)
	}

	txClient, ok := remote.Transport()
	if !ok {
		return fmt.Errorf("subscription %q publisher is not reachable over the wire-RPC transport", subscriptionName)
	}

	resp, err := txClient.PublicationsState(ctx, transport.PublicationsStateRequest{
		Publications: sub.Spec.Publications,
		User:         sub.Spec.Owner,
	})
	if err != nil {
		reason := "Failed to request the publications state"
		_, _ = t.sm.Update(ctx, subscriptionName, nil, apiv1.RelationFailed, &reason).Wait(ctx)
		return replerrors.Wrap(replerrors.KindPublicationStateFailed, err, reason)
	}

	return t.reconcileRelations(ctx, subscriptionName, sub, txClient, resp)
}

func (t *Tracker) reconcileRelations(
	ctx context.Context,
	subscriptionName string,
	sub apiv1.Subscription,
	txClient transport.Client,
	resp transport.PublicationsStateResponse,
) error {
	published := make(map[string]struct{}, len(resp.Relations))
	for _, rel := range resp.Relations {
		published[rel.Name] = struct{}{}
	}

	var newlyPublished []string
	for name := range published {
		if _, tracked := sub.Status.Relations[name]; !tracked {
			newlyPublished = append(newlyPublished, name)
		}
	}

	var dropped []string
	for name, state := range sub.Status.Relations {
		if _, stillPublished := published[name]; !stillPublished && state.State != apiv1.RelationFailed {
			dropped = append(dropped, name)
		}
	}

	if len(dropped) > 0 {
		reason := "relation was dropped from the publication"
		if _, err := t.sm.Update(ctx, subscriptionName, dropped, apiv1.RelationFailed, &reason).
			Wait(ctx); err != nil {
			return err
		}
	}

	if len(newlyPublished) > 0 {
		if _, err := t.sm.Update(ctx, subscriptionName, newlyPublished, apiv1.RelationInitializing, nil).
			Wait(ctx); err != nil {
			return err
		}
		t.restoreNewlyPublished(ctx, subscriptionName, newlyPublished, resp)
	}

	if (len(dropped) > 0 || len(newlyPublished) > 0) && txClient != nil {
		t.reportRelationStates(ctx, subscriptionName, dropped, newlyPublished, txClient)
	}

	return nil
}

// restoreNewlyPublished invokes RestoreCoordinator.restore for relations
// the tracker has just discovered (§4.6 step 4): this is the only path
// that does so for relations added to an already-tracked subscription
// after its initial CREATE SUBSCRIPTION, which the Supervisor's own
// creation-time trigger never sees.
func (t *Tracker) restoreNewlyPublished(
	ctx context.Context,
	subscriptionName string,
	newlyPublished []string,
	resp transport.PublicationsStateResponse,
) {
	contextLogger := log.FromContext(ctx).WithValues("subscription", subscriptionName)

	if t.coordinator == nil {
		return
	}

	if t.catalog != nil {
		if err := restore.VerifyTablesDoNotExistUsing(ctx, t.catalog, resp.ConcreteIndices, resp.ConcreteTemplates); err != nil {
			reason := err.Error()
			if _, smErr := t.sm.Update(ctx, subscriptionName, newlyPublished, apiv1.RelationFailed, &reason).
				Wait(ctx); smErr != nil {
				contextLogger.Error(smErr, "failed to record FAILED state after a pre-flight collision")
			}
			contextLogger.Error(err, "pre-flight check rejected the restore of newly published relations")
			return
		}
	}

	if _, err := t.coordinator.Restore(ctx, subscriptionName, newlyPublished, resp.ConcreteIndices, resp.ConcreteTemplates).
		Wait(ctx); err != nil {
		contextLogger.Error(err, "restore of newly published relations failed")
	}
}

// reportRelationStates exercises transport.Client.UpdateSubscription,
// heartbeating the relation-state changes this tick just applied back
// to the publisher (§6's UpdateSubscriptionAction).
func (t *Tracker) reportRelationStates(
	ctx context.Context,
	subscriptionName string,
	dropped, newlyPublished []string,
	txClient transport.Client,
) {
	changed := make(map[string]string, len(dropped)+len(newlyPublished))
	for _, name := range dropped {
		changed[name] = string(apiv1.RelationFailed)
	}
	for _, name := range newlyPublished {
		changed[name] = string(apiv1.RelationInitializing)
	}

	if _, err := txClient.UpdateSubscription(ctx, transport.UpdateSubscriptionRequest{
		Name:      subscriptionName,
		Relations: changed,
	}); err != nil {
		log.FromContext(ctx).Error(err, "failed to report relation state changes to publisher",
			"subscription", subscriptionName)
	}
}
