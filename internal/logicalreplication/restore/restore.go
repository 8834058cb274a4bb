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

// Package restore implements §4.4's RestoreCoordinator: it drives the
// initial snapshot restore per subscription and observes completion via
// a cluster-state-shaped listener, the way
// pkg/management/postgres/restore.go drives barman-cloud-restore and
// polls pg_is_in_recovery() to completion — here the "poll" is a
// completion watcher over an in-progress-restores keyed table instead of
// a direct process/SQL poll, per the design note on observer
// registration.
package restore

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/metrics"
	"github.com/cratedb/logical-replication/internal/logicalreplication/replerrors"
	"github.com/cratedb/logical-replication/internal/logicalreplication/statemachine"
	"github.com/cratedb/logical-replication/pkg/concurrency"
	"github.com/cratedb/logical-replication/pkg/management/log"
)

// RemoteRepoPrefix names the synthetic repository a restore is submitted
// against: "<REMOTE_REPO_PREFIX><subscriptionName>".
const RemoteRepoPrefix = "_remote_sub_"

// LatestSnapshotTag is the snapshot tag every restore targets.
const LatestSnapshotTag = "LATEST"

// Request is the RestoreRequest of §4.4 step 1: a snapshot restore
// against the synthetic per-subscription repository at a snapshot tag.
// It has no index-options or master-node-timeout field, and
// LocalExecutor sets neither option on the statement it issues.
type Request struct {
	Repository         string
	SnapshotTag        string
	RelationNames      []string
	IndicesToRestore   []string
	TemplatesToRestore []string
}

// Info is the RestoreInfo carried by a completion: how many of the
// restore's shards failed, out of how many total.
type Info struct {
	TotalShards  int
	FailedShards int
}

// Executor submits a restore request to an external restore service on
// a dedicated snapshot thread/pool. A non-nil error means the submission
// itself was refused (queue full, shutdown): the restore never started.
type Executor interface {
	Submit(ctx context.Context, req Request) (restoreID string, err error)
}

// CompletionWatcher awaits the disappearance of restoreID's entry from
// the in-progress-restores table, yielding the terminal Info. A nil Info
// with a nil error means the master was lost mid-restore
// (restoreInfo == null in §4.4 step 5).
type CompletionWatcher interface {
	Await(ctx context.Context, restoreID string) (*Info, error)
}

// Coordinator is §4.4's RestoreCoordinator.
type Coordinator struct {
	executor Executor
	watcher  CompletionWatcher
	sm       *statemachine.StateMachine
}

// New creates a Coordinator driving restores through executor/watcher,
// applying relation state transitions through sm.
func New(executor Executor, watcher CompletionWatcher, sm *statemachine.StateMachine) *Coordinator {
	return &Coordinator{executor: executor, watcher: watcher, sm: sm}
}

// VerifyTablesDoNotExist is the mandatory pre-flight check of §4.4: it
// fails with RelationAlreadyExists if any concrete index or template
// name the publisher reported already exists locally. existsLocally is
// injected so this stays testable without a live catalog. Partitioned
// tables are matched on the template name and translated back to the
// logical relation name for the error, via templateToRelation.
func VerifyTablesDoNotExist(
	concreteIndices, concreteTemplates []string,
	existsLocally func(name string) bool,
	templateToRelation func(template string) string,
) error {
	var errs error

	for _, index := range concreteIndices {
		if existsLocally(index) {
			errs = multierr.Append(errs, replerrors.New(replerrors.KindRelationAlreadyExists,
				"relation %q already exists locally", index))
		}
	}
	for _, tmpl := range concreteTemplates {
		if existsLocally(tmpl) {
			relation := tmpl
			if templateToRelation != nil {
				relation = templateToRelation(tmpl)
			}
			errs = multierr.Append(errs, replerrors.New(replerrors.KindRelationAlreadyExists,
				"relation %q already exists locally", relation))
		}
	}

	return errs
}

// LocalCatalog answers whether a relation already exists in the local
// cluster, the live-catalog collaborator VerifyTablesDoNotExistUsing
// needs. Both Supervisor (creation-time restores) and MetadataTracker
// (restores of relations discovered later) share one implementation of
// this instead of each building its own existsLocally closure.
type LocalCatalog interface {
	RelationExists(ctx context.Context, name string) (bool, error)
}

// VerifyTablesDoNotExistUsing is VerifyTablesDoNotExist wired against a
// live LocalCatalog: a catalog lookup error is treated as "does not
// exist" rather than blocking the restore, since the pre-flight check
// exists to catch an actual collision, not to fail closed on every
// catalog hiccup.
func VerifyTablesDoNotExistUsing(ctx context.Context, catalog LocalCatalog, concreteIndices, concreteTemplates []string) error {
	return VerifyTablesDoNotExist(concreteIndices, concreteTemplates, func(name string) bool {
		exists, err := catalog.RelationExists(ctx, name)
		if err != nil {
			log.FromContext(ctx).Error(err, "failed to check local catalog for a pre-flight collision", "relation", name)
			return false
		}
		return exists
	}, nil)
}

// Restore drives the full protocol of §4.4 and returns a future
// resolving to whether every shard of the restore completed
// successfully. Once the submission is accepted, the per-relation state
// is always updated before the future is observably completed (§4.4 step 6 / property: RESTORING
// observed before the terminal outcome).
func (c *Coordinator) Restore(
	ctx context.Context,
	subscriptionName string,
	relationNames []string,
	indicesToRestore []string,
	templatesToRestore []string,
) *concurrency.Future[bool] {
	future := concurrency.NewFuture[bool]()
	contextLogger := log.FromContext(ctx).WithValues("subscription", subscriptionName)

	req := Request{
		Repository:          RemoteRepoPrefix + subscriptionName,
		SnapshotTag:         LatestSnapshotTag,
		RelationNames:       relationNames,
		IndicesToRestore:    indicesToRestore,
		TemplatesToRestore:  templatesToRestore,
	}

	go func() {
		restoreID, err := c.executor.Submit(ctx, req)
		if err != nil {
			future.Fail(replerrors.Wrap(replerrors.KindRestoreRejected, err,
				"restore submission for subscription %q was rejected", subscriptionName))
			return
		}

		if _, waitErr := c.sm.Update(ctx, subscriptionName, relationNames, apiv1.RelationRestoring, nil).
			Wait(ctx); waitErr != nil {
			contextLogger.Error(waitErr, "failed to record RESTORING state before awaiting completion")
		}

		info, err := c.watcher.Await(ctx, restoreID)
		if err != nil {
			c.failRelations(ctx, subscriptionName, relationNames,
				"Error while initial restoring the subscription relations")
			future.Fail(err)
			return
		}

		c.applyOutcome(ctx, subscriptionName, relationNames, info, future)
	}()

	return future
}

func (c *Coordinator) applyOutcome(
	ctx context.Context,
	subscriptionName string,
	relationNames []string,
	info *Info,
	future *concurrency.Future[bool],
) {
	// Only the submission-rejected and unexpected-exception paths fail
	// the future exceptionally (§4.4 step 5); a restore that ran to
	// completion — however badly — always completes the future with a
	// boolean outcome, recording the failure reason on the relations
	// themselves instead.
	if info == nil {
		c.failRelations(ctx, subscriptionName, relationNames,
			"Error while initial restoring the subscription relations")
		metrics.RestoreOutcomeTotal.WithLabelValues(subscriptionName, "lost_master").Inc()
		future.Complete(false)
		return
	}

	switch {
	case info.FailedShards == 0:
		if _, err := c.sm.Update(ctx, subscriptionName, relationNames, apiv1.RelationSynchronized, nil).
			Wait(ctx); err != nil {
			log.FromContext(ctx).Error(err, "failed to record SYNCHRONIZED state")
		}
		metrics.RestoreOutcomeTotal.WithLabelValues(subscriptionName, "synchronized").Inc()
		future.Complete(true)

	case info.FailedShards < info.TotalShards:
		reason := fmt.Sprintf("restore partially failed: %d/%d shards failed", info.FailedShards, info.TotalShards)
		c.failRelations(ctx, subscriptionName, relationNames, reason)
		metrics.RestoreOutcomeTotal.WithLabelValues(subscriptionName, "partial").Inc()
		future.Complete(false)

	default:
		c.failRelations(ctx, subscriptionName, relationNames, "restore failed: all shards failed")
		metrics.RestoreOutcomeTotal.WithLabelValues(subscriptionName, "failed").Inc()
		future.Complete(false)
	}
}

func (c *Coordinator) failRelations(ctx context.Context, subscriptionName string, relationNames []string, reason string) {
	if _, err := c.sm.Update(ctx, subscriptionName, relationNames, apiv1.RelationFailed, &reason).Wait(ctx); err != nil {
		log.FromContext(ctx).Error(err, "failed to record FAILED state")
	}
}
