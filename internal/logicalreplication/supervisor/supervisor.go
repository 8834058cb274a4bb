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

// Package supervisor implements §4.7's Supervisor / LogicalReplicationService:
// it composes RemoteClusterRegistry, SubscriptionStore, RestoreCoordinator
// and MetadataTracker, owns their lifecycle, and reacts to cluster-state
// events and master-election changes. It is grounded on
// internal/management/controller/manager.go's InstanceReconciler: the
// same "holds its collaborators and a concurrency.Executed readiness
// gate" shape, generalized from one local PostgreSQL instance to the set
// of subscriptions this node's replica tracks.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/conninfo"
	"github.com/cratedb/logical-replication/internal/logicalreplication/election"
	"github.com/cratedb/logical-replication/internal/logicalreplication/metadatatracker"
	"github.com/cratedb/logical-replication/internal/logicalreplication/remotecluster"
	"github.com/cratedb/logical-replication/internal/logicalreplication/restore"
	"github.com/cratedb/logical-replication/internal/logicalreplication/statemachine"
	"github.com/cratedb/logical-replication/internal/logicalreplication/store"
	"github.com/cratedb/logical-replication/internal/logicalreplication/transport"
	"github.com/cratedb/logical-replication/pkg/concurrency"
	"github.com/cratedb/logical-replication/pkg/management/log"
)

// RemoteRepoPrefix names the synthetic repository registered for each
// subscription, mirrored from restore.RemoteRepoPrefix so callers don't
// need to import the restore package just to read a log line.
const RemoteRepoPrefix = restore.RemoteRepoPrefix

// RepositoriesService is the external collaborator that must be
// installed before any subscription event is processed (§4.7 hard
// invariant): it registers/unregisters the synthetic per-subscription
// snapshot repository a restore is submitted against, pointed at the
// publisher identified by info.
type RepositoriesService interface {
	RegisterRepository(ctx context.Context, name string, info conninfo.ConnectionInfo) error
	UnregisterRepository(ctx context.Context, name string)
}

// Supervisor is §4.7's Supervisor / LogicalReplicationService.
type Supervisor struct {
	registry *remotecluster.Registry
	store    *store.Store
	tracker  *metadatatracker.Tracker
	restore  *restore.Coordinator
	sm       *statemachine.StateMachine
	master   election.MasterWatcher
	catalog  restore.LocalCatalog

	mu           sync.Mutex
	repositories RepositoriesService
	ready        *concurrency.Executed
}

// New creates a Supervisor. The RepositoriesService MUST be installed
// via SetRepositoriesService before any subscription event is processed;
// calling that invariant's violation a programming error matches §4.7.
// catalog may be nil in tests that never exercise the creation-time
// restore trigger.
func New(
	registry *remotecluster.Registry,
	subscriptionStore *store.Store,
	tracker *metadatatracker.Tracker,
	coordinator *restore.Coordinator,
	sm *statemachine.StateMachine,
	master election.MasterWatcher,
	catalog restore.LocalCatalog,
) *Supervisor {
	return &Supervisor{
		registry: registry,
		store:    subscriptionStore,
		tracker:  tracker,
		restore:  coordinator,
		sm:       sm,
		master:   master,
		catalog:  catalog,
		ready:    concurrency.NewExecuted(),
	}
}

// SetRepositoriesService installs the external RepositoriesService.
// Must be called exactly once, before the store starts delivering events.
func (s *Supervisor) SetRepositoriesService(svc RepositoriesService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repositories = svc
	s.ready.Broadcast()
}

// OnSubscriptionAdded implements store.Listener. It registers the
// synthetic repository, connects the remote cluster and, only if this
// node is currently master, starts tracking.
func (s *Supervisor) OnSubscriptionAdded(name string, sub apiv1.Subscription) {
	ctx := context.Background()
	contextLogger := log.FromContext(ctx).WithValues("subscription", name)

	if !s.ready.IsDone() {
		panic(fmt.Sprintf("programming error: subscription %q observed before RepositoriesService was installed", name))
	}

	info, err := conninfo.Parse(sub.Spec.ConnectionString)
	if err != nil {
		contextLogger.Error(err, "subscription has an invalid connection string")
		return
	}

	if err := s.repositories.RegisterRepository(ctx, RemoteRepoPrefix+name, info); err != nil {
		contextLogger.Error(err, "failed to register synthetic repository")
		return
	}

	connectFuture := s.registry.Connect(ctx, name, info)

	if s.master.IsMaster() {
		s.tracker.StartTracking(ctx, name)
		go s.triggerInitialRestore(ctx, name, sub, connectFuture)
	}
}

// triggerInitialRestore is the creation-time restore trigger of §4.4 step
// 1: as soon as the just-added subscription's remote cluster handle
// resolves, it asks the publisher for its current publication state and
// submits the initial snapshot restore for every relation reported,
// after the mandatory pre-flight existence check. A connect failure or a
// pre-flight collision is logged and no restore is submitted; later
// discovery of the same relations falls to MetadataTracker's own
// reconcileRelations pass.
func (s *Supervisor) triggerInitialRestore(
	ctx context.Context,
	name string,
	sub apiv1.Subscription,
	connectFuture *concurrency.Future[remotecluster.Client],
) {
	contextLogger := log.FromContext(ctx).WithValues("subscription", name)

	remote, err := connectFuture.Wait(ctx)
	if err != nil {
		contextLogger.Error(err, "failed to connect to the remote cluster for the initial restore")
		return
	}

	txClient, ok := remote.Transport()
	if !ok {
		contextLogger.Info("publisher is not reachable over the wire-RPC transport, skipping the initial restore trigger")
		return
	}

	resp, err := txClient.PublicationsState(ctx, transport.PublicationsStateRequest{
		Publications: sub.Spec.Publications,
		User:         sub.Spec.Owner,
	})
	if err != nil {
		contextLogger.Error(err, "failed to request the publications state for the initial restore")
		return
	}

	var relationNames []string
	for _, rel := range resp.Relations {
		relationNames = append(relationNames, rel.Name)
	}
	if len(relationNames) == 0 {
		return
	}

	if s.catalog != nil {
		if err := restore.VerifyTablesDoNotExistUsing(ctx, s.catalog, resp.ConcreteIndices, resp.ConcreteTemplates); err != nil {
			contextLogger.Error(err, "pre-flight check rejected the initial restore")
			return
		}
	}

	if _, err := s.Restore(ctx, name, relationNames, resp.ConcreteIndices, resp.ConcreteTemplates).Wait(ctx); err != nil {
		contextLogger.Error(err, "initial restore failed")
	}
}

// OnSubscriptionRemoved implements store.Listener, reversing OnSubscriptionAdded.
func (s *Supervisor) OnSubscriptionRemoved(name string) {
	ctx := context.Background()

	s.tracker.StopTracking(name)
	s.registry.Remove(ctx, name)
	s.repositories.UnregisterRepository(ctx, RemoteRepoPrefix+name)
}

// OnMasterChange starts or stops the tracker as a whole when mastership
// changes. Individual per-subscription trackers are started lazily on
// the next subscription add, matching §4.7.
func (s *Supervisor) OnMasterChange(ctx context.Context, isMaster bool) {
	if isMaster {
		s.tracker.MaybeStart()
		for name, sub := range s.store.Current().Subscriptions {
			_ = sub
			s.tracker.StartTracking(ctx, name)
		}
		return
	}
	s.tracker.StopAll()
}

// Restore exposes the restore entry point DDL handling calls into:
// CREATE SUBSCRIPTION flows through here. It runs no pre-flight check
// itself; callers run VerifyTablesDoNotExistUsing first, as
// triggerInitialRestore does.
func (s *Supervisor) Restore(
	ctx context.Context,
	subscriptionName string,
	relationNames, indicesToRestore, templatesToRestore []string,
) *concurrency.Future[bool] {
	return s.restore.Restore(ctx, subscriptionName, relationNames, indicesToRestore, templatesToRestore)
}

var _ store.Listener = (*Supervisor)(nil)
