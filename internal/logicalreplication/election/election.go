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

// Package election tracks whether the local node is the elected "master"
// of §4.6/§4.7: the cluster coordinator that gates MetadataTracker
// ticking and per-subscription tracking start/stop. This is distinct
// from controller-runtime's own operator-replica leader election (which
// elects one manager process); here a single replica's MasterWatcher
// reports which database-cluster node currently holds the role, backed
// by a client-go Lease the same way controller-runtime's own leader
// election is backed by one.
package election

import (
	"context"
	"time"

	"go.uber.org/atomic"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/cratedb/logical-replication/internal/logicalreplication/metrics"
	"github.com/cratedb/logical-replication/pkg/management/log"
)

const (
	defaultLeaseDuration = 15 * time.Second
	defaultRenewDeadline = 10 * time.Second
	defaultRetryPeriod   = 2 * time.Second
)

// MasterWatcher reports whether the local node is currently the elected
// master. Implementations must be safe for concurrent use.
type MasterWatcher interface {
	IsMaster() bool
	// Run blocks, participating in the election, until ctx is done.
	Run(ctx context.Context, onStart, onStop func())
}

// LeaseWatcher is a MasterWatcher backed by a Kubernetes Lease, reusing
// client-go's leaderelection package the way it backs controller-runtime
// manager leader election.
type LeaseWatcher struct {
	client    kubernetes.Interface
	leaseName string
	namespace string
	identity  string

	isMaster atomic.Bool
}

// NewLeaseWatcher creates a LeaseWatcher for the given Lease coordinates.
func NewLeaseWatcher(client kubernetes.Interface, namespace, leaseName, identity string) *LeaseWatcher {
	return &LeaseWatcher{client: client, leaseName: leaseName, namespace: namespace, identity: identity}
}

// IsMaster reports whether this node currently holds the master role.
func (w *LeaseWatcher) IsMaster() bool {
	return w.isMaster.Load()
}

// Run participates in leader election until ctx is cancelled, calling
// onStart when mastership is acquired and onStop when it is lost.
func (w *LeaseWatcher) Run(ctx context.Context, onStart, onStop func()) {
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Namespace: w.namespace,
			Name:      w.leaseName,
		},
		Client: w.client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: w.identity,
		},
	}

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:          lock,
		LeaseDuration: defaultLeaseDuration,
		RenewDeadline: defaultRenewDeadline,
		RetryPeriod:   defaultRetryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				w.isMaster.Store(true)
				metrics.MasterStatus.Set(1)
				if onStart != nil {
					onStart()
				}
			},
			OnStoppedLeading: func() {
				w.isMaster.Store(false)
				metrics.MasterStatus.Set(0)
				if onStop != nil {
					onStop()
				}
			},
			OnNewLeader: func(identity string) {
				log.FromContext(ctx).Info("master node changed", "identity", identity)
			},
		},
	})
}

// Static is a MasterWatcher useful for tests and single-node
// deployments: it always reports the value it was constructed with.
type Static bool

// IsMaster reports the fixed value Static was constructed with.
func (s Static) IsMaster() bool { return bool(s) }

// Run calls onStart once (if master) and blocks until ctx is done.
func (s Static) Run(ctx context.Context, onStart, onStop func()) {
	if bool(s) && onStart != nil {
		onStart()
	}
	<-ctx.Done()
	if bool(s) && onStop != nil {
		onStop()
	}
}
