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

package supervisor

import (
	"context"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/conninfo"
	"github.com/cratedb/logical-replication/internal/logicalreplication/election"
	"github.com/cratedb/logical-replication/internal/logicalreplication/metadatatracker"
	"github.com/cratedb/logical-replication/internal/logicalreplication/remotecluster"
	"github.com/cratedb/logical-replication/internal/logicalreplication/restore"
	"github.com/cratedb/logical-replication/internal/logicalreplication/statemachine"
	"github.com/cratedb/logical-replication/internal/logicalreplication/store"
	"github.com/cratedb/logical-replication/internal/logicalreplication/transport"
)

type fakeRepositories struct {
	registered   []string
	unregistered []string
}

func (f *fakeRepositories) RegisterRepository(ctx context.Context, name string, info conninfo.ConnectionInfo) error {
	f.registered = append(f.registered, name)
	return nil
}

func (f *fakeRepositories) UnregisterRepository(ctx context.Context, name string) {
	f.unregistered = append(f.unregistered, name)
}

func TestOnSubscriptionAddedPanicsBeforeRepositoriesServiceInstalled(t *testing.T) {
	registry := remotecluster.New(nil)
	tracker, err := metadatatracker.New(registry, nil, nil, func() bool { return false }, "@every 1h", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	super := New(registry, store.New(nil), tracker, nil, nil, election.Static(false), nil)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a subscription observed before SetRepositoriesService to panic")
		}
	}()

	sub := apiv1.Subscription{}
	sub.Spec.ConnectionString = "crate://host1:5432"
	super.OnSubscriptionAdded("sub1", sub)
}

func TestOnSubscriptionAddedRegistersRepositoryOnceReady(t *testing.T) {
	registry := remotecluster.New(func(ctx context.Context, info conninfo.ConnectionInfo) (remotecluster.Client, error) {
		return nil, nil
	})
	tracker, err := metadatatracker.New(registry, nil, nil, func() bool { return false }, "@every 1h", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	super := New(registry, store.New(nil), tracker, nil, nil, election.Static(false), nil)

	repos := &fakeRepositories{}
	super.SetRepositoriesService(repos)

	sub := apiv1.Subscription{}
	sub.Spec.ConnectionString = "crate://host1:5432"
	super.OnSubscriptionAdded("sub1", sub)

	if len(repos.registered) != 1 || repos.registered[0] != RemoteRepoPrefix+"sub1" {
		t.Fatalf("expected the synthetic repository to be registered, got %+v", repos.registered)
	}

	super.OnSubscriptionRemoved("sub1")
	if len(repos.unregistered) != 1 || repos.unregistered[0] != RemoteRepoPrefix+"sub1" {
		t.Fatalf("expected the synthetic repository to be unregistered, got %+v", repos.unregistered)
	}
}

type fakeCatalog struct {
	existing map[string]bool
}

func (c *fakeCatalog) RelationExists(ctx context.Context, name string) (bool, error) {
	return c.existing[name], nil
}

type fakeExecutor struct {
	restoreID string
}

func (f *fakeExecutor) Submit(ctx context.Context, req restore.Request) (string, error) {
	return f.restoreID, nil
}

type fakeWatcher struct {
	info *restore.Info
}

func (f *fakeWatcher) Await(ctx context.Context, restoreID string) (*restore.Info, error) {
	return f.info, nil
}

type fakeTransportClient struct{}

func (f *fakeTransportClient) PublicationsState(ctx context.Context, req transport.PublicationsStateRequest) (transport.PublicationsStateResponse, error) {
	return transport.PublicationsStateResponse{
		ConcreteIndices: []string{"t1"},
		Relations:       []transport.RelationDescriptor{{Name: "t1"}},
	}, nil
}

func (f *fakeTransportClient) UpdateSubscription(ctx context.Context, req transport.UpdateSubscriptionRequest) (transport.AcknowledgedResponse, error) {
	return transport.AcknowledgedResponse{Acknowledged: true}, nil
}

func (f *fakeTransportClient) Close() error { return nil }

type fakeRemoteClient struct {
	info conninfo.ConnectionInfo
	tx   transport.Client
}

func (c *fakeRemoteClient) ConnectionInfo() conninfo.ConnectionInfo { return c.info }
func (c *fakeRemoteClient) Transport() (transport.Client, bool)     { return c.tx, c.tx != nil }
func (c *fakeRemoteClient) Close(ctx context.Context) error         { return nil }

func TestOnSubscriptionAddedTriggersInitialRestoreWhenMaster(t *testing.T) {
	sub := &apiv1.Subscription{}
	sub.Name = "sub1"
	sub.Namespace = "default"
	sub.Spec.ConnectionString = "crate://host1:5432"

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("adding client-go scheme: %v", err)
	}
	if err := apiv1.AddToScheme(scheme); err != nil {
		t.Fatalf("adding apiv1 scheme: %v", err)
	}
	c := fake.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&apiv1.Subscription{}).
		WithObjects(sub).
		Build()
	sm := statemachine.New(c, sub.Namespace)

	coordinator := restore.New(&fakeExecutor{restoreID: "r1"},
		&fakeWatcher{info: &restore.Info{TotalShards: 1, FailedShards: 0}}, sm)

	registry := remotecluster.New(func(ctx context.Context, info conninfo.ConnectionInfo) (remotecluster.Client, error) {
		return &fakeRemoteClient{info: info, tx: &fakeTransportClient{}}, nil
	})

	tracker, err := metadatatracker.New(registry, sm, nil, func() bool { return true }, "@every 1h", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	catalog := &fakeCatalog{existing: map[string]bool{}}
	super := New(registry, store.New(nil), tracker, coordinator, sm, election.Static(true), catalog)
	super.SetRepositoriesService(&fakeRepositories{})
	defer super.tracker.StopTracking("sub1")

	super.OnSubscriptionAdded("sub1", *sub)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var refetched apiv1.Subscription
		if err := c.Get(context.Background(), types.NamespacedName{Namespace: "default", Name: "sub1"}, &refetched); err != nil {
			t.Fatalf("unexpected error refetching subscription: %v", err)
		}
		if state, ok := refetched.Status.Relations["t1"]; ok && state.State == apiv1.RelationSynchronized {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for the initial restore to record t1 as SYNCHRONIZED, got %+v",
				refetched.Status.Relations)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
