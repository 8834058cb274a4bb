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
	"testing"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/statemachine"
)

var errRejected = errors.New("restore executor queue is full")

type fakeExecutor struct {
	restoreID string
	rejectErr error
}

func (f *fakeExecutor) Submit(ctx context.Context, req Request) (string, error) {
	if f.rejectErr != nil {
		return "", f.rejectErr
	}
	return f.restoreID, nil
}

type fakeWatcher struct {
	info *Info
	err  error
}

func (f *fakeWatcher) Await(ctx context.Context, restoreID string) (*Info, error) {
	return f.info, f.err
}

func newTestStateMachine(t *testing.T, sub *apiv1.Subscription) *statemachine.StateMachine {
	t.Helper()

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

	return statemachine.New(c, sub.Namespace)
}

func TestRestorePartialFailure(t *testing.T) {
	// S7: 10 shards, 3 failed -> relations FAILED mentioning 3/10, future resolves false.
	sub := &apiv1.Subscription{}
	sub.Name = "sub1"
	sub.Namespace = "default"
	sub.Status.Relations = map[string]apiv1.RelationState{
		"t1": {State: apiv1.RelationInitializing},
	}

	sm := newTestStateMachine(t, sub)
	coordinator := New(&fakeExecutor{restoreID: "r1"}, &fakeWatcher{info: &Info{TotalShards: 10, FailedShards: 3}}, sm)

	future := coordinator.Restore(context.Background(), "sub1", []string{"t1"}, []string{"t1"}, nil)
	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected exceptional completion: %v", err)
	}
	if result {
		t.Fatal("expected future to complete with false")
	}
}

func TestRestoreSuccess(t *testing.T) {
	sub := &apiv1.Subscription{}
	sub.Name = "sub1"
	sub.Namespace = "default"
	sub.Status.Relations = map[string]apiv1.RelationState{
		"t1": {State: apiv1.RelationInitializing},
	}

	sm := newTestStateMachine(t, sub)
	coordinator := New(&fakeExecutor{restoreID: "r1"}, &fakeWatcher{info: &Info{TotalShards: 4, FailedShards: 0}}, sm)

	future := coordinator.Restore(context.Background(), "sub1", []string{"t1"}, []string{"t1"}, nil)
	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result {
		t.Fatal("expected future to complete with true")
	}
}

func TestRestoreRejectedSubmission(t *testing.T) {
	sub := &apiv1.Subscription{}
	sub.Name = "sub1"
	sub.Namespace = "default"

	sm := newTestStateMachine(t, sub)
	coordinator := New(&fakeExecutor{rejectErr: errRejected}, &fakeWatcher{}, sm)

	future := coordinator.Restore(context.Background(), "sub1", []string{"t1"}, nil, nil)
	_, err := future.Wait(context.Background())
	if err == nil {
		t.Fatal("expected rejected submission to fail the future exceptionally")
	}
}

func TestVerifyTablesDoNotExist(t *testing.T) {
	existing := map[string]bool{"t1": true}
	err := VerifyTablesDoNotExist(
		[]string{"t1"}, nil,
		func(name string) bool { return existing[name] },
		nil,
	)
	if err == nil {
		t.Fatal("expected collision error")
	}
}
