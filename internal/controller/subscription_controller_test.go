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

package controller

import (
	"context"
	"testing"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/store"
)

type recordingListener struct {
	added   []string
	removed []string
}

func (l *recordingListener) OnSubscriptionAdded(name string, _ apiv1.Subscription) {
	l.added = append(l.added, name)
}

func (l *recordingListener) OnSubscriptionRemoved(name string) {
	l.removed = append(l.removed, name)
}

func newTestReconciler(t *testing.T, objs ...client.Object) (*SubscriptionReconciler, *recordingListener) {
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
		WithObjects(objs...).
		Build()

	listener := &recordingListener{}
	return &SubscriptionReconciler{Client: c, Scheme: scheme, Store: store.New(listener)}, listener
}

func TestSubscriptionReconcileAddsFinalizerAndSnapshot(t *testing.T) {
	sub := &apiv1.Subscription{}
	sub.Name = "sub1"
	sub.Namespace = "default"
	sub.Spec.ConnectionString = "crate://example.com:4300"

	r, listener := newTestReconciler(t, sub)

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Namespace: "default", Name: "sub1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var persisted apiv1.Subscription
	if err := r.Get(context.Background(), types.NamespacedName{Namespace: "default", Name: "sub1"}, &persisted); err != nil {
		t.Fatalf("fetching subscription: %v", err)
	}
	if !controllerutil.ContainsFinalizer(&persisted, subscriptionFinalizerName) {
		t.Fatal("expected finalizer to be added")
	}

	if len(listener.added) != 1 || listener.added[0] != "sub1" {
		t.Fatalf("expected OnSubscriptionAdded(sub1), got %v", listener.added)
	}
}

func TestSubscriptionReconcileMissingRebuildsSnapshot(t *testing.T) {
	r, listener := newTestReconciler(t)

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Namespace: "default", Name: "gone"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listener.added) != 0 || len(listener.removed) != 0 {
		t.Fatalf("expected no listener calls for an empty namespace, got added=%v removed=%v", listener.added, listener.removed)
	}
}
