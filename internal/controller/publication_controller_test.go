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
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/store"
)

func TestPublicationReconcileUpdatesSnapshot(t *testing.T) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("adding client-go scheme: %v", err)
	}
	if err := apiv1.AddToScheme(scheme); err != nil {
		t.Fatalf("adding apiv1 scheme: %v", err)
	}

	pub := &apiv1.Publication{}
	pub.Name = "pub1"
	pub.Namespace = "default"
	pub.Spec.SubscriptionRef = "sub1"

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(pub).Build()
	listener := &recordingListener{}
	r := &PublicationReconciler{Client: c, Scheme: scheme, Store: store.New(listener)}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Namespace: "default", Name: "pub1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshot := r.Store.Current()
	if _, ok := snapshot.Publications["pub1"]; !ok {
		t.Fatal("expected pub1 to be present in the snapshot")
	}
}
