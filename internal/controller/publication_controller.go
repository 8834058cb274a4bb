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

	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/store"
)

// PublicationReconciler keeps the in-process snapshot's Publications map
// current. Publication objects are a read-through cache refreshed by
// MetadataTracker (§4.6), so this reconciler never mutates spec or
// status itself — it only re-applies the namespace snapshot, the same
// way SubscriptionReconciler does.
type PublicationReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Store  *store.Store
}

// Reconcile re-applies the namespace snapshot whenever a Publication changes.
func (r *PublicationReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	var subList apiv1.SubscriptionList
	if err := r.List(ctx, &subList, client.InNamespace(req.Namespace)); err != nil {
		return ctrl.Result{}, err
	}

	var pubList apiv1.PublicationList
	if err := r.List(ctx, &pubList, client.InNamespace(req.Namespace)); err != nil {
		return ctrl.Result{}, err
	}

	snapshot := store.Snapshot{
		Subscriptions: make(map[string]apiv1.Subscription, len(subList.Items)),
		Publications:  make(map[string]apiv1.Publication, len(pubList.Items)),
	}
	for _, sub := range subList.Items {
		if sub.GetDeletionTimestamp() != nil {
			continue
		}
		snapshot.Subscriptions[sub.Name] = sub
	}
	for _, pub := range pubList.Items {
		snapshot.Publications[pub.Name] = pub
	}

	r.Store.Apply(snapshot)
	return ctrl.Result{}, nil
}

// SetupWithManager registers this reconciler with mgr.
func (r *PublicationReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&apiv1.Publication{}, builder.WithPredicates(generationChangedOrDeletedPredicate)).
		Complete(r)
}
