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

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/internal/logicalreplication/store"
	"github.com/cratedb/logical-replication/pkg/management/log"
)

// subscriptionFinalizerName guards against a Subscription being removed
// from the API server before the supervisor has had a chance to observe
// the deletion and unregister the remote cluster / synthetic repository.
const subscriptionFinalizerName = "logicalreplication.cratedb.io/subscription-finalizer"

// SubscriptionReconciler projects Subscription CRDs into the in-process
// cluster-state applier. It owns no PostgreSQL/CrateDB connectivity
// itself; all of that lives behind store.Listener (the Supervisor).
type SubscriptionReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Store  *store.Store
}

// Reconcile implements the applier half of §4.3: on every observed
// change to a Subscription or Publication in a namespace, it rebuilds
// the full snapshot for that namespace and applies it, letting
// store.Store compute and fire the add/remove diff.
func (r *SubscriptionReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	contextLogger := log.FromContext(ctx).WithValues("subscription", req.Name, "namespace", req.Namespace)

	var sub apiv1.Subscription
	err := r.Get(ctx, req.NamespacedName, &sub)
	switch {
	case apierrors.IsNotFound(err):
		return ctrl.Result{}, r.rebuildSnapshot(ctx, req.Namespace)
	case err != nil:
		return ctrl.Result{}, err
	}

	if sub.GetDeletionTimestamp() != nil {
		if controllerutil.ContainsFinalizer(&sub, subscriptionFinalizerName) {
			// The applier removes this subscription from the snapshot
			// first (firing OnSubscriptionRemoved through the
			// Supervisor, which unregisters the remote cluster and the
			// synthetic repository), then lets the object actually go.
			if err := r.rebuildSnapshot(ctx, req.Namespace); err != nil {
				return ctrl.Result{}, err
			}
			controllerutil.RemoveFinalizer(&sub, subscriptionFinalizerName)
			if err := r.Update(ctx, &sub); err != nil && !apierrors.IsConflict(err) {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&sub, subscriptionFinalizerName) {
		controllerutil.AddFinalizer(&sub, subscriptionFinalizerName)
		if err := r.Update(ctx, &sub); err != nil {
			if apierrors.IsConflict(err) {
				return ctrl.Result{Requeue: true}, nil
			}
			return ctrl.Result{}, err
		}
	}

	if err := r.rebuildSnapshot(ctx, req.Namespace); err != nil {
		contextLogger.Error(err, "failed to rebuild cluster-state snapshot")
		return ctrl.Result{}, err
	}

	return ctrl.Result{}, nil
}

// rebuildSnapshot lists every Subscription and Publication in namespace
// and applies the resulting store.Snapshot, letting the applier compute
// the subscription-set diff itself (§4.3).
func (r *SubscriptionReconciler) rebuildSnapshot(ctx context.Context, namespace string) error {
	var subList apiv1.SubscriptionList
	if err := r.List(ctx, &subList, client.InNamespace(namespace)); err != nil {
		return err
	}

	var pubList apiv1.PublicationList
	if err := r.List(ctx, &pubList, client.InNamespace(namespace)); err != nil {
		return err
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
	return nil
}

// SetupWithManager registers this reconciler with mgr, watching both
// Subscription and Publication objects since either can change the
// per-namespace snapshot.
func (r *SubscriptionReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&apiv1.Subscription{}, builder.WithPredicates(generationChangedOrDeletedPredicate)).
		Watches(&apiv1.Publication{}, handler.EnqueueRequestsFromMapFunc(r.mapPublicationToSubscriptions)).
		Complete(r)
}

// mapPublicationToSubscriptions requeues every Subscription in a
// Publication's namespace whenever that Publication changes: a
// publisher-side publication gaining or losing relations is exactly the
// kind of event MetadataTracker polls for independently, but the
// snapshot the applier holds should reflect it promptly too.
func (r *SubscriptionReconciler) mapPublicationToSubscriptions(ctx context.Context, obj client.Object) []ctrl.Request {
	var subList apiv1.SubscriptionList
	if err := r.List(ctx, &subList, client.InNamespace(obj.GetNamespace())); err != nil {
		log.FromContext(ctx).Error(err, "failed to list subscriptions for publication watch")
		return nil
	}

	requests := make([]ctrl.Request, 0, len(subList.Items))
	for _, sub := range subList.Items {
		requests = append(requests, ctrl.Request{
			NamespacedName: client.ObjectKeyFromObject(&sub),
		})
	}
	return requests
}
