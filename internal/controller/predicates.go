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

// Package controller reconciles Subscription and Publication CRDs into
// the internal cluster-state applier (store.Store), and drives
// subscription finalization. It is grounded on controllers/cluster_predicates.go
// and controllers/cluster_delete.go: the same predicate.Funcs-filtered
// watch idiom and the same client.Get/Delete/IsNotFound cleanup idiom,
// applied to Subscription/Publication instead of ConfigMap/Secret/Node.
package controller

import (
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
)

// generationChangedOrDeletedPredicate skips status-only updates: the
// applier only cares about spec changes and object lifecycle, not about
// the status writes the state machine itself performs, which would
// otherwise retrigger the very reconcile that produced them.
var generationChangedOrDeletedPredicate = predicate.Funcs{
	CreateFunc: func(e event.CreateEvent) bool {
		return true
	},
	DeleteFunc: func(e event.DeleteEvent) bool {
		return true
	},
	GenericFunc: func(e event.GenericEvent) bool {
		return true
	},
	UpdateFunc: func(e event.UpdateEvent) bool {
		oldSub, oldOk := e.ObjectOld.(*apiv1.Subscription)
		newSub, newOk := e.ObjectNew.(*apiv1.Subscription)
		if oldOk && newOk {
			return oldSub.GetGeneration() != newSub.GetGeneration() ||
				oldSub.GetDeletionTimestamp() != newSub.GetDeletionTimestamp()
		}

		oldPub, oldOk := e.ObjectOld.(*apiv1.Publication)
		newPub, newOk := e.ObjectNew.(*apiv1.Publication)
		if oldOk && newOk {
			return oldPub.GetGeneration() != newPub.GetGeneration() ||
				oldPub.GetDeletionTimestamp() != newPub.GetDeletionTimestamp()
		}

		return true
	},
}
