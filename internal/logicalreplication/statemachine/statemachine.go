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

// Package statemachine implements §4.5's SubscriptionStateMachine: the
// per-relation transitions INITIALIZING -> RESTORING -> SYNCHRONIZED,
// with FAILED reachable from any of the three and terminal unless the
// subscription is dropped and re-created. Updates are carried out as an
// UpdateSubscription RPC against the cluster master — here, the
// Kubernetes API server reached through a controller-runtime client,
// i.e. a Status().Update() call.
package statemachine

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/pkg/concurrency"
	"github.com/cratedb/logical-replication/pkg/management/log"
)

// StateMachine applies relation state transitions to a Subscription's
// status through the supplied client.
type StateMachine struct {
	client    client.Client
	namespace string
}

// New creates a StateMachine acting on subscriptions in namespace.
func New(c client.Client, namespace string) *StateMachine {
	return &StateMachine{client: c, namespace: namespace}
}

// isLegalTransition reports whether moving from `from` to `to` is one of
// the transitions in §4.5's diagram. FAILED is reachable from every
// state; moving away from SYNCHRONIZED to RESTORING is the one
// transition the core itself must never perform (property 5).
func isLegalTransition(from, to apiv1.RelationPhase) bool {
	if from == "" {
		from = apiv1.RelationInitializing
	}
	switch to {
	case apiv1.RelationFailed:
		return true
	case apiv1.RelationInitializing:
		return from == "" || from == apiv1.RelationInitializing
	case apiv1.RelationRestoring:
		return from == apiv1.RelationInitializing || from == apiv1.RelationRestoring
	case apiv1.RelationSynchronized:
		return from == apiv1.RelationRestoring || from == apiv1.RelationSynchronized
	default:
		return false
	}
}

// Update constructs a new Subscription value with the requested
// RelationStates merged over the old mapping for exactly the relations
// named (all of them, if relationNames is empty, for the cluster-wide
// shape), and submits it as a status update to the cluster master.
//
// It returns a future resolving to whether the update was acknowledged.
// If the named subscription no longer exists at call time, it resolves
// to false without ever calling the RPC (§4.5, §7 SubscriptionMissing).
func (sm *StateMachine) Update(
	ctx context.Context,
	subscriptionName string,
	relationNames []string,
	newState apiv1.RelationPhase,
	failureReason *string,
) *concurrency.Future[bool] {
	future := concurrency.NewFuture[bool]()

	go func() {
		var sub apiv1.Subscription
		err := sm.client.Get(ctx, types.NamespacedName{Namespace: sm.namespace, Name: subscriptionName}, &sub)
		if apierrors.IsNotFound(err) {
			future.Complete(false)
			return
		}
		if err != nil {
			future.Fail(fmt.Errorf("fetching subscription %q: %w", subscriptionName, err))
			return
		}

		targets := relationNames
		if len(targets) == 0 {
			targets = sub.RelationNames()
		}

		if sub.Status.Relations == nil {
			sub.Status.Relations = map[string]apiv1.RelationState{}
		}

		for _, name := range targets {
			current := sub.Status.Relations[name]
			if !isLegalTransition(current.State, newState) {
				log.FromContext(ctx).Info("skipping illegal relation state transition",
					"subscription", subscriptionName, "relation", name,
					"from", current.State, "to", newState)
				continue
			}
			updated := apiv1.RelationState{State: newState}
			if failureReason != nil {
				updated.FailureReason = *failureReason
			}
			sub.Status.Relations[name] = updated
		}

		if err := sm.client.Status().Update(ctx, &sub); err != nil {
			if apierrors.IsNotFound(err) || apierrors.IsConflict(err) {
				future.Complete(false)
				return
			}
			future.Fail(fmt.Errorf("updating subscription %q status: %w", subscriptionName, err))
			return
		}

		future.Complete(true)
	}()

	return future
}
