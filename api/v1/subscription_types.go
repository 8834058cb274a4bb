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

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// RelationPhase is a per-relation state, per the state machine of §4.5:
// INITIALIZING -> RESTORING -> SYNCHRONIZED, with FAILED reachable from
// any of the three and terminal unless the subscription is dropped and
// re-created.
type RelationPhase string

const (
	// RelationInitializing is the state of a relation just added to a subscription.
	RelationInitializing RelationPhase = "INITIALIZING"
	// RelationRestoring is the state of a relation whose initial snapshot restore is in flight.
	RelationRestoring RelationPhase = "RESTORING"
	// RelationSynchronized is the state of a relation that completed its initial restore.
	RelationSynchronized RelationPhase = "SYNCHRONIZED"
	// RelationFailed is a terminal state absent operator intervention.
	RelationFailed RelationPhase = "FAILED"
)

// RelationState is the observed state of one mirrored relation.
type RelationState struct {
	// State is the current phase of this relation.
	State RelationPhase `json:"state"`

	// FailureReason is set iff State is FAILED, and is preserved verbatim
	// across updates until explicitly cleared.
	// +optional
	FailureReason string `json:"failureReason,omitempty"`
}

// SubscriptionSpec defines the desired state of a Subscription: which
// publisher cluster to mirror, which publications on it to follow, and
// under which local owner.
type SubscriptionSpec struct {
	// Name is the subscription name, unique within the cluster.
	Name string `json:"name"`

	// Owner is the local user name on whose behalf DDL was issued.
	Owner string `json:"owner,omitempty"`

	// ConnectionString is the crate:// connection string of the publisher
	// cluster, see internal/logicalreplication/conninfo.
	ConnectionString string `json:"connectionString"`

	// Publications is the ordered list of publication names on the publisher.
	Publications []string `json:"publications"`

	// Settings holds opaque key/value replication options.
	// +optional
	Settings map[string]string `json:"settings,omitempty"`
}

// SubscriptionStatus is the observed state of a Subscription.
type SubscriptionStatus struct {
	// Relations maps relation name to its current replication state.
	// +optional
	Relations map[string]RelationState `json:"relations,omitempty"`

	// ObservedGeneration is the most recent spec generation the
	// supervisor has acted on.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
// +kubebuilder:printcolumn:name="Publisher",type="string",JSONPath=".spec.connectionString"

// Subscription is the Schema for the subscriptions API: a named local
// declaration of which publications to mirror from which publisher cluster.
type Subscription struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SubscriptionSpec   `json:"spec,omitempty"`
	Status SubscriptionStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// SubscriptionList contains a list of Subscription.
type SubscriptionList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Subscription `json:"items"`
}

// GetKubernetesObject returns this Subscription as a client.Object.
func (sub *Subscription) GetKubernetesObject() client.Object {
	return sub
}

// RelationNames returns the relation names currently tracked by this
// subscription, in map iteration order (unsorted). Callers that need a stable
// order should sort the result themselves.
func (sub *Subscription) RelationNames() []string {
	names := make([]string, 0, len(sub.Status.Relations))
	for name := range sub.Status.Relations {
		names = append(names, name)
	}
	return names
}

func init() {
	SchemeBuilder.Register(&Subscription{}, &SubscriptionList{})
}
