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

// PublicationSpec identifies the publisher-side publication this object
// is a read-through cache of.
type PublicationSpec struct {
	// Name is the publication name on the publisher.
	Name string `json:"name"`

	// SubscriptionRef names the Subscription whose publisher connection
	// is used to refresh this cache.
	SubscriptionRef string `json:"subscriptionRef"`
}

// PublicationStatus is the cached, subscriber-side view of publisher
// state, refreshed by the MetadataTracker.
type PublicationStatus struct {
	// Owner is the publication owner as reported by the publisher.
	// +optional
	Owner string `json:"owner,omitempty"`

	// Relations is the list of relation names currently in the publication.
	// +optional
	Relations []string `json:"relations,omitempty"`

	// ForAllTables reports whether the publication covers every table.
	// +optional
	ForAllTables bool `json:"forAllTables,omitempty"`

	// Ready is true once at least one successful refresh has completed.
	// +optional
	Ready bool `json:"ready,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
// +kubebuilder:printcolumn:name="Subscription",type="string",JSONPath=".spec.subscriptionRef"

// Publication is the Schema for the publications API: a read-through
// cache, on the subscriber, of a publisher-side publication.
type Publication struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PublicationSpec   `json:"spec,omitempty"`
	Status PublicationStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// PublicationList contains a list of Publication.
type PublicationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Publication `json:"items"`
}

// GetKubernetesObject returns this Publication as a client.Object.
func (pub *Publication) GetKubernetesObject() client.Object {
	return pub
}

func init() {
	SchemeBuilder.Register(&Publication{}, &PublicationList{})
}
