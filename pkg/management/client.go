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

// Package management holds the small set of Kubernetes client
// constructors shared by every subscriber-node process: the shared
// Scheme, a standalone typed controller-runtime client, and the event
// recorder used to surface relation state transitions as
// Kubernetes Events on the owning Subscription.
package management

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
)

// Scheme is shared by every client constructed here: client-go's
// built-ins plus the Subscription/Publication CRD types.
var Scheme = runtime.NewScheme()

func init() {
	_ = clientgoscheme.AddToScheme(Scheme)
	_ = apiv1.AddToScheme(Scheme)
}

// NewControllerRuntimeClient creates a typed client with the
// Subscription/Publication CRDs already registered, using in-cluster
// config. The subscriber run command does not use it: its reconcilers
// and StateMachine act through the manager's own client, built with the
// same Scheme.
func NewControllerRuntimeClient() (client.Client, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}

	return client.New(config, client.Options{Scheme: Scheme})
}

// newClientGoClient creates a client-go kubernetes interface, used only
// to build the event recorder below.
func newClientGoClient() (kubernetes.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}

	return kubernetes.NewForConfig(config)
}

// NewEventRecorder creates an event recorder components can use to
// surface relation state transitions (e.g. FAILED with its reason) as
// Kubernetes Events against the owning Subscription, without growing
// StateMachine's own responsibilities.
func NewEventRecorder() (record.EventRecorder, error) {
	kubeClient, err := newClientGoClient()
	if err != nil {
		return nil, err
	}

	eventBroadcaster := record.NewBroadcaster()
	eventBroadcaster.StartRecordingToSink(
		&typedcorev1.EventSinkImpl{
			Interface: kubeClient.CoreV1().Events(""),
		})
	recorder := eventBroadcaster.NewRecorder(
		Scheme,
		corev1.EventSource{Component: "logical-replication-subscriber"},
	)

	return recorder, nil
}
