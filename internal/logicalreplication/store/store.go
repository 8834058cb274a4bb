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

// Package store implements §4.3's SubscriptionStore: it projects
// cluster-state updates (here, a full Subscription/Publication
// reconciler snapshot) into a current map, and emits add/remove diffs.
// It is storage-agnostic — it knows nothing about Kubernetes — so it is
// unit-testable by feeding it plain maps directly.
package store

import (
	"context"
	"reflect"

	"go.uber.org/atomic"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
	"github.com/cratedb/logical-replication/pkg/stringset"
)

// Snapshot is an immutable projection of the current subscriptions and
// publications. Readers take a reference and never see a torn snapshot.
type Snapshot struct {
	Subscriptions map[string]apiv1.Subscription
	Publications  map[string]apiv1.Publication
}

// Diff describes which subscriptions were added and removed between two
// snapshots.
type Diff struct {
	Added   []string
	Removed []string
}

// Listener receives per-subscription add/remove callbacks, in the order
// the applier observed them. The Supervisor implements this.
type Listener interface {
	OnSubscriptionAdded(name string, sub apiv1.Subscription)
	OnSubscriptionRemoved(name string)
}

// Store holds a volatile reference to the current snapshot; it is
// updated from a single cluster-state applier goroutine, and read from
// many.
type Store struct {
	current  atomic.Pointer[Snapshot]
	listener atomic.Pointer[Listener]
}

// New creates an empty store reporting diffs to listener. listener may
// be nil if it will be installed later with SetListener — the
// Supervisor typically implements Listener and is itself constructed
// from this Store, so the two can't always be built in listener-first
// order.
func New(listener Listener) *Store {
	s := &Store{}
	if listener != nil {
		s.listener.Store(&listener)
	}
	s.current.Store(&Snapshot{
		Subscriptions: map[string]apiv1.Subscription{},
		Publications:  map[string]apiv1.Publication{},
	})
	return s
}

// SetListener installs or replaces the listener notified by Apply.
func (s *Store) SetListener(listener Listener) {
	s.listener.Store(&listener)
}

// Current returns the current snapshot. The returned value is immutable;
// callers must not mutate its maps.
func (s *Store) Current() Snapshot {
	return *s.current.Load()
}

// GetSubscription implements metadatatracker.SubscriptionReader directly
// off the cached snapshot, so the tracker needs no separate Kubernetes
// client of its own.
func (s *Store) GetSubscription(_ context.Context, name string) (apiv1.Subscription, bool, error) {
	sub, ok := s.Current().Subscriptions[name]
	return sub, ok, nil
}

// Apply replaces the cached projection with next if it differs
// structurally from the current one, computes the subscription set
// difference, and fires add/remove callbacks for each changed name.
// This MUST be called only from the single cluster-state applier
// goroutine; it does not itself serialize concurrent callers.
func (s *Store) Apply(next Snapshot) Diff {
	prev := s.current.Load()

	if reflect.DeepEqual(prev.Subscriptions, next.Subscriptions) &&
		reflect.DeepEqual(prev.Publications, next.Publications) {
		return Diff{}
	}

	oldNames := stringset.New()
	for name := range prev.Subscriptions {
		oldNames.Put(name)
	}
	newNames := stringset.New()
	for name := range next.Subscriptions {
		newNames.Put(name)
	}

	added := newNames.Subtract(oldNames).ToList()
	removed := oldNames.Subtract(newNames).ToList()

	s.current.Store(&next)

	if listenerPtr := s.listener.Load(); listenerPtr != nil && *listenerPtr != nil {
		listener := *listenerPtr
		for _, name := range added {
			listener.OnSubscriptionAdded(name, next.Subscriptions[name])
		}
		for _, name := range removed {
			listener.OnSubscriptionRemoved(name)
		}
	}

	return Diff{Added: added, Removed: removed}
}
