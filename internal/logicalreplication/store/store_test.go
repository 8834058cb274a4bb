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

package store

import (
	"context"
	"testing"

	apiv1 "github.com/cratedb/logical-replication/api/v1"
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

func TestApplyNoopWhenUnchanged(t *testing.T) {
	listener := &recordingListener{}
	s := New(listener)

	snapshot := Snapshot{
		Subscriptions: map[string]apiv1.Subscription{"sub1": {}},
		Publications:  map[string]apiv1.Publication{},
	}

	if diff := s.Apply(snapshot); len(diff.Added) != 1 {
		t.Fatalf("expected one added subscription on first apply, got %+v", diff)
	}

	diff := s.Apply(snapshot)
	if len(diff.Added) != 0 || len(diff.Removed) != 0 {
		t.Fatalf("expected no-op diff on repeated identical apply, got %+v", diff)
	}
	if len(listener.added) != 1 {
		t.Fatalf("expected listener notified exactly once, got %d calls", len(listener.added))
	}
}

func TestApplyReportsAddedAndRemoved(t *testing.T) {
	listener := &recordingListener{}
	s := New(listener)

	s.Apply(Snapshot{
		Subscriptions: map[string]apiv1.Subscription{"sub1": {}, "sub2": {}},
		Publications:  map[string]apiv1.Publication{},
	})

	diff := s.Apply(Snapshot{
		Subscriptions: map[string]apiv1.Subscription{"sub2": {}, "sub3": {}},
		Publications:  map[string]apiv1.Publication{},
	})

	if len(diff.Added) != 1 || diff.Added[0] != "sub3" {
		t.Fatalf("expected sub3 added, got %+v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != "sub1" {
		t.Fatalf("expected sub1 removed, got %+v", diff.Removed)
	}
}

func TestSetListenerInstalledAfterConstruction(t *testing.T) {
	s := New(nil)
	listener := &recordingListener{}
	s.SetListener(listener)

	s.Apply(Snapshot{
		Subscriptions: map[string]apiv1.Subscription{"sub1": {}},
		Publications:  map[string]apiv1.Publication{},
	})

	if len(listener.added) != 1 {
		t.Fatalf("expected listener installed via SetListener to be notified, got %+v", listener.added)
	}
}

func TestGetSubscription(t *testing.T) {
	s := New(nil)
	s.Apply(Snapshot{
		Subscriptions: map[string]apiv1.Subscription{"sub1": {}},
		Publications:  map[string]apiv1.Publication{},
	})

	if _, ok, _ := s.GetSubscription(context.Background(), "missing"); ok {
		t.Fatal("expected missing subscription to report not found")
	}
	if _, ok, _ := s.GetSubscription(context.Background(), "sub1"); !ok {
		t.Fatal("expected sub1 to be found")
	}
}
