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

// Package multicache implements a cache that watches Subscription and
// Publication objects across a fixed set of namespaces, while still
// answering Get requests for objects outside that set (typically
// the single operator-namespace Lease the election package watches)
// from a second, separately-scoped cache; List is always answered by
// the multi-namespace cache. controller-runtime's own
// multi-namespace cache (cache.Options.DefaultNamespaces) stops at
// "restrict to these namespaces"; it has no notion of "and also this
// one object elsewhere", which is the shape this subscriber process
// needs.
package multicache

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/cratedb/logical-replication/pkg/management/log"
	"github.com/cratedb/logical-replication/pkg/stringset"
)

type multiNamespaceCache struct {
	namespaces    *stringset.Data
	multiCache    cache.Cache
	externalCache cache.Cache
}

// Just to ensure we respect the interface
var _ cache.Cache = &multiNamespaceCache{}

// DelegatingMultiNamespacedCacheBuilder returns a cache creation function.
// The created cache watches only `namespaces`, but also answers requests
// for objects in `operatorNamespace` (e.g. the master-election Lease)
// from a second cache scoped to that single namespace.
func DelegatingMultiNamespacedCacheBuilder(namespaces []string, operatorNamespace string) cache.NewCacheFunc {
	return func(config *rest.Config, opts cache.Options) (cache.Cache, error) {
		multiOpts := opts
		multiOpts.DefaultNamespaces = make(map[string]cache.Config, len(namespaces))
		for _, ns := range namespaces {
			multiOpts.DefaultNamespaces[ns] = cache.Config{}
		}
		multiCache, err := cache.New(config, multiOpts)
		if err != nil {
			return nil, fmt.Errorf("creating multi-namespace cache: %w", err)
		}

		externalOpts := opts
		externalOpts.DefaultNamespaces = map[string]cache.Config{operatorNamespace: {}}
		externalCache, err := cache.New(config, externalOpts)
		if err != nil {
			return nil, fmt.Errorf("creating operator-namespace cache: %w", err)
		}

		return &multiNamespaceCache{
			namespaces:    stringset.From(namespaces),
			multiCache:    multiCache,
			externalCache: externalCache,
		}, nil
	}
}

// Methods for multiNamespaceCache to conform to the cache.Informers interface.

func (c *multiNamespaceCache) GetInformer(ctx context.Context, obj client.Object, opts ...cache.InformerGetOption) (cache.Informer, error) {
	return c.multiCache.GetInformer(ctx, obj, opts...)
}

func (c *multiNamespaceCache) GetInformerForKind(
	ctx context.Context, gvk schema.GroupVersionKind, opts ...cache.InformerGetOption) (cache.Informer, error) {
	return c.multiCache.GetInformerForKind(ctx, gvk, opts...)
}

func (c *multiNamespaceCache) RemoveInformer(ctx context.Context, obj client.Object) error {
	return c.multiCache.RemoveInformer(ctx, obj)
}

func (c *multiNamespaceCache) Start(ctx context.Context) error {
	go func() {
		if err := c.multiCache.Start(ctx); err != nil {
			log.Error(err, "multi-namespace cache failed to start")
		}
	}()

	go func() {
		if err := c.externalCache.Start(ctx); err != nil {
			log.Error(err, "operator-namespace cache failed to start")
		}
	}()

	<-ctx.Done()
	return nil
}

func (c *multiNamespaceCache) WaitForCacheSync(ctx context.Context) bool {
	synced := true

	if !c.multiCache.WaitForCacheSync(ctx) {
		synced = false
	}

	if !c.externalCache.WaitForCacheSync(ctx) {
		synced = false
	}

	return synced
}

func (c *multiNamespaceCache) IndexField(
	ctx context.Context, obj client.Object, field string, extractValue client.IndexerFunc) error {
	return c.multiCache.IndexField(ctx, obj, field, extractValue)
}

// Methods for multiNamespaceCache to conform to the client.Reader interface.

func (c *multiNamespaceCache) Get(ctx context.Context, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
	// If the object we are looking for is in one of the watched namespaces just use
	// the multi-cache, otherwise we can use the operator-namespace one.
	if key.Namespace != "" && c.namespaces.Has(key.Namespace) {
		return c.multiCache.Get(ctx, key, obj, opts...)
	}

	return c.externalCache.Get(ctx, key, obj, opts...)
}

func (c *multiNamespaceCache) List(ctx context.Context, list client.ObjectList, opts ...client.ListOption) error {
	return c.multiCache.List(ctx, list, opts...)
}
