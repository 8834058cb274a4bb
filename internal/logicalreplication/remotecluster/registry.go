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

// Package remotecluster maintains named, pooled, async-resolved handles
// to publisher clusters (§4.2). It is grounded on the same dial-a-handle
// shape the teacher's internal/cnpi/plugin/connection package uses to
// reach sidecar plugins: a Dial(ctx) that returns a closeable handle,
// cached so repeated callers share one connection.
package remotecluster

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/cratedb/logical-replication/internal/logicalreplication/conninfo"
	"github.com/cratedb/logical-replication/internal/logicalreplication/replerrors"
	"github.com/cratedb/logical-replication/internal/logicalreplication/transport"
	"github.com/cratedb/logical-replication/pkg/concurrency"
)

// Client is the handle a registry entry resolves to. In sniff mode it
// wraps a grpc-backed transport.Client; in pg_tunnel mode it wraps a
// direct PostgreSQL wire-protocol connection via jackc/pgx.
type Client interface {
	// ConnectionInfo is the info this client was dialed with, for equivalence checks.
	ConnectionInfo() conninfo.ConnectionInfo
	// Transport returns the wire-RPC client, valid only in sniff mode.
	Transport() (transport.Client, bool)
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

type client struct {
	info      conninfo.ConnectionInfo
	transport transport.Client
	pgConn    *pgx.Conn
}

func (c *client) ConnectionInfo() conninfo.ConnectionInfo { return c.info }

func (c *client) Transport() (transport.Client, bool) {
	return c.transport, c.transport != nil
}

func (c *client) Close(ctx context.Context) error {
	if c.transport != nil {
		return c.transport.Close()
	}
	if c.pgConn != nil {
		return c.pgConn.Close(ctx)
	}
	return nil
}

// Dialer opens a connection to a publisher cluster. It exists so tests
// can substitute a fake without a live network.
type Dialer func(ctx context.Context, info conninfo.ConnectionInfo) (Client, error)

// Registry is §4.2's RemoteClusterRegistry: connect is idempotent,
// getClient reads the cached handle, remove closes and forgets it.
// Handles are reference-counted so multiple callers can share one
// connection; Remove releases the handle on its first call, whatever
// the reference count.
type Registry struct {
	dial Dialer

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	info     conninfo.ConnectionInfo
	future   *concurrency.Future[Client]
	refCount int
}

// New creates a registry using the default dialer (grpc in sniff mode,
// pgx in pg_tunnel mode). Pass a custom Dialer in tests.
func New(dial Dialer) *Registry {
	if dial == nil {
		dial = DefaultDialer
	}
	return &Registry{dial: dial, entries: make(map[string]*entry)}
}

// Connect is idempotent: if name is already connected with an equivalent
// ConnectionInfo, the existing client's future is returned; otherwise a
// new connection is opened. The network handshake is the suspension
// point; callers await the returned future off the caller's goroutine.
func (r *Registry) Connect(ctx context.Context, name string, info conninfo.ConnectionInfo) *concurrency.Future[Client] {
	r.mu.Lock()
	if existing, ok := r.entries[name]; ok {
		if sameConnectionInfo(existing.info, info) {
			existing.refCount++
			r.mu.Unlock()
			return existing.future
		}
		// Superseding connection info: drop the stale entry under lock,
		// fall through to dial a new one.
		delete(r.entries, name)
	}

	future := concurrency.NewFuture[Client]()
	r.entries[name] = &entry{info: info, future: future, refCount: 1}
	r.mu.Unlock()

	go func() {
		dialed, err := r.dial(ctx, info)
		if err != nil {
			future.Fail(replerrors.Wrap(replerrors.KindRemoteConnectFailed, err,
				"failed to connect to remote cluster %q at %s", name, info.SafeString()))
			r.mu.Lock()
			if cur, ok := r.entries[name]; ok && cur.future == future {
				delete(r.entries, name)
			}
			r.mu.Unlock()
			return
		}
		future.Complete(dialed)
	}()

	return future
}

// GetClient returns the cached client for name, if connected and resolved.
func (r *Registry) GetClient(name string) (Client, error) {
	r.mu.Lock()
	existing, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("remote cluster %q is not registered", name)
	}
	if !existing.future.IsDone() {
		return nil, fmt.Errorf("remote cluster %q connection is still in progress", name)
	}
	return existing.future.Wait(context.Background())
}

// Remove closes and forgets name, regardless of reference count: an
// explicit remove always forces release.
func (r *Registry) Remove(ctx context.Context, name string) {
	r.mu.Lock()
	existing, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !ok || !existing.future.IsDone() {
		return
	}
	if c, err := existing.future.Wait(ctx); err == nil {
		_ = c.Close(ctx)
	}
}

func sameConnectionInfo(a, b conninfo.ConnectionInfo) bool {
	if a.Mode() != b.Mode() || len(a.Hosts) != len(b.Hosts) {
		return false
	}
	for i := range a.Hosts {
		if a.Hosts[i] != b.Hosts[i] {
			return false
		}
	}
	return a.User() == b.User()
}

// DefaultDialer dials sniff-mode publishers over grpc and pg_tunnel-mode
// publishers over the PostgreSQL wire protocol via pgx.
func DefaultDialer(ctx context.Context, info conninfo.ConnectionInfo) (Client, error) {
	if info.Mode() == conninfo.ModePgTunnel {
		return dialPgTunnel(ctx, info)
	}
	return dialSniff(ctx, info)
}

func dialSniff(ctx context.Context, info conninfo.ConnectionInfo) (Client, error) {
	if len(info.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts to dial")
	}
	t, err := transport.NewClient(ctx, info.Hosts[0])
	if err != nil {
		return nil, err
	}
	return &client{info: info, transport: t}, nil
}

func dialPgTunnel(ctx context.Context, info conninfo.ConnectionInfo) (Client, error) {
	if len(info.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts to dial")
	}
	dsn := fmt.Sprintf("postgres://%s/crate?sslmode=%s", info.Hosts[0], sslmodeOrDisable(info))
	if info.User() != "" {
		dsn = fmt.Sprintf("postgres://%s@%s/crate?sslmode=%s",
			strings.TrimSpace(info.User()), info.Hosts[0], sslmodeOrDisable(info))
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &client{info: info, pgConn: conn}, nil
}

func sslmodeOrDisable(info conninfo.ConnectionInfo) string {
	if sslmode, ok := info.Settings["sslmode"]; ok {
		return sslmode
	}
	return "disable"
}
