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

// Package snapshotrepo implements supervisor.RepositoriesService: the
// collaborator that registers and unregisters the synthetic,
// per-subscription snapshot repository a restore is submitted against
// (§4.4's RestoreRequest targets
// "<REMOTE_REPO_PREFIX><subscriptionName>"). It is grounded the same
// way internal/logicalreplication/remotecluster's pg_tunnel dialer is:
// real SQL issued over the PostgreSQL wire protocol via jackc/pgx,
// against the local cluster this subscriber process belongs to.
package snapshotrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cratedb/logical-replication/internal/logicalreplication/conninfo"
)

// Service issues CREATE/DROP REPOSITORY statements against the local
// cluster over an established connection.
type Service struct {
	conn *pgx.Conn
}

// New wraps an established local-cluster connection.
func New(conn *pgx.Conn) *Service {
	return &Service{conn: conn}
}

// RegisterRepository creates a snapshot repository named name pointing
// at the publisher cluster described by info. Idempotent: an existing
// repository with the same name is dropped and recreated, since a
// Subscription's connection string may have changed.
func (s *Service) RegisterRepository(ctx context.Context, name string, info conninfo.ConnectionInfo) error {
	if _, err := s.conn.Exec(ctx, fmt.Sprintf(`DROP REPOSITORY IF EXISTS "%s"`, name)); err != nil {
		return fmt.Errorf("dropping stale repository %q: %w", name, err)
	}

	if len(info.Hosts) == 0 {
		return fmt.Errorf("connection info for repository %q has no hosts", name)
	}

	query := fmt.Sprintf(
		`CREATE REPOSITORY "%s" TYPE cratedb WITH (host = ?, username = ?)`,
		name)
	if _, err := s.conn.Exec(ctx, query, info.Hosts[0], info.User()); err != nil {
		return fmt.Errorf("creating repository %q: %w", name, err)
	}

	return nil
}

// UnregisterRepository drops the snapshot repository named name. Errors
// are discarded, neither returned nor logged, to match §4.7's "reverse
// the above" being a best-effort cleanup, not a blocking step.
func (s *Service) UnregisterRepository(ctx context.Context, name string) {
	_, _ = s.conn.Exec(ctx, fmt.Sprintf(`DROP REPOSITORY IF EXISTS "%s"`, name))
}
