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

// Package localcatalog implements restore.LocalCatalog against the
// local cluster's own information_schema, the collaborator
// restore.VerifyTablesDoNotExistUsing needs to answer §4.4's
// pre-flight "does this relation already exist locally" check. It is
// grounded on the same pgx-SQL-execution idiom as
// restore/executor.go's LocalExecutor and snapshotrepo.Service: a
// small named type wrapping a handful of statements against an
// established local-cluster connection.
package localcatalog

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Checker answers restore.LocalCatalog against an established
// local-cluster connection.
type Checker struct {
	conn *pgx.Conn
}

// New wraps an established local-cluster connection.
func New(conn *pgx.Conn) *Checker {
	return &Checker{conn: conn}
}

// RelationExists reports whether name is already a table (or
// partitioned-table template) in the local cluster's catalog.
func (c *Checker) RelationExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := c.conn.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = $1`,
		name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
