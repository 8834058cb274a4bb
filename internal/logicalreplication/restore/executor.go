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

package restore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LocalExecutor is a representative Executor and InProgressLookup
// source: it issues CrateDB's own `RESTORE SNAPSHOT` statement against
// the local cluster over the PostgreSQL wire protocol via jackc/pgx.
// The restore engine itself — the "dedicated snapshot thread" of §4.4 —
// lives entirely inside CrateDB and is out of scope here; this is only
// the submission and completion-polling edge.
type LocalExecutor struct {
	conn *pgx.Conn

	mu       sync.Mutex
	inFlight map[string][]string // restoreID -> relation names
}

// NewLocalExecutor wraps an established local-cluster connection.
func NewLocalExecutor(conn *pgx.Conn) *LocalExecutor {
	return &LocalExecutor{conn: conn, inFlight: make(map[string][]string)}
}

// Submit issues RESTORE SNAPSHOT and returns a restoreID Lookup can
// later correlate back to the relations being restored.
func (e *LocalExecutor) Submit(ctx context.Context, req Request) (string, error) {
	restoreID := uuid.NewString()

	query := fmt.Sprintf(
		`RESTORE SNAPSHOT %s."%s" TABLES (%s) WITH (wait_for_completion = false)`,
		req.Repository, req.SnapshotTag, joinQuoted(req.RelationNames))

	if _, err := e.conn.Exec(ctx, query); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.inFlight[restoreID] = req.RelationNames
	e.mu.Unlock()

	return restoreID, nil
}

// Lookup implements InProgressLookup against CrateDB's sys.shards,
// whose shard-level state reports RECOVERING until a restore finishes.
// Once no shard of the restored relations is still recovering, the
// restoreID is forgotten and the terminal Info returned.
func (e *LocalExecutor) Lookup(ctx context.Context, restoreID string) (*Info, bool) {
	e.mu.Lock()
	relationNames, ok := e.inFlight[restoreID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}

	var total, recovering, failed int
	row := e.conn.QueryRow(ctx,
		`SELECT count(*),
			count(*) FILTER (WHERE state = 'RECOVERING'),
			count(*) FILTER (WHERE state = 'UNASSIGNED')
		 FROM sys.shards WHERE table_name = ANY($1)`,
		relationNames)

	if err := row.Scan(&total, &recovering, &failed); err != nil {
		return nil, false
	}

	if recovering > 0 {
		return nil, false
	}

	e.mu.Lock()
	delete(e.inFlight, restoreID)
	e.mu.Unlock()

	return &Info{TotalShards: total, FailedShards: failed}, true
}

func joinQuoted(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", name)
	}
	return out
}
