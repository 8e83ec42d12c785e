package syncpoint

import (
	"context"
	"fmt"

	"github.com/arloliu/syncpoint/adapter/cql"
	"github.com/arloliu/syncpoint/types"
)

// TabletReplicas returns the replicas of the tablet that owns token.
//
// The node first runs a read barrier so its system tables reflect every
// committed tablet change, then the table id is resolved from
// system_schema.tables and the tablet map is read from system.tablets.
//
// Parameters:
//   - ctx: Context for cancellation
//   - node: Node that performs the read barrier
//   - keyspace: Keyspace of the table
//   - table: Table name
//   - token: Any token owned by the tablet
//
// Returns:
//   - []types.TabletReplica: Replicas of the owning tablet
//   - error: types.ErrNoCQLSession, a read barrier error, or a lookup failure
func (sc *ScenarioContext) TabletReplicas(ctx context.Context, node types.NodeID, keyspace, table string, token int64) ([]types.TabletReplica, error) {
	if sc.CQL == nil {
		return nil, types.ErrNoCQLSession
	}
	if err := sc.API.ReadBarrier(ctx, node); err != nil {
		return nil, err
	}

	tableID, err := sc.TableID(ctx, keyspace, table)
	if err != nil {
		return nil, err
	}

	iter := sc.CQL.Query("SELECT last_token, replicas FROM system.tablets WHERE table_id = ?", tableID).
		Consistency(cql.One).
		IterContext(ctx)

	var (
		lastToken int64
		replicas  []types.TabletReplica
		found     []types.TabletReplica
	)
	for iter.Scan(&lastToken, &replicas) {
		if found == nil && token <= lastToken {
			found = replicas
		}
		replicas = nil
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("syncpoint: read tablets of %s.%s: %w", keyspace, table, err)
	}
	if found == nil {
		return nil, fmt.Errorf("syncpoint: no tablet of %s.%s owns token %d", keyspace, table, token)
	}

	return found, nil
}

// TableID resolves a table's id from system_schema.tables.
func (sc *ScenarioContext) TableID(ctx context.Context, keyspace, table string) (any, error) {
	if sc.CQL == nil {
		return nil, types.ErrNoCQLSession
	}

	var id any
	row := make(map[string]any)
	iter := sc.CQL.Query("SELECT id FROM system_schema.tables WHERE keyspace_name = ? AND table_name = ?", keyspace, table).
		IterContext(ctx)
	if iter.MapScan(row) {
		id = row["id"]
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("syncpoint: resolve table id of %s.%s: %w", keyspace, table, err)
	}
	if id == nil {
		return nil, fmt.Errorf("syncpoint: table %s.%s not found", keyspace, table)
	}

	return id, nil
}

// CountRows runs a "SELECT count(*)" style statement and returns the count.
func (sc *ScenarioContext) CountRows(ctx context.Context, stmt string, values ...any) (int64, error) {
	if sc.CQL == nil {
		return 0, types.ErrNoCQLSession
	}

	var n int64
	if err := sc.CQL.Query(stmt, values...).ScanContext(ctx, &n); err != nil {
		return 0, fmt.Errorf("syncpoint: %s: %w", stmt, err)
	}

	return n, nil
}

// Exec runs a statement that returns no rows.
func (sc *ScenarioContext) Exec(ctx context.Context, stmt string, values ...any) error {
	if sc.CQL == nil {
		return types.ErrNoCQLSession
	}
	if err := sc.CQL.Query(stmt, values...).ExecContext(ctx); err != nil {
		return fmt.Errorf("syncpoint: %s: %w", stmt, err)
	}

	return nil
}
