package scenario

import (
	"context"
	"fmt"

	"github.com/arloliu/syncpoint"
	"github.com/arloliu/syncpoint/types"
)

const createKeyspaceStmt = "CREATE KEYSPACE %s WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1} AND tablets = {'initial': %d}"

// requireNodes fails unless the context has at least n nodes.
func requireNodes(sc *syncpoint.ScenarioContext, n int) error {
	if len(sc.Nodes) < n {
		return types.Assertf("scenario needs %d node(s), have %d", n, len(sc.Nodes))
	}

	return nil
}

// selectCount runs a SELECT and counts the returned rows.
func selectCount(ctx context.Context, sc *syncpoint.ScenarioContext, stmt string) (int, error) {
	iter := sc.CQL.Query(stmt).IterContext(ctx)

	n := 0
	row := make(map[string]any)
	for iter.MapScan(row) {
		n++
		clear(row)
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("syncpoint: %s: %w", stmt, err)
	}

	return n, nil
}

// expectRows fails unless stmt returns exactly want rows.
func expectRows(ctx context.Context, sc *syncpoint.ScenarioContext, stmt string, want int) error {
	got, err := selectCount(ctx, sc, stmt)
	if err != nil {
		return err
	}
	if got != want {
		return types.Assertf("%s returned %d row(s), want %d", stmt, got, want)
	}

	return nil
}

// otherNode returns the first node whose host id differs from host.
func otherNode(ctx context.Context, sc *syncpoint.ScenarioContext, host types.TabletReplica) (syncpoint.Node, types.TabletReplica, error) {
	for _, n := range sc.Nodes {
		id, err := sc.HostID(ctx, n.ID)
		if err != nil {
			return syncpoint.Node{}, types.TabletReplica{}, err
		}
		if id != host.HostID {
			return n, types.TabletReplica{HostID: id, Shard: 0}, nil
		}
	}

	return syncpoint.Node{}, types.TabletReplica{}, types.Assertf("no node other than %s", host.HostID)
}

// firstReplica returns the single replica of the tablet owning token.
func firstReplica(ctx context.Context, sc *syncpoint.ScenarioContext, node types.NodeID, keyspace, table string, token int64) (types.TabletReplica, error) {
	replicas, err := sc.TabletReplicas(ctx, node, keyspace, table, token)
	if err != nil {
		return types.TabletReplica{}, err
	}
	if len(replicas) == 0 {
		return types.TabletReplica{}, types.Assertf("tablet of %s.%s has no replicas", keyspace, table)
	}

	return replicas[0], nil
}

// expectReplica retries until the tablet of keyspace.table reports want as
// its replica. Tablet metadata read through a node may trail a migration.
func expectReplica(ctx context.Context, sc *syncpoint.ScenarioContext, node types.NodeID, keyspace, table string, want types.TabletReplica) error {
	return sc.Eventually(ctx, 0, func(ctx context.Context) error {
		current, err := firstReplica(ctx, sc, node, keyspace, table, anyToken)
		if err != nil {
			return err
		}
		if current != want {
			return types.Assertf("tablet of %s.%s is on %v, want %v", keyspace, table, current, want)
		}
		return nil
	})
}
