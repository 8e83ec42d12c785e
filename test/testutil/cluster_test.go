package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/restapi"
	"github.com/arloliu/syncpoint/types"
)

func contextWithCancel(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()

	return context.WithCancel(t.Context())
}

func TestFakeClusterHostIDs(t *testing.T) {
	cluster := NewFakeCluster(t, 3)
	api := cluster.API()

	seen := map[string]bool{}
	for i, n := range cluster.Nodes {
		assert.Equal(t, types.NodeID("127.0.0."+string(rune('1'+i))), n.ID)

		id, err := api.HostID(t.Context(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, n.HostID, id)
		seen[id.String()] = true
	}
	assert.Len(t, seen, 3)
}

func TestFakeClusterTabletAllocation(t *testing.T) {
	cluster := NewFakeCluster(t, 2)
	sc := cluster.ScenarioContext(t)
	ctx := t.Context()

	require.NoError(t, sc.Exec(ctx, "CREATE KEYSPACE ks WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1} AND tablets = {'initial': 4}"))
	require.NoError(t, sc.Exec(ctx, "CREATE TABLE ks.t (pk int PRIMARY KEY, c int)"))

	first, err := sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "ks", "t", -1<<62)
	require.NoError(t, err)
	require.Len(t, first, 1)

	last, err := sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "ks", "t", 1<<62)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.NotEqual(t, first[0].HostID, last[0].HostID, "tablets are spread round-robin")
}

func TestFakeClusterMoveTabletRejectsWrongSource(t *testing.T) {
	cluster := NewFakeCluster(t, 2)
	sc := cluster.ScenarioContext(t)
	ctx := t.Context()

	require.NoError(t, sc.Exec(ctx, "CREATE KEYSPACE ks WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1} AND tablets = {'initial': 1}"))
	require.NoError(t, sc.Exec(ctx, "CREATE TABLE ks.t (pk int PRIMARY KEY, c int)"))

	replicas, err := sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "ks", "t", 0)
	require.NoError(t, err)
	require.Len(t, replicas, 1)

	wrong := types.TabletReplica{HostID: cluster.Nodes[1].HostID}
	if replicas[0].HostID == wrong.HostID {
		wrong.HostID = cluster.Nodes[0].HostID
	}

	err = sc.API.MoveTablet(ctx, cluster.Nodes[0].ID, restapi.MoveTabletRequest{
		Keyspace: "ks", Table: "t", Src: wrong, Dst: replicas[0],
	})
	var rerr *types.RemoteCallError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 400, rerr.StatusCode)
}

func TestFakeClusterTabletMetadataLags(t *testing.T) {
	cluster := NewFakeCluster(t, 2)
	sc := cluster.ScenarioContext(t)
	ctx := t.Context()

	require.NoError(t, sc.Exec(ctx, "CREATE KEYSPACE ks WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1} AND tablets = {'initial': 1}"))
	require.NoError(t, sc.Exec(ctx, "CREATE TABLE ks.t (pk int PRIMARY KEY, c int)"))

	replicas, err := sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "ks", "t", 0)
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	src := replicas[0]
	dst := types.TabletReplica{HostID: cluster.Nodes[1].HostID}
	if dst.HostID == src.HostID {
		dst.HostID = cluster.Nodes[0].HostID
	}

	cluster.SetVisibilityDelay(200 * time.Millisecond)
	require.NoError(t, sc.API.MoveTablet(ctx, cluster.Nodes[0].ID, restapi.MoveTabletRequest{
		Keyspace: "ks", Table: "t", Src: src, Dst: dst,
	}))

	replicas, err = sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "ks", "t", 0)
	require.NoError(t, err)
	assert.Equal(t, src, replicas[0], "the move is not visible yet")

	require.Eventually(t, func() bool {
		replicas, err := sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "ks", "t", 0)
		return err == nil && replicas[0] == dst
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFakeClusterAbortBackup(t *testing.T) {
	cluster := NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)
	ctx := t.Context()
	node := cluster.Nodes[0]

	require.NoError(t, sc.Exec(ctx, "CREATE KEYSPACE ks WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1}"))
	require.NoError(t, sc.Exec(ctx, "CREATE TABLE ks.t (pk int PRIMARY KEY, c int)"))
	require.NoError(t, sc.Exec(ctx, "INSERT INTO ks.t (pk, c) VALUES (?, ?)", 1, 1))
	require.NoError(t, sc.API.TakeSnapshot(ctx, node.ID, "ks", "snap"))

	require.NoError(t, sc.Faults.Enable(ctx, node.ID, backupPausePoint, true))
	mark, err := sc.Nodes[0].Log.Mark(ctx)
	require.NoError(t, err)

	handle, err := sc.API.Backup(ctx, node.ID, restapi.BackupRequest{
		Keyspace: "ks", Table: "t", Snapshot: "snap", Endpoint: "s3", Bucket: "b",
	})
	require.NoError(t, err)

	_, err = sc.Nodes[0].Log.WaitFor(ctx, "backup task: waiting", mark, 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, sc.Tasks.Abort(ctx, handle))
	require.NoError(t, sc.Faults.Message(ctx, node.ID, backupPausePoint))

	status, err := sc.Tasks.Wait(ctx, handle, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, status.State)
	assert.Equal(t, 1, cluster.Store.Count())
}
