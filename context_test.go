package syncpoint_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint"
	"github.com/arloliu/syncpoint/internal/backoff"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/test/testutil"
	"github.com/arloliu/syncpoint/types"
)

func TestNewScenarioContextRequiresAPI(t *testing.T) {
	_, err := syncpoint.NewScenarioContext()
	require.ErrorIs(t, err, types.ErrNilAPI)
}

func TestNewScenarioContextRejectsDuplicateNode(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)

	_, err := syncpoint.NewScenarioContext(
		syncpoint.WithControlAPI(cluster.API()),
		syncpoint.WithNode("n1", logwatch.NewMemorySource()),
		syncpoint.WithNode("n1", logwatch.NewMemorySource()),
	)
	require.Error(t, err)
}

func TestNewScenarioContextRejectsInvalidEventually(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)

	_, err := syncpoint.NewScenarioContext(
		syncpoint.WithControlAPI(cluster.API()),
		syncpoint.WithEventually(0, time.Second, time.Second),
	)
	require.ErrorIs(t, err, backoff.ErrInvalidPolicy)
}

func TestScenarioContextNodes(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 3)
	sc := cluster.ScenarioContext(t)

	ids := sc.NodeIDs()
	require.Len(t, ids, 3)
	assert.Equal(t, cluster.Nodes[0].ID, ids[0])

	n, err := sc.Node(ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], n.Log.Node())

	_, err = sc.Node("missing")
	require.ErrorIs(t, err, types.ErrUnknownNode)
}

func TestEventually(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)

	t.Run("converges", func(t *testing.T) {
		attempts := 0
		err := sc.Eventually(t.Context(), time.Second, func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("not yet")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("times out with last error", func(t *testing.T) {
		notYet := errors.New("row count 2, want 3")
		err := sc.Eventually(t.Context(), 30*time.Millisecond, func(context.Context) error {
			return notYet
		})
		require.ErrorIs(t, err, types.ErrTimeout)
		require.ErrorIs(t, err, notYet)
	})
}

func TestTabletReplicas(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 2)
	sc := cluster.ScenarioContext(t)
	ctx := t.Context()

	require.NoError(t, sc.Exec(ctx, "CREATE KEYSPACE test WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1}"))
	require.NoError(t, sc.Exec(ctx, "CREATE TABLE test.test (pk int PRIMARY KEY, c int)"))

	replicas, err := sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "test", "test", 0)
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.Equal(t, cluster.Nodes[0].HostID, replicas[0].HostID)

	hostID, err := sc.HostID(ctx, cluster.Nodes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, cluster.Nodes[0].HostID, hostID)

	_, err = sc.TabletReplicas(ctx, cluster.Nodes[0].ID, "test", "missing", 0)
	require.Error(t, err)
}

func TestCountRows(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)
	ctx := t.Context()

	require.NoError(t, sc.Exec(ctx, "CREATE KEYSPACE ks WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1}"))
	require.NoError(t, sc.Exec(ctx, "CREATE TABLE ks.t (pk int PRIMARY KEY, c int)"))
	for i := range 5 {
		require.NoError(t, sc.Exec(ctx, "INSERT INTO ks.t (pk, c) VALUES (?, ?)", i, i))
	}

	n, err := sc.CountRows(ctx, "SELECT count(*) FROM ks.t")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestHelpersWithoutCQL(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc, err := syncpoint.NewScenarioContext(syncpoint.WithControlAPI(cluster.API()))
	require.NoError(t, err)

	_, err = sc.CountRows(t.Context(), "SELECT count(*) FROM ks.t")
	require.ErrorIs(t, err, types.ErrNoCQLSession)
	_, err = sc.TabletReplicas(t.Context(), "n1", "ks", "t", 0)
	require.ErrorIs(t, err, types.ErrNoCQLSession)
}

func TestDirSnapshotLister(t *testing.T) {
	dataDir := t.TempDir()
	snapDir := filepath.Join(dataDir, "test_ks", "test_cf-0123abcd", "snapshots", "backup")
	require.NoError(t, os.MkdirAll(snapDir, 0o755))
	for _, f := range []string{"me-1-big-Data.db", "me-1-big-Index.db", "manifest.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(snapDir, f), []byte("x"), 0o600))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(snapDir, "subdir"), 0o755))

	lister := syncpoint.DirSnapshotLister{DataDir: func(types.NodeID) string { return dataDir }}
	files, err := lister.SnapshotFiles(t.Context(), "n1", "test_ks", "test_cf", "backup")
	require.NoError(t, err)
	assert.Equal(t, []string{"manifest.json", "me-1-big-Data.db", "me-1-big-Index.db"}, files)

	files, err = lister.SnapshotFiles(t.Context(), "n1", "test_ks", "other", "backup")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = syncpoint.DirSnapshotLister{}.SnapshotFiles(t.Context(), "n1", "a", "b", "c")
	require.Error(t, err)
}
