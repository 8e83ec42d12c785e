package scenario_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint"
	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/scenario"
	"github.com/arloliu/syncpoint/test/testutil"
	"github.com/arloliu/syncpoint/types"
)

type funcScenario struct {
	name string
	run  func(ctx context.Context, sc *syncpoint.ScenarioContext) error
}

func (f *funcScenario) Name() string        { return f.name }
func (f *funcScenario) Description() string { return "test scenario " + f.name }
func (f *funcScenario) Run(ctx context.Context, sc *syncpoint.ScenarioContext) error {
	return f.run(ctx, sc)
}

func backupTarget() scenario.BackupTarget {
	return scenario.BackupTarget{Endpoint: "fake-s3", Bucket: "backups"}
}

func TestRunner(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)
	collector := testutil.NewTestMetricsCollector()

	boom := errors.New("boom")
	var order []string
	runner := scenario.NewRunner(scenario.WithMetrics(collector))
	runner.Register(
		&funcScenario{name: "first", run: func(context.Context, *syncpoint.ScenarioContext) error {
			order = append(order, "first")
			return nil
		}},
		&funcScenario{name: "second", run: func(context.Context, *syncpoint.ScenarioContext) error {
			order = append(order, "second")
			return boom
		}},
		&funcScenario{name: "third", run: func(context.Context, *syncpoint.ScenarioContext) error {
			order = append(order, "third")
			return nil
		}},
	)

	report, err := runner.Run(t.Context(), sc)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"first", "second", "third"}, order, "a failure does not stop later scenarios")

	require.Len(t, report.Results, 3)
	assert.False(t, report.Passed())
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "second", report.Failed()[0].Name)

	assert.Equal(t, int64(1), collector.Passed("first"))
	assert.Equal(t, int64(1), collector.Failed("second"))
	assert.Len(t, collector.ScenarioDuration["third"], 1)
}

func TestRunnerStopsWhenCanceled(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)

	ctx, cancel := context.WithCancel(t.Context())
	ran := 0
	runner := scenario.NewRunner()
	runner.Register(
		&funcScenario{name: "cancels", run: func(context.Context, *syncpoint.ScenarioContext) error {
			ran++
			cancel()
			return nil
		}},
		&funcScenario{name: "skipped", run: func(context.Context, *syncpoint.ScenarioContext) error {
			ran++
			return nil
		}},
	)

	report, err := runner.Run(ctx, sc)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ran)
	assert.Len(t, report.Results, 1)
}

func TestSelect(t *testing.T) {
	all := scenario.All(scenario.Settings{})

	tests := []struct {
		name    string
		names   []string
		want    []string
		wantErr bool
	}{
		{name: "empty selects all", names: nil, want: []string{
			"SimpleBackup", "AbortableBackup", "StreamingTopologyGuard",
			"TableDroppedDuringStreaming", "TabletScans", "DropWithShuffle",
		}},
		{name: "listed order", names: []string{"TabletScans", "SimpleBackup"}, want: []string{"TabletScans", "SimpleBackup"}},
		{name: "unknown", names: []string{"Nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := scenario.Select(all, tt.names)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			names := make([]string, len(selected))
			for i, s := range selected {
				names[i] = s.Name()
				assert.NotEmpty(t, s.Description())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSimpleBackup(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)

	s := &scenario.SimpleBackup{Target: backupTarget()}
	require.NoError(t, s.Run(t.Context(), sc))

	files, err := cluster.SnapshotFiles(t.Context(), cluster.Nodes[0].ID, "test_ks", "test_cf", "backup")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	keys, err := cluster.Store.ListKeys(t.Context(), "test_cf/backup/")
	require.NoError(t, err)
	assert.Len(t, keys, len(files))
	for _, f := range files {
		assert.Contains(t, keys, objstore.BackupKey("test_cf", "backup", f))
	}
}

func TestSimpleBackupWithLaggingListing(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	cluster.SetVisibilityDelay(100 * time.Millisecond)
	sc := cluster.ScenarioContext(t)

	require.NoError(t, (&scenario.SimpleBackup{Target: backupTarget()}).Run(t.Context(), sc))
}

func TestSimpleBackupWithoutObjectStore(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)
	sc.Store = nil

	err := (&scenario.SimpleBackup{Target: backupTarget()}).Run(t.Context(), sc)
	require.ErrorIs(t, err, types.ErrNoObjectStore)
}

func TestAbortableBackup(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	collector := testutil.NewTestMetricsCollector()
	sc := cluster.ScenarioContext(t, syncpoint.WithMetrics(collector))

	s := &scenario.AbortableBackup{Target: backupTarget(), LogTimeout: 5 * time.Second}
	require.NoError(t, s.Run(t.Context(), sc))

	files, err := cluster.SnapshotFiles(t.Context(), cluster.Nodes[0].ID, "test_ks", "test_cf", "backup")
	require.NoError(t, err)
	assert.Equal(t, 1, cluster.Store.Count(), "upload stops after the paused file")
	assert.Greater(t, len(files), cluster.Store.Count())

	assert.False(t, cluster.Nodes[0].Armed("backup_task_pause"), "one-shot point disarms on first hit")
	assert.Equal(t, int64(1), collector.Terminal(types.TaskFailed))
}

func TestBackupScenariosShareCluster(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)

	runner := scenario.NewRunner()
	runner.Register(
		&scenario.SimpleBackup{Target: backupTarget()},
		&scenario.AbortableBackup{Target: backupTarget()},
	)

	report, err := runner.Run(t.Context(), sc)
	require.NoError(t, err)
	assert.True(t, report.Passed())
}

func TestStreamingTopologyGuard(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 2)
	sc := cluster.ScenarioContext(t)

	s := &scenario.StreamingTopologyGuard{Settings: scenario.TabletSettings{MoveTimeout: 10 * time.Second}}
	require.NoError(t, s.Run(t.Context(), sc))

	assert.False(t, cluster.Nodes[1].Armed("stream_mutation_fragments"))
	assert.True(t, cluster.Nodes[0].Balancing(), "balancing is restored")

	matches, err := sc.Nodes[1].Log.Grep(t.Context(), "stream_mutation_fragments: (waiting|done)")
	require.NoError(t, err)
	require.Len(t, matches, 2, "only the paused writer logs at the fault point")
	assert.Equal(t, "waiting", matches[0].Group(1))
	assert.Equal(t, "done", matches[1].Group(1))

	matches, err = sc.Nodes[1].Log.Grep(t.Context(), "stale streaming session")
	require.NoError(t, err)
	assert.Len(t, matches, 1, "the abandoned writer discards its data")
}

func TestStreamingTopologyGuardNeedsTwoNodes(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 1)
	sc := cluster.ScenarioContext(t)

	err := (&scenario.StreamingTopologyGuard{}).Run(t.Context(), sc)
	require.ErrorIs(t, err, types.ErrAssertion)
}

func TestTableDroppedDuringStreaming(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 2)
	sc := cluster.ScenarioContext(t)

	s := &scenario.TableDroppedDuringStreaming{Settings: scenario.TabletSettings{MoveTimeout: 10 * time.Second}}
	require.NoError(t, s.Run(t.Context(), sc))

	matches, err := sc.Nodes[1].Log.Grep(t.Context(), "Dropping test.test ")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestTableDroppedDuringStreamingWithLaggingMetadata(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 2)
	cluster.SetVisibilityDelay(100 * time.Millisecond)
	sc := cluster.ScenarioContext(t)

	s := &scenario.TableDroppedDuringStreaming{Settings: scenario.TabletSettings{MoveTimeout: 10 * time.Second}}
	require.NoError(t, s.Run(t.Context(), sc))
}

func TestTabletScans(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 3)
	sc := cluster.ScenarioContext(t)

	require.NoError(t, (&scenario.TabletScans{}).Run(t.Context(), sc))

	_, err := sc.CountRows(t.Context(), "SELECT count(*) FROM test.test")
	require.Error(t, err, "keyspace is dropped at the end")
}

func TestDropWithShuffle(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 3)
	collector := testutil.NewTestMetricsCollector()
	sc := cluster.ScenarioContext(t, syncpoint.WithMetrics(collector))

	require.NoError(t, (&scenario.DropWithShuffle{Iterations: 2}).Run(t.Context(), sc))

	for _, n := range cluster.Nodes {
		assert.False(t, n.Armed("tablet_allocator_shuffle"), "disarmed on %s", n.ID)
		assert.Equal(t, int64(1), collector.InjectionCommands[string(n.ID)+"/enable"])
		assert.Equal(t, int64(1), collector.InjectionCommands[string(n.ID)+"/disable"])
	}
}

func TestAllScenarios(t *testing.T) {
	cluster := testutil.NewFakeCluster(t, 3)
	collector := testutil.NewTestMetricsCollector()
	sc := cluster.ScenarioContext(t, syncpoint.WithMetrics(collector))

	runner := scenario.NewRunner(scenario.WithMetrics(collector))
	runner.Register(scenario.All(scenario.Settings{
		Backup:  backupTarget(),
		Tablets: scenario.TabletSettings{MoveTimeout: 10 * time.Second},
	})...)

	report, err := runner.Run(t.Context(), sc)
	require.NoError(t, err)
	require.Len(t, report.Results, 6)
	for _, res := range report.Results {
		assert.True(t, res.Passed(), res.Name)
		assert.Equal(t, int64(1), collector.Passed(res.Name))
	}
}
