package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/syncpoint"
	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/restapi"
	"github.com/arloliu/syncpoint/types"
)

const (
	backupPausePoint   = "backup_task_pause"
	backupWaitingLine  = "backup task: waiting"
	backupUploadLine   = `INFO.*\[shard [0-9]:([a-z]+)\] .* Backup sstables from .* to`
	backupSchedGroup   = "strm"
	defaultBackupTag   = "backup"
	defaultBackupKS    = "test_ks"
	defaultBackupTable = "test_cf"
)

// BackupTarget names the snapshot a backup scenario uploads and where to.
type BackupTarget struct {
	Keyspace string
	Table    string
	Tag      string

	// Endpoint and Bucket identify the object store as the node knows it.
	Endpoint string
	Bucket   string

	// TaskTimeout bounds waiting for the backup task. Zero uses the
	// controller default.
	TaskTimeout time.Duration
}

func (b BackupTarget) withDefaults() BackupTarget {
	if b.Keyspace == "" {
		b.Keyspace = defaultBackupKS
	}
	if b.Table == "" {
		b.Table = defaultBackupTable
	}
	if b.Tag == "" {
		b.Tag = defaultBackupTag
	}

	return b
}

// prepareSnapshot creates the table, seeds three rows, flushes and snapshots
// it on node, and returns the snapshot's file names.
func (b BackupTarget) prepareSnapshot(ctx context.Context, sc *syncpoint.ScenarioContext, node types.NodeID) ([]string, error) {
	if sc.Store == nil {
		return nil, types.ErrNoObjectStore
	}
	if sc.Snapshots == nil {
		return nil, fmt.Errorf("syncpoint: no snapshot lister configured")
	}

	sc.Logger.Info("Creating keyspace", "keyspace", b.Keyspace, "table", b.Table)
	stmts := []string{
		"DROP KEYSPACE IF EXISTS " + b.Keyspace,
		fmt.Sprintf("CREATE KEYSPACE %s WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1}", b.Keyspace),
		fmt.Sprintf("CREATE TABLE %s.%s (name text PRIMARY KEY, value text)", b.Keyspace, b.Table),
	}
	for _, stmt := range stmts {
		if err := sc.Exec(ctx, stmt); err != nil {
			return nil, err
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s.%s (name, value) VALUES (?, ?)", b.Keyspace, b.Table)
	for i, v := range []string{"zero", "one", "two"} {
		if err := sc.Exec(ctx, insert, fmt.Sprint(i), v); err != nil {
			return nil, err
		}
	}

	sc.Logger.Info("Flushing and snapshotting", "keyspace", b.Keyspace, "tag", b.Tag)
	if err := sc.API.FlushKeyspace(ctx, node, b.Keyspace); err != nil {
		return nil, err
	}
	if err := sc.API.TakeSnapshot(ctx, node, b.Keyspace, b.Tag); err != nil {
		return nil, err
	}

	files, err := sc.Snapshots.SnapshotFiles(ctx, node, b.Keyspace, b.Table, b.Tag)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, types.Assertf("snapshot %s of %s.%s has no files", b.Tag, b.Keyspace, b.Table)
	}

	return files, nil
}

func (b BackupTarget) request() restapi.BackupRequest {
	return restapi.BackupRequest{
		Keyspace: b.Keyspace,
		Snapshot: b.Tag,
		Endpoint: b.Endpoint,
		Bucket:   b.Bucket,
	}
}

// uploaded counts how many of files are present in the object store.
func (b BackupTarget) uploaded(ctx context.Context, sc *syncpoint.ScenarioContext, files []string) (int, []string, error) {
	keys, err := sc.Store.ListKeys(ctx, "")
	if err != nil {
		return 0, nil, err
	}
	present := objstore.KeySet(keys)

	var missing []string
	for _, f := range files {
		if _, ok := present[objstore.BackupKey(b.Table, b.Tag, f)]; !ok {
			missing = append(missing, f)
		}
	}

	return len(files) - len(missing), missing, nil
}

// SimpleBackup uploads a snapshot and checks every file reached the store.
type SimpleBackup struct {
	Target BackupTarget
}

// Name returns the scenario name.
func (s *SimpleBackup) Name() string { return "SimpleBackup" }

// Description returns the scenario description.
func (s *SimpleBackup) Description() string {
	return "Back up a snapshot and verify every file is in the object store"
}

// Run executes the scenario on the first node.
func (s *SimpleBackup) Run(ctx context.Context, sc *syncpoint.ScenarioContext) error {
	if err := requireNodes(sc, 1); err != nil {
		return err
	}
	target := s.Target.withDefaults()
	node := sc.Nodes[0]

	files, err := target.prepareSnapshot(ctx, sc, node.ID)
	if err != nil {
		return err
	}

	mark, err := node.Log.Mark(ctx)
	if err != nil {
		return err
	}

	sc.Logger.Info("Backing up snapshot", "node", node.ID, "tag", target.Tag, "files", len(files))
	handle, err := sc.API.Backup(ctx, node.ID, target.request())
	if err != nil {
		return err
	}
	sc.Logger.Info("Started task", "task", handle)

	status, err := sc.Tasks.WaitRemote(ctx, handle, target.TaskTimeout)
	if err != nil {
		return err
	}
	if status.State != types.TaskDone {
		return types.Assertf("backup task %s ended %s: %s", handle, status.State, status.Error)
	}

	// Object listings may lag the upload.
	err = sc.Eventually(ctx, 0, func(ctx context.Context) error {
		_, missing, err := target.uploaded(ctx, sc, files)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return types.Assertf("%d snapshot file(s) missing from backup: %v", len(missing), missing)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The upload runs in the streaming scheduling group.
	matches, err := node.Log.GrepFrom(ctx, backupUploadLine, mark)
	if err != nil {
		return err
	}
	if len(matches) != 1 {
		return types.Assertf("expected one backup upload line, got %d", len(matches))
	}
	if group := matches[0].Group(1); group != backupSchedGroup {
		return types.Assertf("backup ran in scheduling group %q, want %q", group, backupSchedGroup)
	}

	return nil
}

// AbortableBackup aborts a backup paused mid-upload and checks it stopped
// partway.
type AbortableBackup struct {
	Target BackupTarget

	// LogTimeout bounds waiting for the pause checkpoint. Zero uses the
	// watcher default.
	LogTimeout time.Duration
}

// Name returns the scenario name.
func (s *AbortableBackup) Name() string { return "AbortableBackup" }

// Description returns the scenario description.
func (s *AbortableBackup) Description() string {
	return "Abort a paused backup and verify only part of the snapshot was uploaded"
}

// Run executes the scenario on the first node.
func (s *AbortableBackup) Run(ctx context.Context, sc *syncpoint.ScenarioContext) error {
	if err := requireNodes(sc, 1); err != nil {
		return err
	}
	target := s.Target.withDefaults()
	node := sc.Nodes[0]

	files, err := target.prepareSnapshot(ctx, sc, node.ID)
	if err != nil {
		return err
	}
	if len(files) < 2 {
		return types.Assertf("snapshot needs at least 2 files to observe a partial upload, has %d", len(files))
	}

	if err := sc.Faults.Enable(ctx, node.ID, backupPausePoint, true); err != nil {
		return err
	}
	mark, err := node.Log.Mark(ctx)
	if err != nil {
		return err
	}

	sc.Logger.Info("Backing up snapshot", "node", node.ID, "tag", target.Tag, "files", len(files))
	handle, err := sc.API.Backup(ctx, node.ID, target.request())
	if err != nil {
		return err
	}

	sc.Logger.Info("Started task, aborting it early", "task", handle)
	if _, err := node.Log.WaitFor(ctx, backupWaitingLine, mark, s.LogTimeout); err != nil {
		return err
	}
	if err := sc.Tasks.Abort(ctx, handle); err != nil {
		return err
	}
	if err := sc.Faults.Message(ctx, node.ID, backupPausePoint); err != nil {
		return err
	}

	status, err := sc.Tasks.Wait(ctx, handle, target.TaskTimeout)
	if err != nil {
		return err
	}
	sc.Logger.Info("Task finished", "task", handle, "state", status.State)
	if status.State != types.TaskFailed {
		return types.Assertf("aborted backup task %s ended %s, want %s", handle, status.State, types.TaskFailed)
	}

	return sc.Eventually(ctx, 0, func(ctx context.Context) error {
		count, _, err := target.uploaded(ctx, sc, files)
		if err != nil {
			return err
		}
		if count == 0 || count >= len(files) {
			return types.Assertf("aborted backup uploaded %d of %d file(s), want a strict subset", count, len(files))
		}
		return nil
	})
}
