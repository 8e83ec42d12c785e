package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/config"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/test/testutil"
	"github.com/arloliu/syncpoint/types"
)

func TestSettings(t *testing.T) {
	cfg, err := config.Parse([]byte(`
nodes:
  - {id: 10.0.0.1, log_file: n1.log}
object_store: {endpoint: "minio:9000", bucket: backups}
run:
  task_timeout: 90s
  backup: {endpoint: s3, tag: nightly}
  tablets: {keyspace: tabletks}
`))
	require.NoError(t, err)

	s := settings(cfg)
	assert.Equal(t, "s3", s.Backup.Endpoint)
	assert.Equal(t, "backups", s.Backup.Bucket)
	assert.Equal(t, "nightly", s.Backup.Tag)
	assert.Equal(t, 90*time.Second, s.Backup.TaskTimeout)
	assert.Equal(t, "tabletks", s.Tablets.Keyspace)
	assert.Equal(t, 60*time.Second, s.Tablets.LogTimeout)

	cfg.ObjectStore = &objstore.MinIOConfig{Bucket: "other"}
	assert.Equal(t, "other", settings(cfg).Backup.Bucket)
}

func TestLogSourcesFromFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Nodes: []config.NodeConfig{
		{ID: "10.0.0.1", LogFile: filepath.Join(dir, "n1.log")},
		{ID: "10.0.0.2", LogFile: filepath.Join(dir, "n2.log")},
	}}

	sources, stop, err := logSources(t.Context(), cfg, slog.Default())
	require.NoError(t, err)
	defer stop()

	require.Len(t, sources, 2)
	file, ok := sources["10.0.0.2"].(*logwatch.FileSource)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "n2.log"), file.Path())
}

func TestLogSourcesShippedThroughNATS(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "n1.log")
	require.NoError(t, os.WriteFile(logFile, []byte("INFO  boot line before the run\n"), 0o600))

	cfg := &config.Config{
		Nodes: []config.NodeConfig{{ID: "10.0.0.1", LogFile: logFile}},
		LogStream: &config.LogStreamConfig{
			URL:           testutil.StartNATSServer(t),
			Stream:        "TEST_LOGS",
			SubjectPrefix: "test.logs",
			Ship:          true,
			ShipInterval:  10 * time.Millisecond,
		},
	}

	sources, stop, err := logSources(t.Context(), cfg, slog.Default())
	require.NoError(t, err)
	defer stop()

	node := types.NodeID("10.0.0.1")
	w, err := logwatch.New(node, sources[node], logwatch.WithPollInterval(5*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, err)

	appendLine := func(line string) {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.WriteString(line + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	// Not yet shipped when the mark is taken; the mark flushes it.
	appendLine("INFO  backup task: waiting (previous run)")

	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	appendLine("INFO  backup task: waiting")

	match, err := w.WaitFor(t.Context(), "backup task: waiting", mark, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "INFO  backup task: waiting", match.Line)

	all, err := w.Grep(t.Context(), "boot line")
	require.NoError(t, err)
	assert.Empty(t, all, "lines written before the run are not shipped")
}
