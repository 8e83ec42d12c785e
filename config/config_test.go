package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncpoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - id: 10.0.0.1
    log_file: /var/log/scylla/n1.log
    data_dir: /var/lib/scylla/n1
  - id: 10.0.0.2
    log_file: /var/log/scylla/n2.log
object_store:
  endpoint: minio:9000
  access_key: minioadmin
  secret_key: minioadmin
  bucket: backups
run:
  scenarios: [SimpleBackup, TabletScans]
  backup:
    endpoint: s3
  tablets:
    move_timeout: 2m
metrics:
  addr: ":9090"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, "/var/lib/scylla/n1", cfg.Nodes[0].DataDir)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.CQL.Hosts)
	assert.Equal(t, 10000, cfg.ControlAPI.Port)
	assert.Equal(t, 30*time.Second, cfg.ControlAPI.Timeout)
	assert.Equal(t, "QUORUM", cfg.CQL.Consistency)

	require.NotNil(t, cfg.ObjectStore)
	assert.Equal(t, "backups", cfg.ObjectStore.Bucket)
	assert.Nil(t, cfg.LogStream)

	assert.Equal(t, []string{"SimpleBackup", "TabletScans"}, cfg.Run.Scenarios)
	assert.Equal(t, 60*time.Second, cfg.Run.LogTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Run.TaskTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Run.Tablets.MoveTimeout)
	assert.Equal(t, "s3", cfg.Run.Backup.Endpoint)
	assert.Equal(t, "syncpoint", cfg.Metrics.Prefix)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseLogStream(t *testing.T) {
	cfg, err := Parse([]byte(`
nodes:
  - id: 10.0.0.1
log_stream:
  url: nats://127.0.0.1:4222
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.LogStream)
	assert.Equal(t, "SYNCPOINT_LOGS", cfg.LogStream.Stream)
	assert.Equal(t, "syncpoint.logs", cfg.LogStream.SubjectPrefix)
	assert.Equal(t, 100*time.Millisecond, cfg.LogStream.ShipInterval)
	assert.False(t, cfg.LogStream.Ship)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "no nodes", yaml: "nodes: []", want: "at least one node"},
		{name: "missing id", yaml: "nodes:\n  - log_file: a.log", want: "has no id"},
		{name: "duplicate", yaml: "nodes:\n  - {id: a, log_file: a.log}\n  - {id: a, log_file: b.log}", want: "listed twice"},
		{name: "no log source", yaml: "nodes:\n  - id: a", want: "no log_file"},
		{name: "ship without file", yaml: "nodes:\n  - id: a\nlog_stream:\n  url: nats://x\n  ship: true", want: "needs log_file"},
		{name: "bad yaml", yaml: "nodes: [", want: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
