package testutil

import (
	"bufio"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/modules/scylladb"

	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/types"
)

const scyllaAPIPort = "10000/tcp"

// ScyllaDBContainer wraps a ScyllaDB test container.
type ScyllaDBContainer struct {
	Container *scylladb.Container

	// Node is the id scenarios use for this node.
	Node types.NodeID

	// Host is the CQL contact point.
	Host string

	// APIURL is the base URL of the REST API.
	APIURL string

	// Session is connected with gocql.
	Session *gocql.Session

	// Log receives the container's output.
	Log *logwatch.MemorySource
}

// ScyllaDBOptions configures the ScyllaDB container.
type ScyllaDBOptions struct {
	// Image is the ScyllaDB image to use. Defaults to "scylladb/scylla:6.2".
	Image string
	// Memory is the memory limit for ScyllaDB. Defaults to "512M".
	Memory string
	// SMP is the number of CPU cores for ScyllaDB. Defaults to 1.
	SMP int
}

// DefaultScyllaDBOptions returns default options for ScyllaDB container.
func DefaultScyllaDBOptions() ScyllaDBOptions {
	return ScyllaDBOptions{
		Image:  "scylladb/scylla:6.2",
		Memory: "512M",
		SMP:    1,
	}
}

// ContainerLog feeds container output into a MemorySource.
type ContainerLog struct {
	Source *logwatch.MemorySource
}

var _ testcontainers.LogConsumer = ContainerLog{}

// Accept appends one chunk of container output.
func (l ContainerLog) Accept(entry testcontainers.Log) {
	_, _ = l.Source.Write(entry.Content)
}

// StartScyllaDB starts a ScyllaDB container with its REST API exposed.
//
// The container is automatically terminated when the test completes.
// Uses --reactor-backend=epoll to avoid Linux AIO requirements.
//
// Parameters:
//   - ctx: Context for container operations
//   - t: Testing context for cleanup registration
//   - opts: Optional configuration (nil uses defaults)
//
// Returns:
//   - *ScyllaDBContainer: Container with connection details and session
//   - error: Error if container fails to start
//
// Note: ScyllaDB requires Linux AIO (aio-max-nr kernel limit). If your system's
// /proc/sys/fs/aio-nr equals /proc/sys/fs/aio-max-nr, ScyllaDB will fail to start.
// To check: cat /proc/sys/fs/aio-nr /proc/sys/fs/aio-max-nr
// To fix: sudo sysctl -w fs.aio-max-nr=1048576
func StartScyllaDB(ctx context.Context, t *testing.T, opts *ScyllaDBOptions) (*ScyllaDBContainer, error) {
	t.Helper()

	if opts == nil {
		defaultOpts := DefaultScyllaDBOptions()
		opts = &defaultOpts
	}

	logs := logwatch.NewMemorySource()
	exposeAPI := testcontainers.CustomizeRequestOption(func(req *testcontainers.GenericContainerRequest) error {
		req.ExposedPorts = append(req.ExposedPorts, scyllaAPIPort)
		return nil
	})

	container, err := scylladb.Run(ctx, opts.Image,
		scylladb.WithCustomCommands(
			fmt.Sprintf("--memory=%s", opts.Memory),
			fmt.Sprintf("--smp=%d", opts.SMP),
			"--developer-mode=1",
			"--overprovisioned=1",
			"--reactor-backend=epoll",
			"--api-address=0.0.0.0",
		),
		exposeAPI,
		testcontainers.WithLogConsumers(ContainerLog{Source: logs}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start ScyllaDB container: %w", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate ScyllaDB container: %v", err)
		}
	})

	host, err := container.NonShardAwareConnectionHost(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection host: %w", err)
	}

	apiHost, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get API host: %w", err)
	}
	apiPort, err := container.MappedPort(ctx, scyllaAPIPort)
	if err != nil {
		return nil, fmt.Errorf("failed to get API port: %w", err)
	}

	cluster := gocql.NewCluster(host)
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 30 * time.Second
	cluster.ConnectTimeout = 30 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	t.Cleanup(session.Close)

	return &ScyllaDBContainer{
		Container: container,
		Node:      types.NodeID(apiHost),
		Host:      host,
		APIURL:    fmt.Sprintf("http://%s:%s", apiHost, apiPort.Port()),
		Session:   session,
		Log:       logs,
	}, nil
}

// SnapshotFiles lists a snapshot's files inside the container.
func (s *ScyllaDBContainer) SnapshotFiles(ctx context.Context, _ types.NodeID, keyspace, table, tag string) ([]string, error) {
	dir := path.Join("/var/lib/scylla/data", keyspace, table+"-*", "snapshots", tag)
	code, out, err := s.Container.Exec(ctx, []string{"sh", "-c", "ls -1 " + dir + " 2>/dev/null"}, tcexec.Multiplexed())
	if err != nil {
		return nil, fmt.Errorf("list snapshot %s: %w", tag, err)
	}
	if code != 0 {
		return nil, nil
	}

	var files []string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	return files, scanner.Err()
}
