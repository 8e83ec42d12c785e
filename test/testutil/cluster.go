package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/restapi"
	"github.com/arloliu/syncpoint/taskctl"
	"github.com/arloliu/syncpoint/types"
)

// FakeNode is one node of a FakeCluster.
type FakeNode struct {
	// ID is the node's address as scenarios see it.
	ID types.NodeID

	// HostID is the node's stable host id.
	HostID uuid.UUID

	// Log is the node's diagnostic stream.
	Log *logwatch.MemorySource

	// Server serves the node's control API.
	Server *httptest.Server

	cluster *FakeCluster
	faults  *faultPoints
	tasks   *taskManager

	mu        sync.Mutex
	snapshots map[string][]string
	balancing bool
}

// Balancing reports whether the tablet load balancer is enabled on the node.
func (n *FakeNode) Balancing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.balancing
}

// Armed reports whether the fault point is armed on the node.
func (n *FakeNode) Armed(name string) bool {
	return n.faults.armed(name)
}

// logf appends a line in the server's log format.
func (n *FakeNode) logf(level, group, logger, format string, args ...any) {
	n.Log.AppendLine(fmt.Sprintf("%-5s %s [shard 0:%s] %s - %s",
		level, time.Now().Format("2006-01-02 15:04:05,000"), group, logger, fmt.Sprintf(format, args...)))
}

// FakeCluster is an in-process cluster for exercising scenarios without
// Docker.
//
// Every node serves the control API over httptest and shares one in-memory
// schema answering the CQL statements scenarios issue. Fault points pause the
// code paths the real server pauses (backup upload, streaming writer), tasks
// follow the running -> done/failed state machine, and tablet migrations
// retry on injected disconnects while discarding writes from abandoned
// streaming attempts.
type FakeCluster struct {
	Nodes   []*FakeNode
	Store   *objstore.Memory
	Session *MockSession

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	keyspaces  map[string]*fakeKeyspace
	streams    map[*streamAttempt]struct{}
	changed    chan struct{}
	generation int
	shuffleSeq int

	// visibilityDelay holds back tablet moves and backup uploads from
	// readers, the way replicated metadata and object listings lag.
	visibilityDelay time.Duration
}

// NewFakeCluster starts a cluster of n nodes addressed 127.0.0.1 upwards.
// It is torn down when the test ends.
func NewFakeCluster(t *testing.T, n int) *FakeCluster {
	t.Helper()
	require.Positive(t, n, "a cluster needs at least one node")

	ctx, cancel := context.WithCancel(context.Background())
	c := &FakeCluster{
		Store:     objstore.NewMemory(),
		ctx:       ctx,
		cancel:    cancel,
		keyspaces: make(map[string]*fakeKeyspace),
		streams:   make(map[*streamAttempt]struct{}),
		changed:   make(chan struct{}),
	}
	c.Session = NewMockSession(c.execCQL)

	for i := range n {
		node := &FakeNode{
			ID:        types.NodeID(fmt.Sprintf("127.0.0.%d", i+1)),
			HostID:    uuid.New(),
			Log:       logwatch.NewMemorySource(),
			cluster:   c,
			faults:    newFaultPoints(),
			snapshots: make(map[string][]string),
			balancing: true,
		}
		node.tasks = newTaskManager(ctx)
		node.Server = httptest.NewServer(node.routes())
		node.logf("INFO", "main", "init", "Scylla version fake initialization completed.")
		c.Nodes = append(c.Nodes, node)
	}

	t.Cleanup(func() {
		cancel()
		for _, node := range c.Nodes {
			node.Server.Close()
		}
	})

	return c
}

// SetVisibilityDelay makes later tablet moves and backup uploads visible to
// readers only d after they complete. Zero restores immediate visibility.
func (c *FakeCluster) SetVisibilityDelay(d time.Duration) {
	c.mu.Lock()
	c.visibilityDelay = d
	c.mu.Unlock()
}

func (c *FakeCluster) visibilityDelayValue() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.visibilityDelay
}

// API returns a control API client that reaches every node's fake server.
func (c *FakeCluster) API(opts ...restapi.Option) *restapi.Client {
	base := []restapi.Option{
		restapi.WithAddressResolver(c.baseURL),
		restapi.WithTimeout(10 * time.Second),
	}

	return restapi.New(append(base, opts...)...)
}

// ScenarioContext builds a ScenarioContext wired to the cluster with fast
// poll intervals.
func (c *FakeCluster) ScenarioContext(t *testing.T, opts ...syncpoint.Option) *syncpoint.ScenarioContext {
	t.Helper()

	base := []syncpoint.Option{
		syncpoint.WithControlAPI(c.API()),
		syncpoint.WithCQLSession(c.Session),
		syncpoint.WithObjectStore(c.Store),
		syncpoint.WithSnapshotLister(c),
		syncpoint.WithLogWatchOptions(
			logwatch.WithPollInterval(2*time.Millisecond, 20*time.Millisecond),
			logwatch.WithDefaultTimeout(5*time.Second),
		),
		syncpoint.WithTaskOptions(
			taskctl.WithPollInterval(2*time.Millisecond, 20*time.Millisecond),
			taskctl.WithDefaultTimeout(5*time.Second),
		),
		syncpoint.WithEventually(2*time.Millisecond, 20*time.Millisecond, 2*time.Second),
	}
	for _, n := range c.Nodes {
		base = append(base, syncpoint.WithNode(n.ID, n.Log))
	}

	sc, err := syncpoint.NewScenarioContext(append(base, opts...)...)
	require.NoError(t, err)

	return sc
}

// Node returns the node with the given id, or nil.
func (c *FakeCluster) Node(id types.NodeID) *FakeNode {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// SnapshotFiles lists the files a node recorded for a snapshot tag.
func (c *FakeCluster) SnapshotFiles(_ context.Context, node types.NodeID, keyspace, table, tag string) ([]string, error) {
	n := c.Node(node)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownNode, node)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	files := append([]string(nil), n.snapshots[snapshotKey(keyspace, table, tag)]...)
	sort.Strings(files)

	return files, nil
}

var _ syncpoint.SnapshotLister = (*FakeCluster)(nil)

func (c *FakeCluster) baseURL(id types.NodeID) string {
	if n := c.Node(id); n != nil {
		return n.Server.URL
	}

	// Unroutable, so calls to unknown nodes fail as transport errors.
	return "http://" + strings.ReplaceAll(string(id), "/", "_") + ".invalid"
}

func (c *FakeCluster) nodeByHost(host uuid.UUID) *FakeNode {
	for _, n := range c.Nodes {
		if n.HostID == host {
			return n
		}
	}

	return nil
}

// logAll appends the same event to every node's log.
func (c *FakeCluster) logAll(level, group, logger, format string, args ...any) {
	for _, n := range c.Nodes {
		n.logf(level, group, logger, format, args...)
	}
}

// shuffling reports whether any node has the allocator shuffle armed.
func (c *FakeCluster) shuffling() bool {
	for _, n := range c.Nodes {
		if n.faults.armed(shufflePoint) {
			return true
		}
	}

	return false
}

// notifyLocked wakes everything waiting on a writer count change.
// c.mu must be held.
func (c *FakeCluster) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func snapshotKey(keyspace, table, tag string) string {
	return keyspace + "/" + table + "/" + tag
}
