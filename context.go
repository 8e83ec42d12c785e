package syncpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/syncpoint/adapter/cql"
	"github.com/arloliu/syncpoint/faultinject"
	"github.com/arloliu/syncpoint/internal/backoff"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/restapi"
	"github.com/arloliu/syncpoint/taskctl"
	"github.com/arloliu/syncpoint/types"
)

// ControlAPI is the node control plane used by scenarios.
//
// *restapi.Client implements it.
type ControlAPI interface {
	faultinject.API
	taskctl.API

	InjectDisconnect(ctx context.Context, node, peer types.NodeID) error
	Backup(ctx context.Context, node types.NodeID, req restapi.BackupRequest) (types.TaskHandle, error)
	TakeSnapshot(ctx context.Context, node types.NodeID, keyspace, tag string, tables ...string) error
	FlushKeyspace(ctx context.Context, node types.NodeID, keyspace string) error
	SetTabletBalancing(ctx context.Context, node types.NodeID, enabled bool) error
	DisableTabletBalancing(ctx context.Context, node types.NodeID) error
	MoveTablet(ctx context.Context, node types.NodeID, req restapi.MoveTabletRequest) error
	HostID(ctx context.Context, node types.NodeID) (uuid.UUID, error)
	ReadBarrier(ctx context.Context, node types.NodeID) error
}

var _ ControlAPI = (*restapi.Client)(nil)

// Node is a cluster node as seen by a scenario.
type Node struct {
	ID  types.NodeID
	Log *logwatch.Watcher
}

// ScenarioContext carries every collaborator a scenario step needs.
//
// It is an explicit value threaded through steps; nothing in the harness
// keeps package-level state. Fields may be used directly.
type ScenarioContext struct {
	Nodes     []Node
	CQL       cql.Session
	API       ControlAPI
	Faults    *faultinject.Injector
	Tasks     *taskctl.Controller
	Store     objstore.Lister
	Snapshots SnapshotLister
	Logger    types.Logger
	Metrics   types.MetricsCollector

	eventually backoff.Policy
}

// NewScenarioContext builds a ScenarioContext.
//
// The control API is required; the CQL session, object store and snapshot
// lister are optional and only checked by the scenarios that need them.
//
// Parameters:
//   - opts: Configuration options
//
// Returns:
//   - *ScenarioContext: The context
//   - error: types.ErrNilAPI without a control API, an invalid Eventually
//     policy, or a watcher error
func NewScenarioContext(opts ...Option) (*ScenarioContext, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.API == nil {
		return nil, types.ErrNilAPI
	}
	eventually := backoff.Policy{
		Initial: config.EventuallyInitial,
		Max:     config.EventuallyMax,
		Timeout: config.EventuallyTimeout,
	}
	if err := eventually.Validate(); err != nil {
		return nil, fmt.Errorf("syncpoint: eventually: %w", err)
	}

	logOpts := append([]logwatch.Option{
		logwatch.WithLogger(config.Logger),
		logwatch.WithMetrics(config.Metrics),
	}, config.LogOptions...)

	nodes := make([]Node, 0, len(config.Nodes))
	seen := make(map[types.NodeID]bool, len(config.Nodes))
	for _, spec := range config.Nodes {
		if seen[spec.ID] {
			return nil, fmt.Errorf("syncpoint: node %s configured twice", spec.ID)
		}
		seen[spec.ID] = true

		w, err := logwatch.New(spec.ID, spec.Log, logOpts...)
		if err != nil {
			return nil, fmt.Errorf("syncpoint: node %s: %w", spec.ID, err)
		}
		nodes = append(nodes, Node{ID: spec.ID, Log: w})
	}

	faults, err := faultinject.New(config.API,
		faultinject.WithLogger(config.Logger),
		faultinject.WithMetrics(config.Metrics),
	)
	if err != nil {
		return nil, err
	}

	taskOpts := append([]taskctl.Option{
		taskctl.WithLogger(config.Logger),
		taskctl.WithMetrics(config.Metrics),
	}, config.TaskOptions...)
	tasks, err := taskctl.New(config.API, taskOpts...)
	if err != nil {
		return nil, err
	}

	return &ScenarioContext{
		Nodes:      nodes,
		CQL:        config.CQL,
		API:        config.API,
		Faults:     faults,
		Tasks:      tasks,
		Store:      config.Store,
		Snapshots:  config.Snapshots,
		Logger:     config.Logger,
		Metrics:    config.Metrics,
		eventually: eventually,
	}, nil
}

// Node returns the node with the given id.
func (sc *ScenarioContext) Node(id types.NodeID) (Node, error) {
	for _, n := range sc.Nodes {
		if n.ID == id {
			return n, nil
		}
	}

	return Node{}, fmt.Errorf("%w: %s", types.ErrUnknownNode, id)
}

// NodeIDs returns every node id in configuration order.
func (sc *ScenarioContext) NodeIDs() []types.NodeID {
	ids := make([]types.NodeID, len(sc.Nodes))
	for i, n := range sc.Nodes {
		ids[i] = n.ID
	}

	return ids
}

// Close releases the CQL session.
func (sc *ScenarioContext) Close() {
	if sc.CQL != nil {
		sc.CQL.Close()
	}
}

// Eventually retries fn until it returns nil.
//
// It covers read-after-write windows where the system converges without a
// log line to wait for. Retries back off exponentially.
//
// Parameters:
//   - ctx: Context for cancellation
//   - timeout: Retry budget; zero uses the configured default
//   - fn: Check to retry; a nil result ends the loop
//
// Returns:
//   - error: *types.TimeoutError wrapping the last failure if the budget elapsed
func (sc *ScenarioContext) Eventually(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	policy := sc.eventually
	if timeout > 0 {
		policy.Timeout = timeout
	}

	var last error
	err := backoff.Poll(ctx, policy, func(ctx context.Context) (backoff.Outcome, error) {
		last = fn(ctx)
		if last == nil {
			return backoff.Stop, nil
		}
		sc.Logger.Debug("eventually: retrying", "error", last)

		return backoff.Retry, nil
	})

	var deadline *backoff.ErrDeadline
	if errors.As(err, &deadline) {
		return &types.TimeoutError{Operation: "eventually", Timeout: policy.Timeout, Last: last}
	}

	return err
}

// HostID returns the host id of node.
func (sc *ScenarioContext) HostID(ctx context.Context, node types.NodeID) (uuid.UUID, error) {
	return sc.API.HostID(ctx, node)
}
