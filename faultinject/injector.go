package faultinject

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/syncpoint/internal/logging"
	"github.com/arloliu/syncpoint/internal/metrics"
	"github.com/arloliu/syncpoint/types"
)

// API is the subset of the control API the injector needs.
//
// *restapi.Client satisfies it.
type API interface {
	EnableInjection(ctx context.Context, node types.NodeID, name string, oneShot bool) error
	MessageInjection(ctx context.Context, node types.NodeID, name string) error
	DisableInjection(ctx context.Context, node types.NodeID, name string) error
	EnabledInjections(ctx context.Context, node types.NodeID) ([]string, error)
}

// CommandKind is a fault-point command issued by the harness.
type CommandKind string

const (
	CommandEnable        CommandKind = "enable"
	CommandEnableOneShot CommandKind = "enable_one_shot"
	CommandMessage       CommandKind = "message"
	CommandDisable       CommandKind = "disable"
)

// Command records a command sent to a fault point.
//
// It describes what the harness asked for, not what the node currently
// holds: a one-shot point disarms itself remotely without a new command.
type Command struct {
	Kind CommandKind
	At   time.Time
	Err  error
}

type pointKey struct {
	node types.NodeID
	name string
}

// Injector arms, releases and disarms fault points.
//
// It is safe for concurrent use.
type Injector struct {
	api     API
	logger  types.Logger
	metrics types.MetricsCollector

	mu      sync.Mutex
	history map[pointKey]Command
}

// Option configures an Injector.
type Option func(*Injector)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(i *Injector) {
		i.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(i *Injector) {
		i.metrics = metrics.OrNop(collector)
	}
}

// New creates an Injector over api.
//
// Parameters:
//   - api: Control API client
//   - opts: Optional configuration
//
// Returns:
//   - *Injector: The injector
//   - error: types.ErrNilAPI if api is nil
func New(api API, opts ...Option) (*Injector, error) {
	if api == nil {
		return nil, types.ErrNilAPI
	}

	i := &Injector{
		api:     api,
		logger:  logging.NewNopLogger(),
		metrics: metrics.NewNopMetrics(),
		history: make(map[pointKey]Command),
	}
	for _, opt := range opts {
		opt(i)
	}

	return i, nil
}

// Enable arms a fault point on node.
//
// Enable returns only after the node acknowledged the arm, so any operation
// triggered afterwards observes the point. A one-shot point pauses exactly
// one execution and then disarms itself.
//
// Parameters:
//   - ctx: Context for cancellation
//   - node: Target node
//   - name: Fault point name
//   - oneShot: Disarm after the first hit
//
// Returns:
//   - error: *types.RemoteCallError if the node rejected or missed the command
func (i *Injector) Enable(ctx context.Context, node types.NodeID, name string, oneShot bool) error {
	kind := CommandEnable
	if oneShot {
		kind = CommandEnableOneShot
	}

	err := i.api.EnableInjection(ctx, node, name, oneShot)
	i.record(node, name, kind, err)

	return err
}

// Message releases every execution currently paused at the fault point.
//
// Messaging a point with no paused execution is not an error on the node
// side; whether a later arrival is released is up to the node.
func (i *Injector) Message(ctx context.Context, node types.NodeID, name string) error {
	err := i.api.MessageInjection(ctx, node, name)
	i.record(node, name, CommandMessage, err)

	return err
}

// Disable disarms a fault point. Disabling an unarmed point is not an error.
func (i *Injector) Disable(ctx context.Context, node types.NodeID, name string) error {
	err := i.api.DisableInjection(ctx, node, name)
	i.record(node, name, CommandDisable, err)

	return err
}

// Enabled lists the fault points currently armed on node.
func (i *Injector) Enabled(ctx context.Context, node types.NodeID) ([]string, error) {
	return i.api.EnabledInjections(ctx, node)
}

// EnableOn arms a fault point on every node concurrently.
//
// Every node is attempted; the result lists every node that failed.
//
// Returns:
//   - error: *types.MultiNodeError naming every failing node, or nil
func (i *Injector) EnableOn(ctx context.Context, nodes []types.NodeID, name string, oneShot bool) error {
	return fanOut(ctx, "enable_injection", nodes, func(ctx context.Context, node types.NodeID) error {
		return i.Enable(ctx, node, name, oneShot)
	})
}

// MessageOn releases the fault point on every node concurrently.
func (i *Injector) MessageOn(ctx context.Context, nodes []types.NodeID, name string) error {
	return fanOut(ctx, "message_injection", nodes, func(ctx context.Context, node types.NodeID) error {
		return i.Message(ctx, node, name)
	})
}

// DisableOn disarms the fault point on every node concurrently.
func (i *Injector) DisableOn(ctx context.Context, nodes []types.NodeID, name string) error {
	return fanOut(ctx, "disable_injection", nodes, func(ctx context.Context, node types.NodeID) error {
		return i.Disable(ctx, node, name)
	})
}

// LastCommand returns the last command issued for the fault point on node.
//
// It is diagnostic only and never reflects remote state changes such as a
// one-shot point disarming itself.
func (i *Injector) LastCommand(node types.NodeID, name string) (Command, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	cmd, ok := i.history[pointKey{node: node, name: name}]

	return cmd, ok
}

func (i *Injector) record(node types.NodeID, name string, kind CommandKind, err error) {
	i.mu.Lock()
	i.history[pointKey{node: node, name: name}] = Command{Kind: kind, At: time.Now(), Err: err}
	i.mu.Unlock()

	i.metrics.IncInjectionCommand(node, string(kind))
	if err != nil {
		i.logger.Warn("fault point command failed", "node", node, "point", name, "command", kind, "error", err)
		return
	}
	i.logger.Debug("fault point command", "node", node, "point", name, "command", kind)
}

// fanOut runs fn for every node concurrently, waits for all of them and then
// reports every failure.
//
// The group's goroutines never return an error, so one failure does not
// cancel the calls still in flight on other nodes.
func fanOut(ctx context.Context, op string, nodes []types.NodeID, fn func(ctx context.Context, node types.NodeID) error) error {
	errs := make([]error, len(nodes))

	var g errgroup.Group
	for idx, node := range nodes {
		g.Go(func() error {
			errs[idx] = fn(ctx, node)
			return nil
		})
	}
	_ = g.Wait()

	failed := make(map[types.NodeID]error)
	for idx, err := range errs {
		if err != nil {
			failed[nodes[idx]] = err
		}
	}
	if len(failed) == 0 {
		return nil
	}

	return &types.MultiNodeError{Operation: op, Errors: failed}
}
