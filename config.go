package syncpoint

import (
	"time"

	"github.com/arloliu/syncpoint/adapter/cql"
	"github.com/arloliu/syncpoint/internal/logging"
	"github.com/arloliu/syncpoint/internal/metrics"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/taskctl"
	"github.com/arloliu/syncpoint/types"
)

// NodeSpec describes a node before its watcher is built.
type NodeSpec struct {
	// ID is the node address.
	ID types.NodeID

	// Log is the node's diagnostic stream.
	Log logwatch.Source
}

// Config holds configuration for a ScenarioContext.
type Config struct {
	Nodes     []NodeSpec
	API       ControlAPI
	CQL       cql.Session
	Store     objstore.Lister
	Snapshots SnapshotLister
	Logger    types.Logger
	Metrics   types.MetricsCollector

	// LogOptions are applied to every node's watcher.
	LogOptions []logwatch.Option

	// TaskOptions are applied to the task controller.
	TaskOptions []taskctl.Option

	// EventuallyInitial and EventuallyMax bound the retry delay of Eventually.
	// Default: 100ms and 2s
	EventuallyInitial time.Duration
	EventuallyMax     time.Duration

	// EventuallyTimeout applies when Eventually is called with zero.
	// Default: 30s
	EventuallyTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - *Config: Configuration with default settings
func DefaultConfig() *Config {
	return &Config{
		Logger:            logging.NewNopLogger(),
		Metrics:           metrics.NewNopMetrics(),
		EventuallyInitial: 100 * time.Millisecond,
		EventuallyMax:     2 * time.Second,
		EventuallyTimeout: 30 * time.Second,
	}
}

// Option configures a Config.
type Option func(*Config)

// WithNode adds a node and its diagnostic stream.
//
// Parameters:
//   - id: Node address
//   - log: The node's stream (file, memory or NATS source)
//
// Returns:
//   - Option: Configuration option
func WithNode(id types.NodeID, log logwatch.Source) Option {
	return func(c *Config) {
		c.Nodes = append(c.Nodes, NodeSpec{ID: id, Log: log})
	}
}

// WithControlAPI sets the control API client shared by every component.
//
// Parameters:
//   - api: Control API client (e.g., *restapi.Client)
//
// Returns:
//   - Option: Configuration option
func WithControlAPI(api ControlAPI) Option {
	return func(c *Config) {
		c.API = api
	}
}

// WithCQLSession sets the CQL session used by scenarios.
func WithCQLSession(session cql.Session) Option {
	return func(c *Config) {
		c.CQL = session
	}
}

// WithObjectStore sets the object store that backups are verified against.
func WithObjectStore(store objstore.Lister) Option {
	return func(c *Config) {
		c.Store = store
	}
}

// WithSnapshotLister sets how snapshot files on a node are enumerated.
func WithSnapshotLister(lister SnapshotLister) Option {
	return func(c *Config) {
		c.Snapshots = lister
	}
}

// WithLogWatchOptions sets options applied to every node's watcher.
func WithLogWatchOptions(opts ...logwatch.Option) Option {
	return func(c *Config) {
		c.LogOptions = append(c.LogOptions, opts...)
	}
}

// WithTaskOptions sets options applied to the task controller.
func WithTaskOptions(opts ...taskctl.Option) Option {
	return func(c *Config) {
		c.TaskOptions = append(c.TaskOptions, opts...)
	}
}

// WithEventually sets the retry policy of Eventually.
//
// Parameters:
//   - initial: First delay between attempts
//   - max: Upper bound on the delay
//   - timeout: Default budget when Eventually gets zero
//
// Returns:
//   - Option: Configuration option
func WithEventually(initial, max, timeout time.Duration) Option {
	return func(c *Config) {
		c.EventuallyInitial = initial
		c.EventuallyMax = max
		c.EventuallyTimeout = timeout
	}
}

// WithMetrics sets the metrics collector for every component.
//
// Example with VictoriaMetrics:
//
//	import vmmetrics "github.com/arloliu/syncpoint/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("syncpoint"))
//	sc, _ := syncpoint.NewScenarioContext(syncpoint.WithMetrics(collector))
//
// Parameters:
//   - collector: The metrics collector implementation
//
// Returns:
//   - Option: Configuration option
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *Config) {
		c.Metrics = metrics.OrNop(collector)
	}
}

// WithLogger sets the structured logger for every component.
//
// A *slog.Logger satisfies types.Logger directly:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
//	sc, _ := syncpoint.NewScenarioContext(syncpoint.WithLogger(logger))
//
// Parameters:
//   - logger: The logger implementation
//
// Returns:
//   - Option: Configuration option
func WithLogger(logger types.Logger) Option {
	return func(c *Config) {
		c.Logger = logging.OrNop(logger)
	}
}
