package vm

import (
	"fmt"
	"io"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/arloliu/syncpoint/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
//
// Default: "syncpoint"
//
// Parameters:
//   - prefix: The prefix to use for all metric names
//
// Returns:
//   - Option: A configuration option
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet sets the metrics set to use.
//
// If provided, the collector will register metrics with this set instead of
// creating a new one. The caller is responsible for exposing this set
// (e.g., via metrics.WritePrometheus or a custom handler).
//
// Parameters:
//   - set: The metrics set to use
//
// Returns:
//   - Option: A configuration option
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// Collector implements types.MetricsCollector using VictoriaMetrics.
//
// Metrics without per-node or per-scenario labels are pre-created at
// initialization; labeled series are created on first use.
// Thread-safe for concurrent use.
type Collector struct {
	set    *metrics.Set
	prefix string

	taskDone         *metrics.Counter
	taskFailed       *metrics.Counter
	taskWaitDuration *metrics.Histogram
}

// Compile-time assertion that Collector implements types.MetricsCollector.
var _ types.MetricsCollector = (*Collector)(nil)

// New creates a new VictoriaMetrics-based metrics collector.
//
// The collector creates its own metrics.Set and registers it globally.
//
// Parameters:
//   - opts: Configuration options (e.g., WithPrefix)
//
// Returns:
//   - *Collector: A new metrics collector ready for use
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//	sc, _ := syncpoint.NewScenarioContext(
//	    syncpoint.WithMetrics(collector),
//	)
func New(opts ...Option) *Collector {
	c := &Collector{
		prefix: "syncpoint",
	}

	for _, opt := range opts {
		opt(c)
	}

	// If no set is provided, create a new one and register it globally.
	// If a set is provided, we assume the caller manages it.
	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()

	return c
}

func (c *Collector) initMetrics() {
	p := c.prefix

	c.taskDone = c.set.NewCounter(fmt.Sprintf(`%s_task_terminal_total{state="%s"}`, p, types.TaskDone))
	c.taskFailed = c.set.NewCounter(fmt.Sprintf(`%s_task_terminal_total{state="%s"}`, p, types.TaskFailed))
	c.taskWaitDuration = c.set.NewHistogram(fmt.Sprintf(`%s_task_wait_duration_seconds`, p))
}

// Set returns the metrics set the collector registers with.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
//
// Example:
//
//	http.HandleFunc("/metrics", collector.Handler)
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to the given writer.
//
// Parameters:
//   - w: The writer to write metrics to
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

func (c *Collector) nodeName(name string, node types.NodeID) string {
	return fmt.Sprintf(`%s_%s{node=%q}`, c.prefix, name, string(node))
}

// ----------------------
// Log Watcher
// ----------------------

// IncLogWait increments the counter of pattern waits started on a node.
func (c *Collector) IncLogWait(node types.NodeID) {
	c.set.GetOrCreateCounter(c.nodeName("log_wait_total", node)).Inc()
}

// IncLogWaitTimeout increments the counter of pattern waits that timed out.
func (c *Collector) IncLogWaitTimeout(node types.NodeID) {
	c.set.GetOrCreateCounter(c.nodeName("log_wait_timeouts_total", node)).Inc()
}

// ObserveLogWaitDuration records how long a pattern wait took.
func (c *Collector) ObserveLogWaitDuration(node types.NodeID, seconds float64) {
	c.set.GetOrCreateHistogram(c.nodeName("log_wait_duration_seconds", node)).Update(seconds)
}

// ----------------------
// Fault Injection
// ----------------------

// IncInjectionCommand increments the counter of fault-point commands.
func (c *Collector) IncInjectionCommand(node types.NodeID, command string) {
	name := fmt.Sprintf(`%s_injection_commands_total{node=%q,command=%q}`, c.prefix, string(node), command)
	c.set.GetOrCreateCounter(name).Inc()
}

// ----------------------
// Control API
// ----------------------

// IncRemoteCallError increments the counter of failed control API calls.
func (c *Collector) IncRemoteCallError(node types.NodeID, operation string) {
	name := fmt.Sprintf(`%s_remote_call_errors_total{node=%q,operation=%q}`, c.prefix, string(node), operation)
	c.set.GetOrCreateCounter(name).Inc()
}

// ----------------------
// Tasks
// ----------------------

// IncTaskPoll increments the counter of task status polls.
func (c *Collector) IncTaskPoll(node types.NodeID) {
	c.set.GetOrCreateCounter(c.nodeName("task_polls_total", node)).Inc()
}

// IncTaskTerminal increments the counter of tasks observed in a terminal state.
func (c *Collector) IncTaskTerminal(state types.TaskState) {
	switch state {
	case types.TaskDone:
		c.taskDone.Inc()
	case types.TaskFailed:
		c.taskFailed.Inc()
	}
}

// ObserveTaskWaitDuration records how long a wait-to-terminal took.
func (c *Collector) ObserveTaskWaitDuration(seconds float64) {
	c.taskWaitDuration.Update(seconds)
}

// ----------------------
// Scenarios
// ----------------------

// IncScenarioResult increments the counter of finished scenarios.
func (c *Collector) IncScenarioResult(scenario string, passed bool) {
	result := "passed"
	if !passed {
		result = "failed"
	}
	name := fmt.Sprintf(`%s_scenario_total{scenario=%q,result=%q}`, c.prefix, scenario, result)
	c.set.GetOrCreateCounter(name).Inc()
}

// ObserveScenarioDuration records a scenario run duration.
func (c *Collector) ObserveScenarioDuration(scenario string, seconds float64) {
	name := fmt.Sprintf(`%s_scenario_duration_seconds{scenario=%q}`, c.prefix, scenario)
	c.set.GetOrCreateHistogram(name).Update(seconds)
}
