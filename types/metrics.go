package types

// MetricsCollector defines methods for collecting harness metrics.
//
// Node-scoped methods accept a NodeID parameter for labeling.
// Implementations should be thread-safe as methods may be called concurrently.
//
// Example usage with VictoriaMetrics (via contrib/metrics/vm):
//
//	import vmmetrics "github.com/arloliu/syncpoint/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("myapp"))
//	sc, _ := syncpoint.NewScenarioContext(
//	    syncpoint.WithMetrics(collector),
//	)
//
//	// Expose metrics via HTTP
//	http.HandleFunc("/metrics", collector.Handler)
type MetricsCollector interface {
	// ----------------------
	// Log Watcher
	// ----------------------

	// IncLogWait increments the counter of pattern waits started on a node.
	IncLogWait(node NodeID)

	// IncLogWaitTimeout increments the counter of pattern waits that timed out.
	IncLogWaitTimeout(node NodeID)

	// ObserveLogWaitDuration records how long a pattern wait took, in seconds.
	ObserveLogWaitDuration(node NodeID, seconds float64)

	// ----------------------
	// Fault Injection
	// ----------------------

	// IncInjectionCommand increments the counter of fault-point commands.
	// Command is one of "enable", "enable_one_shot", "message", "disable".
	IncInjectionCommand(node NodeID, command string)

	// ----------------------
	// Control API
	// ----------------------

	// IncRemoteCallError increments the counter of failed control API calls.
	IncRemoteCallError(node NodeID, operation string)

	// ----------------------
	// Tasks
	// ----------------------

	// IncTaskPoll increments the counter of task status polls.
	IncTaskPoll(node NodeID)

	// IncTaskTerminal increments the counter of tasks observed in a terminal state.
	IncTaskTerminal(state TaskState)

	// ObserveTaskWaitDuration records how long a wait-to-terminal took, in seconds.
	ObserveTaskWaitDuration(seconds float64)

	// ----------------------
	// Scenarios
	// ----------------------

	// IncScenarioResult increments the counter of finished scenarios.
	// Passed is false when the scenario returned an error.
	IncScenarioResult(scenario string, passed bool)

	// ObserveScenarioDuration records a scenario run duration in seconds.
	ObserveScenarioDuration(scenario string, seconds float64)
}
