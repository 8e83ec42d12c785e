// Package vm provides a VictoriaMetrics-based implementation of the MetricsCollector interface.
//
// This package uses github.com/VictoriaMetrics/metrics for lightweight,
// Prometheus-compatible metrics collection.
//
// # Basic Usage
//
// Create a collector with default prefix "syncpoint":
//
//	collector := vm.New()
//	sc, _ := syncpoint.NewScenarioContext(
//	    syncpoint.WithControlAPI(api),
//	    syncpoint.WithMetrics(collector),
//	)
//	runner := scenario.NewRunner(scenario.WithMetrics(collector))
//
// # Exposing Metrics
//
// Use the Handler method to expose metrics via HTTP:
//
//	http.HandleFunc("/metrics", collector.Handler)
//
// Or use WritePrometheus to dump them after a run:
//
//	collector.WritePrometheus(os.Stdout)
//
// # Metrics Provided
//
// Log watcher:
//   - {prefix}_log_wait_total{node} - Counter of pattern waits
//   - {prefix}_log_wait_timeouts_total{node} - Counter of pattern waits that timed out
//   - {prefix}_log_wait_duration_seconds{node} - Histogram of wait latencies
//
// Fault injection:
//   - {prefix}_injection_commands_total{node,command} - Counter of fault-point commands
//
// Control API:
//   - {prefix}_remote_call_errors_total{node,operation} - Counter of failed calls
//
// Tasks:
//   - {prefix}_task_polls_total{node} - Counter of status polls
//   - {prefix}_task_terminal_total{state} - Counter of tasks seen reaching done or failed
//   - {prefix}_task_wait_duration_seconds - Histogram of wait-to-terminal latencies
//
// Scenarios:
//   - {prefix}_scenario_total{scenario,result} - Counter of finished scenarios
//   - {prefix}_scenario_duration_seconds{scenario} - Histogram of scenario durations
package vm
