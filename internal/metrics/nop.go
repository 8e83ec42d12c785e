// Package metrics provides internal metrics utilities for syncpoint.
package metrics

import "github.com/arloliu/syncpoint/types"

// NopMetrics is a no-op metrics collector that discards all metrics.
//
// This is used as the default metrics collector when no collector is configured,
// avoiding nil checks throughout the codebase.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNopMetrics creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A collector that discards all metrics
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// OrNop returns collector, or a NopMetrics when collector is nil.
func OrNop(collector types.MetricsCollector) types.MetricsCollector {
	if collector == nil {
		return NewNopMetrics()
	}

	return collector
}

// ----------------------
// Log Watcher
// ----------------------

// IncLogWait discards the metric.
func (m *NopMetrics) IncLogWait(_ types.NodeID) {}

// IncLogWaitTimeout discards the metric.
func (m *NopMetrics) IncLogWaitTimeout(_ types.NodeID) {}

// ObserveLogWaitDuration discards the metric.
func (m *NopMetrics) ObserveLogWaitDuration(_ types.NodeID, _ float64) {}

// ----------------------
// Fault Injection
// ----------------------

// IncInjectionCommand discards the metric.
func (m *NopMetrics) IncInjectionCommand(_ types.NodeID, _ string) {}

// ----------------------
// Control API
// ----------------------

// IncRemoteCallError discards the metric.
func (m *NopMetrics) IncRemoteCallError(_ types.NodeID, _ string) {}

// ----------------------
// Tasks
// ----------------------

// IncTaskPoll discards the metric.
func (m *NopMetrics) IncTaskPoll(_ types.NodeID) {}

// IncTaskTerminal discards the metric.
func (m *NopMetrics) IncTaskTerminal(_ types.TaskState) {}

// ObserveTaskWaitDuration discards the metric.
func (m *NopMetrics) ObserveTaskWaitDuration(_ float64) {}

// ----------------------
// Scenarios
// ----------------------

// IncScenarioResult discards the metric.
func (m *NopMetrics) IncScenarioResult(_ string, _ bool) {}

// ObserveScenarioDuration discards the metric.
func (m *NopMetrics) ObserveScenarioDuration(_ string, _ float64) {}
