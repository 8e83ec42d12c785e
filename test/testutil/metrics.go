package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/arloliu/syncpoint/types"
)

// TestMetricsCollector is a test implementation of types.MetricsCollector
// that tracks method calls for assertion in tests.
type TestMetricsCollector struct {
	mu sync.RWMutex

	// Log watcher
	LogWaits        map[types.NodeID]int64
	LogWaitTimeouts map[types.NodeID]int64
	LogWaitDuration map[types.NodeID][]float64

	// Fault injection; key: "node/command"
	InjectionCommands map[string]int64

	// Control API; key: "node/operation"
	RemoteCallErrors map[string]int64

	// Tasks
	TaskPolls        map[types.NodeID]int64
	TaskTerminal     map[types.TaskState]int64
	TaskWaitDuration []float64

	// Scenarios
	ScenarioPassed   map[string]int64
	ScenarioFailed   map[string]int64
	ScenarioDuration map[string][]float64

	// Atomic counters for quick access
	totalLogWaits   atomic.Int64
	totalTaskPolls  atomic.Int64
	totalRemoteErrs atomic.Int64
}

// Compile-time assertion that TestMetricsCollector implements types.MetricsCollector.
var _ types.MetricsCollector = (*TestMetricsCollector)(nil)

// NewTestMetricsCollector creates a new test metrics collector.
func NewTestMetricsCollector() *TestMetricsCollector {
	return &TestMetricsCollector{
		LogWaits:          make(map[types.NodeID]int64),
		LogWaitTimeouts:   make(map[types.NodeID]int64),
		LogWaitDuration:   make(map[types.NodeID][]float64),
		InjectionCommands: make(map[string]int64),
		RemoteCallErrors:  make(map[string]int64),
		TaskPolls:         make(map[types.NodeID]int64),
		TaskTerminal:      make(map[types.TaskState]int64),
		ScenarioPassed:    make(map[string]int64),
		ScenarioFailed:    make(map[string]int64),
		ScenarioDuration:  make(map[string][]float64),
	}
}

// ----------------------
// Log Watcher
// ----------------------

func (m *TestMetricsCollector) IncLogWait(node types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogWaits[node]++
	m.totalLogWaits.Add(1)
}

func (m *TestMetricsCollector) IncLogWaitTimeout(node types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogWaitTimeouts[node]++
}

func (m *TestMetricsCollector) ObserveLogWaitDuration(node types.NodeID, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogWaitDuration[node] = append(m.LogWaitDuration[node], seconds)
}

// ----------------------
// Fault Injection
// ----------------------

func (m *TestMetricsCollector) IncInjectionCommand(node types.NodeID, command string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InjectionCommands[string(node)+"/"+command]++
}

// ----------------------
// Control API
// ----------------------

func (m *TestMetricsCollector) IncRemoteCallError(node types.NodeID, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoteCallErrors[string(node)+"/"+operation]++
	m.totalRemoteErrs.Add(1)
}

// ----------------------
// Tasks
// ----------------------

func (m *TestMetricsCollector) IncTaskPoll(node types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskPolls[node]++
	m.totalTaskPolls.Add(1)
}

func (m *TestMetricsCollector) IncTaskTerminal(state types.TaskState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskTerminal[state]++
}

func (m *TestMetricsCollector) ObserveTaskWaitDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskWaitDuration = append(m.TaskWaitDuration, seconds)
}

// ----------------------
// Scenarios
// ----------------------

func (m *TestMetricsCollector) IncScenarioResult(scenario string, passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if passed {
		m.ScenarioPassed[scenario]++
	} else {
		m.ScenarioFailed[scenario]++
	}
}

func (m *TestMetricsCollector) ObserveScenarioDuration(scenario string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScenarioDuration[scenario] = append(m.ScenarioDuration[scenario], seconds)
}

// ----------------------
// Helper Methods
// ----------------------

// TotalLogWaits returns the total number of log waits across nodes.
func (m *TestMetricsCollector) TotalLogWaits() int64 {
	return m.totalLogWaits.Load()
}

// TotalTaskPolls returns the total number of task polls across nodes.
func (m *TestMetricsCollector) TotalTaskPolls() int64 {
	return m.totalTaskPolls.Load()
}

// TotalRemoteCallErrors returns the total number of failed control API calls.
func (m *TestMetricsCollector) TotalRemoteCallErrors() int64 {
	return m.totalRemoteErrs.Load()
}

// Passed returns how many times scenario passed.
func (m *TestMetricsCollector) Passed(scenario string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.ScenarioPassed[scenario]
}

// Failed returns how many times scenario failed.
func (m *TestMetricsCollector) Failed(scenario string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.ScenarioFailed[scenario]
}

// Terminal returns how many tasks were observed ending in state.
func (m *TestMetricsCollector) Terminal(state types.TaskState) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.TaskTerminal[state]
}
