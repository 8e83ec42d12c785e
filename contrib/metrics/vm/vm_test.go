package vm

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/types"
)

func TestCollector(t *testing.T) {
	set := metrics.NewSet()
	c := New(WithPrefix("test"), WithMetricsSet(set))
	require.Same(t, set, c.Set())

	c.IncLogWait("n1")
	c.IncLogWait("n1")
	c.IncLogWaitTimeout("n2")
	c.ObserveLogWaitDuration("n1", 0.25)
	c.IncInjectionCommand("n1", "enable_one_shot")
	c.IncRemoteCallError("n2", "move_tablet")
	c.IncTaskPoll("n1")
	c.IncTaskTerminal(types.TaskFailed)
	c.IncTaskTerminal(types.TaskRunning)
	c.ObserveTaskWaitDuration(1.5)
	c.IncScenarioResult("SimpleBackup", true)
	c.IncScenarioResult("AbortableBackup", false)
	c.ObserveScenarioDuration("SimpleBackup", 3)

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `test_log_wait_total{node="n1"} 2`)
	assert.Contains(t, out, `test_log_wait_timeouts_total{node="n2"} 1`)
	assert.Contains(t, out, `test_injection_commands_total{node="n1",command="enable_one_shot"} 1`)
	assert.Contains(t, out, `test_remote_call_errors_total{node="n2",operation="move_tablet"} 1`)
	assert.Contains(t, out, `test_task_polls_total{node="n1"} 1`)
	assert.Contains(t, out, `test_task_terminal_total{state="failed"} 1`)
	assert.Contains(t, out, `test_task_terminal_total{state="done"} 0`)
	assert.Contains(t, out, `test_scenario_total{scenario="SimpleBackup",result="passed"} 1`)
	assert.Contains(t, out, `test_scenario_total{scenario="AbortableBackup",result="failed"} 1`)
	assert.Contains(t, out, `test_scenario_duration_seconds_count{scenario="SimpleBackup"} 1`)
	assert.Contains(t, out, `test_task_wait_duration_seconds_count 1`)
}

func TestHandler(t *testing.T) {
	c := New(WithPrefix("handler"), WithMetricsSet(metrics.NewSet()))
	c.IncTaskPoll("n1")

	rec := httptest.NewRecorder()
	c.Handler(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Contains(t, rec.Body.String(), `handler_task_polls_total{node="n1"} 1`)
}
