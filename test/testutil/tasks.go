package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/syncpoint/types"
)

var errTaskAborted = errors.New("task was aborted")

// fakeTask is one task manager entry.
type fakeTask struct {
	id       string
	typ      string
	keyspace string
	table    string
	start    time.Time
	aborted  atomic.Bool
	done     chan struct{}

	mu        sync.Mutex
	state     types.TaskState
	err       string
	end       time.Time
	completed float64
	total     float64
}

func (t *fakeTask) progress(completed, total float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed, t.total = completed, total
}

// body renders the task in the task manager's JSON shape.
func (t *fakeTask) body() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := ""
	if !t.end.IsZero() {
		end = t.end.UTC().Format(time.RFC3339)
	}

	return map[string]any{
		"id":                 t.id,
		"type":               t.typ,
		"kind":               "node",
		"scope":              "keyspace",
		"state":              string(t.state),
		"is_abortable":       true,
		"start_time":         t.start.UTC().Format(time.RFC3339),
		"end_time":           end,
		"error":              t.err,
		"keyspace":           t.keyspace,
		"table":              t.table,
		"progress_total":     t.total,
		"progress_completed": t.completed,
	}
}

// taskManager runs a node's asynchronous operations.
type taskManager struct {
	ctx   context.Context
	mu    sync.Mutex
	tasks map[string]*fakeTask
}

func newTaskManager(ctx context.Context) *taskManager {
	return &taskManager{ctx: ctx, tasks: make(map[string]*fakeTask)}
}

// start runs fn in the background as a new task.
func (m *taskManager) start(typ, keyspace, table string, fn func(ctx context.Context, t *fakeTask) error) *fakeTask {
	t := &fakeTask{
		id:       uuid.NewString(),
		typ:      typ,
		keyspace: keyspace,
		table:    table,
		start:    time.Now(),
		state:    types.TaskRunning,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[t.id] = t
	m.mu.Unlock()

	go func() {
		err := fn(m.ctx, t)

		t.mu.Lock()
		t.end = time.Now()
		if err != nil {
			t.state = types.TaskFailed
			t.err = err.Error()
		} else {
			t.state = types.TaskDone
		}
		t.mu.Unlock()
		close(t.done)
	}()

	return t
}

func (m *taskManager) get(id string) *fakeTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tasks[id]
}
