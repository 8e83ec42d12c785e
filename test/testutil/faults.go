package testutil

import (
	"context"
	"sort"
	"sync"
)

const (
	backupPausePoint = "backup_task_pause"
	streamPausePoint = "stream_mutation_fragments"
	shufflePoint     = "tablet_allocator_shuffle"
)

// faultPoints is a node's registry of armed fault points and the executions
// paused at them.
type faultPoints struct {
	mu      sync.Mutex
	enabled map[string]bool // name -> one-shot
	waiters map[string][]chan struct{}
}

func newFaultPoints() *faultPoints {
	return &faultPoints{
		enabled: make(map[string]bool),
		waiters: make(map[string][]chan struct{}),
	}
}

func (f *faultPoints) enable(name string, oneShot bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enabled[name] = oneShot
}

func (f *faultPoints) disable(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.enabled, name)
}

func (f *faultPoints) armed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.enabled[name]

	return ok
}

func (f *faultPoints) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.enabled))
	for name := range f.enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// message releases every execution currently paused at name.
func (f *faultPoints) message(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	waiters := f.waiters[name]
	for _, ch := range waiters {
		close(ch)
	}
	delete(f.waiters, name)

	return len(waiters)
}

// hit is called by a code path passing the fault point.
//
// When the point is armed, a one-shot point is disarmed, waiting is called
// once the execution is registered as paused, and hit blocks until a message
// arrives. It reports whether the execution paused.
func (f *faultPoints) hit(ctx context.Context, name string, waiting func()) (bool, error) {
	f.mu.Lock()
	oneShot, ok := f.enabled[name]
	if !ok {
		f.mu.Unlock()
		return false, nil
	}
	if oneShot {
		delete(f.enabled, name)
	}
	ch := make(chan struct{})
	f.waiters[name] = append(f.waiters[name], ch)
	f.mu.Unlock()

	waiting()

	select {
	case <-ch:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}
