package faultinject

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/types"
)

type call struct {
	op      string
	node    types.NodeID
	name    string
	oneShot bool
}

type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	fail    map[types.NodeID]error
	enabled map[types.NodeID][]string
}

func (f *fakeAPI) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)

	return f.fail[c.node]
}

func (f *fakeAPI) EnableInjection(_ context.Context, node types.NodeID, name string, oneShot bool) error {
	return f.record(call{op: "enable", node: node, name: name, oneShot: oneShot})
}

func (f *fakeAPI) MessageInjection(_ context.Context, node types.NodeID, name string) error {
	return f.record(call{op: "message", node: node, name: name})
}

func (f *fakeAPI) DisableInjection(_ context.Context, node types.NodeID, name string) error {
	return f.record(call{op: "disable", node: node, name: name})
}

func (f *fakeAPI) EnabledInjections(_ context.Context, node types.NodeID) ([]string, error) {
	if err := f.record(call{op: "list", node: node}); err != nil {
		return nil, err
	}

	return f.enabled[node], nil
}

func TestNewRejectsNilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, types.ErrNilAPI)
}

func TestSingleNodeCommands(t *testing.T) {
	api := &fakeAPI{enabled: map[types.NodeID][]string{"n1": {"backup_task_pause"}}}
	inj, err := New(api)
	require.NoError(t, err)
	ctx := t.Context()

	require.NoError(t, inj.Enable(ctx, "n1", "backup_task_pause", true))
	cmd, ok := inj.LastCommand("n1", "backup_task_pause")
	require.True(t, ok)
	assert.Equal(t, CommandEnableOneShot, cmd.Kind)

	names, err := inj.Enabled(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, []string{"backup_task_pause"}, names)

	require.NoError(t, inj.Message(ctx, "n1", "backup_task_pause"))
	cmd, _ = inj.LastCommand("n1", "backup_task_pause")
	assert.Equal(t, CommandMessage, cmd.Kind)

	require.NoError(t, inj.Enable(ctx, "n1", "shuffle", false))
	cmd, _ = inj.LastCommand("n1", "shuffle")
	assert.Equal(t, CommandEnable, cmd.Kind)

	require.NoError(t, inj.Disable(ctx, "n1", "shuffle"))
	cmd, _ = inj.LastCommand("n1", "shuffle")
	assert.Equal(t, CommandDisable, cmd.Kind)

	_, ok = inj.LastCommand("n2", "shuffle")
	assert.False(t, ok)

	assert.Equal(t, []call{
		{op: "enable", node: "n1", name: "backup_task_pause", oneShot: true},
		{op: "list", node: "n1"},
		{op: "message", node: "n1", name: "backup_task_pause"},
		{op: "enable", node: "n1", name: "shuffle"},
		{op: "disable", node: "n1", name: "shuffle"},
	}, api.calls)
}

func TestCommandErrorIsRecorded(t *testing.T) {
	boom := &types.RemoteCallError{Node: "n1", Operation: "enable_injection", StatusCode: 500, Message: "boom"}
	api := &fakeAPI{fail: map[types.NodeID]error{"n1": boom}}
	inj, err := New(api)
	require.NoError(t, err)

	err = inj.Enable(t.Context(), "n1", "p", true)
	require.ErrorIs(t, err, boom)

	cmd, ok := inj.LastCommand("n1", "p")
	require.True(t, ok)
	assert.ErrorIs(t, cmd.Err, boom)
}

func TestFanOut(t *testing.T) {
	nodes := []types.NodeID{"n1", "n2", "n3"}

	t.Run("all succeed", func(t *testing.T) {
		api := &fakeAPI{}
		inj, err := New(api)
		require.NoError(t, err)

		require.NoError(t, inj.EnableOn(t.Context(), nodes, "tablet_allocator_shuffle", false))
		require.NoError(t, inj.DisableOn(t.Context(), nodes, "tablet_allocator_shuffle"))
		require.NoError(t, inj.MessageOn(t.Context(), nodes, "tablet_allocator_shuffle"))
		assert.Len(t, api.calls, 9)
	})

	t.Run("every failure is reported", func(t *testing.T) {
		errA := errors.New("unreachable")
		errB := errors.New("rejected")
		api := &fakeAPI{fail: map[types.NodeID]error{"n1": errA, "n3": errB}}
		inj, err := New(api)
		require.NoError(t, err)

		err = inj.EnableOn(t.Context(), nodes, "tablet_allocator_shuffle", false)

		var multi *types.MultiNodeError
		require.ErrorAs(t, err, &multi)
		assert.Equal(t, "enable_injection", multi.Operation)
		assert.Equal(t, []types.NodeID{"n1", "n3"}, multi.Failed())
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)

		api.mu.Lock()
		defer api.mu.Unlock()
		assert.Len(t, api.calls, 3, "the healthy node is still attempted")
	})

	t.Run("empty node list", func(t *testing.T) {
		inj, err := New(&fakeAPI{})
		require.NoError(t, err)
		require.NoError(t, inj.EnableOn(t.Context(), nil, "p", true))
	})
}
