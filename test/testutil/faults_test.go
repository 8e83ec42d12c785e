package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultPointNotArmed(t *testing.T) {
	f := newFaultPoints()

	called := false
	paused, err := f.hit(t.Context(), "p", func() { called = true })
	require.NoError(t, err)
	assert.False(t, paused)
	assert.False(t, called)
}

func TestFaultPointOneShot(t *testing.T) {
	f := newFaultPoints()
	f.enable("p", true)
	require.True(t, f.armed("p"))

	var waiting atomic.Int32
	done := make(chan bool, 1)
	go func() {
		paused, _ := f.hit(t.Context(), "p", func() { waiting.Add(1) })
		done <- paused
	}()

	require.Eventually(t, func() bool { return waiting.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, f.armed("p"), "one-shot point disarms on the first hit")

	paused, err := f.hit(t.Context(), "p", func() { waiting.Add(1) })
	require.NoError(t, err)
	assert.False(t, paused, "second execution passes straight through")

	assert.Equal(t, 1, f.message("p"))
	assert.True(t, <-done)
	assert.Equal(t, 0, f.message("p"), "nothing left to release")
}

func TestFaultPointPersistent(t *testing.T) {
	f := newFaultPoints()
	f.enable("p", false)

	var waiting atomic.Int32
	for range 2 {
		go func() { _, _ = f.hit(t.Context(), "p", func() { waiting.Add(1) }) }()
	}

	require.Eventually(t, func() bool { return waiting.Load() == 2 }, time.Second, time.Millisecond)
	assert.True(t, f.armed("p"))
	assert.Equal(t, []string{"p"}, f.list())
	assert.Equal(t, 2, f.message("p"))

	f.disable("p")
	assert.Empty(t, f.list())
}

func TestFaultPointCanceled(t *testing.T) {
	f := newFaultPoints()
	f.enable("p", true)

	ctx, cancel := contextWithCancel(t)
	cancel()

	paused, err := f.hit(ctx, "p", func() {})
	assert.True(t, paused)
	require.ErrorIs(t, err, ctx.Err())
}
