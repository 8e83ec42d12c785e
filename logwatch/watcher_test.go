package logwatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/internal/backoff"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/types"
)

func newWatcher(t *testing.T, src logwatch.Source) *logwatch.Watcher {
	t.Helper()

	w, err := logwatch.New("n1", src,
		logwatch.WithPollInterval(time.Millisecond, 5*time.Millisecond),
		logwatch.WithDefaultTimeout(time.Second),
	)
	require.NoError(t, err)

	return w
}

func TestNewRejectsNilSource(t *testing.T) {
	_, err := logwatch.New("n1", nil)
	require.ErrorIs(t, err, types.ErrNilSource)
}

func TestNewRejectsInvalidPollInterval(t *testing.T) {
	tests := []struct {
		name         string
		initial, max time.Duration
	}{
		{"zero initial", 0, time.Second},
		{"negative initial", -time.Millisecond, time.Second},
		{"max below initial", time.Second, time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := logwatch.New("n1", logwatch.NewMemorySource(), logwatch.WithPollInterval(tt.initial, tt.max))
			require.ErrorIs(t, err, backoff.ErrInvalidPolicy)
		})
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	src := logwatch.NewMemorySource()
	src.AppendLine("boot")
	w := newWatcher(t, src)

	m1, err := w.Mark(t.Context())
	require.NoError(t, err)
	m2, err := w.Mark(t.Context())
	require.NoError(t, err)

	assert.Equal(t, m1, m2)
	assert.Equal(t, types.NodeID("n1"), m1.Node)

	src.AppendLine("more")
	m3, err := w.Mark(t.Context())
	require.NoError(t, err)
	assert.True(t, m1.Before(m3))
}

func TestWaitForIgnoresLinesBeforeMark(t *testing.T) {
	src := logwatch.NewMemorySource()
	src.AppendLine("backup task: waiting")
	w := newWatcher(t, src)

	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	_, err = w.WaitFor(t.Context(), "backup task: waiting", mark, 30*time.Millisecond)
	require.ErrorIs(t, err, types.ErrTimeout)

	var terr *types.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "wait_for", terr.Operation)
	assert.Equal(t, types.NodeID("n1"), terr.Node)
}

func TestWaitForSeesLaterLine(t *testing.T) {
	src := logwatch.NewMemorySource()
	src.AppendLine("noise")
	w := newWatcher(t, src)

	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		src.AppendLine("INFO  [shard 0:strm] stream_mutation_fragments: waiting")
	}()

	match, err := w.WaitFor(t.Context(), `\[shard (\d+):(\w+)\] stream_mutation_fragments: waiting`, mark, time.Second)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, match.Offset, mark.Offset)
	assert.Equal(t, "0", match.Group(1))
	assert.Equal(t, "strm", match.Group(2))
	assert.Contains(t, match.Line, "stream_mutation_fragments")
}

func TestWaitForReturnsFirstMatch(t *testing.T) {
	src := logwatch.NewMemorySource()
	w := newWatcher(t, src)
	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	first := src.AppendLine("step 1 done")
	src.AppendLine("step 2 done")

	match, err := w.WaitFor(t.Context(), `step \d done`, mark, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, match.Offset)
	assert.Equal(t, "step 1 done", match.Line)
}

func TestWaitForPartialLine(t *testing.T) {
	src := logwatch.NewMemorySource()
	w := newWatcher(t, src)
	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	_, err = src.Write([]byte("backup task: wait"))
	require.NoError(t, err)

	_, err = w.WaitFor(t.Context(), "backup task: waiting", mark, 20*time.Millisecond)
	require.ErrorIs(t, err, types.ErrTimeout, "unterminated lines are not visible")

	_, err = src.Write([]byte("ing\n"))
	require.NoError(t, err)

	match, err := w.WaitFor(t.Context(), "backup task: waiting", mark, time.Second)
	require.NoError(t, err)
	assert.Equal(t, mark.Offset, match.Offset)
}

func TestWaitForRejectsForeignMark(t *testing.T) {
	w := newWatcher(t, logwatch.NewMemorySource())

	_, err := w.WaitFor(t.Context(), "x", types.LogMark{Node: "n2"}, time.Second)
	require.ErrorIs(t, err, types.ErrMarkNodeMismatch)
}

func TestWaitForInvalidPattern(t *testing.T) {
	w := newWatcher(t, logwatch.NewMemorySource())
	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	_, err = w.WaitFor(t.Context(), "(unclosed", mark, time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrTimeout)
}

func TestWaitForContextCanceled(t *testing.T) {
	w := newWatcher(t, logwatch.NewMemorySource())
	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = w.WaitFor(ctx, "never", mark, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitForAllAnyOrder(t *testing.T) {
	src := logwatch.NewMemorySource()
	w := newWatcher(t, src)
	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	src.AppendLine("second thing")
	src.AppendLine("first thing")

	matches, err := w.WaitForAll(t.Context(), []string{"first", "second"}, mark, time.Second)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first thing", matches[0].Line)
	assert.Equal(t, "second thing", matches[1].Line)
	assert.Greater(t, matches[0].Offset, matches[1].Offset)
}

func TestWaitForBatchBoundary(t *testing.T) {
	src := logwatch.NewMemorySource()
	w, err := logwatch.New("n1", src,
		logwatch.WithPollInterval(time.Millisecond, time.Millisecond),
		logwatch.WithBatchSize(2),
	)
	require.NoError(t, err)

	mark, err := w.Mark(t.Context())
	require.NoError(t, err)
	for range 7 {
		src.AppendLine("filler")
	}
	src.AppendLine("needle")

	match, err := w.WaitFor(t.Context(), "needle", mark, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "needle", match.Line)
}

func TestConcurrentWaitsAreIndependent(t *testing.T) {
	src := logwatch.NewMemorySource()
	w := newWatcher(t, src)
	mark, err := w.Mark(t.Context())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pattern := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = w.WaitFor(t.Context(), pattern, mark, time.Second)
		}()
	}

	src.AppendLine("beta")
	src.AppendLine("alpha")
	wg.Wait()

	require.NoError(t, errors.Join(errs...))
}

func TestGrep(t *testing.T) {
	src := logwatch.NewMemorySource()
	src.AppendLine("INFO  [shard 0:strm] snapshots - Backup sstables from /a to s3://b")
	src.AppendLine("INFO  [shard 1:main] unrelated")
	w := newWatcher(t, src)

	mark, err := w.Mark(t.Context())
	require.NoError(t, err)
	src.AppendLine("INFO  [shard 2:strm] snapshots - Backup sstables from /c to s3://d")

	pattern := `INFO.*\[shard [0-9]:([a-z]+)\] .* Backup sstables from .* to`

	all, err := w.Grep(t.Context(), pattern)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "strm", all[0].Group(1))

	after, err := w.GrepFrom(t.Context(), pattern, mark)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.GreaterOrEqual(t, after[0].Offset, mark.Offset)
}
