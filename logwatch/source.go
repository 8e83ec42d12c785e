package logwatch

import (
	"bytes"
	"context"
	"sync"

	"github.com/arloliu/syncpoint/types"
)

// Source is a node's append-only diagnostic stream.
//
// Offsets are absolute and monotonic for the lifetime of the stream. Sources
// are read-only from the harness's perspective.
type Source interface {
	// End returns the current end-of-stream offset.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//
	// Returns:
	//   - int64: Offset one past the last written byte or record
	//   - error: Error if the stream cannot be inspected
	End(ctx context.Context) (int64, error)

	// Lines returns up to limit complete lines at or after from.
	//
	// A trailing line that is not yet terminated is not returned; it is
	// reported by a later call once complete.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - from: Offset to start reading at
	//   - limit: Maximum number of lines to return
	//
	// Returns:
	//   - []types.Line: Lines in stream order
	//   - int64: Offset to resume reading from
	//   - error: Error if the stream cannot be read
	Lines(ctx context.Context, from int64, limit int) ([]types.Line, int64, error)
}

// Syncer is implemented by sources that lag the node's log and can catch up
// on demand. Watcher.Mark syncs such a source before reading its end, so
// lines written before the mark are never reported after it.
type Syncer interface {
	Sync(ctx context.Context) error
}

// MemorySource is an in-process Source backed by a byte buffer.
//
// Offsets are byte offsets. It implements io.Writer so it can back a slog
// handler or any other line-oriented writer.
type MemorySource struct {
	mu  sync.RWMutex
	buf []byte
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource creates an empty in-memory stream.
func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

// Write appends raw bytes to the stream.
func (m *MemorySource) Write(p []byte) (int, error) {
	m.mu.Lock()
	m.buf = append(m.buf, p...)
	m.mu.Unlock()

	return len(p), nil
}

// AppendLine appends a single terminated line and returns its start offset.
func (m *MemorySource) AppendLine(text string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(len(m.buf))
	m.buf = append(m.buf, text...)
	m.buf = append(m.buf, '\n')

	return offset
}

// End returns the current buffer length.
func (m *MemorySource) End(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.buf)), nil
}

// Lines returns complete lines starting at from.
func (m *MemorySource) Lines(_ context.Context, from int64, limit int) ([]types.Line, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if from >= int64(len(m.buf)) {
		return nil, from, nil
	}

	return splitLines(m.buf[from:], from, limit)
}

// splitLines cuts complete lines out of data, which starts at offset base.
func splitLines(data []byte, base int64, limit int) ([]types.Line, int64, error) {
	var lines []types.Line
	pos := 0
	for limit <= 0 || len(lines) < limit {
		idx := bytes.IndexByte(data[pos:], '\n')
		if idx < 0 {
			break
		}
		text := data[pos : pos+idx]
		text = bytes.TrimSuffix(text, []byte{'\r'})
		lines = append(lines, types.Line{Offset: base + int64(pos), Text: string(text)})
		pos += idx + 1
	}

	return lines, base + int64(pos), nil
}
