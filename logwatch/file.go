package logwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/arloliu/syncpoint/types"
)

// fileReadChunk bounds a single read from the log file.
const fileReadChunk = 256 << 10

// ErrTruncated is returned when a log file shrank below an offset already
// handed out, so the lines after a mark can no longer be located.
var ErrTruncated = errors.New("syncpoint: log file truncated behind the read offset")

// FileSource reads a node's log file from disk.
//
// Offsets are byte offsets. The file is reopened on every read; a missing
// file reads as empty. Truncation or removal behind a read offset is
// reported as ErrTruncated rather than silently re-reading from the top.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a Source for the log file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the log file path.
func (f *FileSource) Path() string {
	return f.path
}

// End returns the current file size.
func (f *FileSource) End(_ context.Context) (int64, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("syncpoint: stat log file %s: %w", f.path, err)
	}

	return info.Size(), nil
}

// Lines reads complete lines starting at byte offset from.
func (f *FileSource) Lines(ctx context.Context, from int64, limit int) ([]types.Line, int64, error) {
	if from < 0 {
		from = 0
	}

	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if from > 0 {
			return nil, from, fmt.Errorf("%w: %s was removed", ErrTruncated, f.path)
		}
		return nil, from, nil
	}
	if err != nil {
		return nil, from, fmt.Errorf("syncpoint: open log file %s: %w", f.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, from, fmt.Errorf("syncpoint: stat log file %s: %w", f.path, err)
	}
	if info.Size() < from {
		return nil, from, fmt.Errorf("%w: %s is %d bytes, offset %d", ErrTruncated, f.path, info.Size(), from)
	}

	var (
		lines  []types.Line
		carry  []byte
		base   = from
		offset = from
		chunk  = make([]byte, fileReadChunk)
	)
	for limit <= 0 || len(lines) < limit {
		if err := ctx.Err(); err != nil {
			return nil, from, err
		}

		n, readErr := file.ReadAt(chunk, offset)
		if n > 0 {
			offset += int64(n)
			carry = append(carry, chunk[:n]...)

			got, next, _ := splitLines(carry, base, limit-len(lines))
			lines = append(lines, got...)
			carry = carry[next-base:]
			base = next
		}
		if errors.Is(readErr, io.EOF) || n == 0 {
			break
		}
		if readErr != nil {
			return nil, from, fmt.Errorf("syncpoint: read log file %s: %w", f.path, readErr)
		}
	}

	return lines, base, nil
}
