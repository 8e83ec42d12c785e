package objstore

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
)

// Lister lists object keys in a bucket.
type Lister interface {
	// ListKeys returns every key starting with prefix, in lexical order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Writer stores objects. Fakes use it to play the server side of a backup.
type Writer interface {
	PutObject(ctx context.Context, key string, data []byte) error
}

// Store is a Lister that can also write.
type Store interface {
	Lister
	Writer
}

// BackupKey returns the key a backup uses for a snapshot file: "{table}/{tag}/{file}".
func BackupKey(table, tag, file string) string {
	return path.Join(table, tag, file)
}

// KeySet returns keys as a set for membership checks.
func KeySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}

	return set
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// PutObject stores data under key, replacing any previous object.
func (m *Memory) PutObject(_ context.Context, key string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = buf
	m.mu.Unlock()

	return nil
}

// ListKeys returns every key starting with prefix.
func (m *Memory) ListKeys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// Count returns the number of stored objects.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}
