package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupKey(t *testing.T) {
	assert.Equal(t, "test_cf/backup/me-1-big-Data.db", BackupKey("test_cf", "backup", "me-1-big-Data.db"))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := t.Context()

	require.NoError(t, m.PutObject(ctx, "t2/backup/b", []byte("x")))
	require.NoError(t, m.PutObject(ctx, "t1/backup/a", []byte("y")))
	require.NoError(t, m.PutObject(ctx, "t1/backup/a", []byte("z")))

	keys, err := m.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1/backup/a", "t2/backup/b"}, keys)
	assert.Equal(t, 2, m.Count())

	keys, err = m.ListKeys(ctx, "t1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1/backup/a"}, keys)

	set := KeySet(keys)
	assert.Contains(t, set, "t1/backup/a")
	assert.NotContains(t, set, "t2/backup/b")
}

func TestNewMinIOValidation(t *testing.T) {
	_, err := NewMinIO(MinIOConfig{Bucket: "b"})
	require.Error(t, err)

	_, err = NewMinIO(MinIOConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)

	m, err := NewMinIO(MinIOConfig{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "b", m.Bucket())
}
