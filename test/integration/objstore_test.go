package integration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/test/testutil"
)

func TestMinIOStore(t *testing.T) {
	ctx := t.Context()
	minio, err := testutil.StartMinIO(ctx, t, "backups")
	if err != nil {
		t.Skipf("MinIO unavailable: %v", err)
	}

	keys := []string{
		objstore.BackupKey("test_cf", "backup", "me-1-big-Data.db"),
		objstore.BackupKey("test_cf", "backup", "me-1-big-Index.db"),
		objstore.BackupKey("other", "backup", "me-2-big-Data.db"),
	}
	for _, k := range keys {
		require.NoError(t, minio.Store.PutObject(ctx, k, []byte(k)))
	}

	got, err := minio.Store.ListKeys(ctx, "test_cf/")
	require.NoError(t, err)
	assert.Equal(t, keys[:2], got)

	all, err := minio.Store.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, minio.Store.EnsureBucket(ctx), "existing bucket is accepted")
}
