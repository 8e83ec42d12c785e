package testutil

import (
	"context"
	"fmt"
	"testing"

	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/arloliu/syncpoint/objstore"
)

// MinIOContainer wraps a MinIO test container and a client for one bucket.
type MinIOContainer struct {
	Container *tcminio.MinioContainer
	Config    objstore.MinIOConfig
	Store     *objstore.MinIO
}

// StartMinIO starts a MinIO container and creates bucket.
//
// The container is automatically terminated when the test completes.
func StartMinIO(ctx context.Context, t *testing.T, bucket string) (*MinIOContainer, error) {
	t.Helper()

	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("syncpoint"),
		tcminio.WithPassword("syncpoint-secret"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start MinIO container: %w", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate MinIO container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get MinIO endpoint: %w", err)
	}

	cfg := objstore.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: container.Username,
		SecretKey: container.Password,
		Bucket:    bucket,
	}
	store, err := objstore.NewMinIO(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	return &MinIOContainer{Container: container, Config: cfg, Store: store}, nil
}
