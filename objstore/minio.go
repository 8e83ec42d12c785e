package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig describes an S3-compatible endpoint.
type MinIOConfig struct {
	// Endpoint is host:port without scheme.
	Endpoint string `yaml:"endpoint"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// UseSSL selects https.
	UseSSL bool `yaml:"use_ssl"`

	// Bucket is the bucket backups are written to.
	Bucket string `yaml:"bucket"`
}

// MinIO is a Store backed by an S3-compatible server.
type MinIO struct {
	client *minio.Client
	bucket string
}

var _ Store = (*MinIO)(nil)

// NewMinIO connects to the endpoint described by cfg.
//
// Parameters:
//   - cfg: Endpoint, credentials and bucket
//
// Returns:
//   - *MinIO: The store
//   - error: Error if the configuration is invalid
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("syncpoint: object store endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("syncpoint: object store bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("syncpoint: create object store client: %w", err)
	}

	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket name.
func (m *MinIO) Bucket() string {
	return m.bucket
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("syncpoint: check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("syncpoint: create bucket %s: %w", m.bucket, err)
	}

	return nil
}

// ListKeys returns every key starting with prefix, recursively.
func (m *MinIO) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("syncpoint: list bucket %s: %w", m.bucket, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	return keys, nil
}

// PutObject uploads data under key.
func (m *MinIO) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("syncpoint: put %s/%s: %w", m.bucket, key, err)
	}

	return nil
}
