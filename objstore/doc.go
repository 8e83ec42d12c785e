// Package objstore lists the keys a backup wrote to remote object storage.
//
// The harness never inspects object content; scenarios only check that the
// expected keys exist. Backups lay keys out as "{table}/{tag}/{file}", see
// BackupKey.
//
// Implementations:
//
//   - MinIO: any S3-compatible server, through minio-go
//   - Memory: in-process, used by the fake cluster
package objstore
