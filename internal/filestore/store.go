// Package filestore is the object-storage contract annotation exports are
// written through. Callers depend on this package only; filestore/minio is
// the MinIO/S3 implementation.
//
// Usage:
//
//	cfg := filestore.Config{Endpoint: "localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin", Bucket: "qgenie-annotations"}
//	fs, err := minio.New(ctx, &cfg)
//	if err != nil { ... }
//	defer fs.Close()
//
//	info, err := fs.PutObject(ctx, cfg.Bucket, "annotations/DB-ANNOTATION-....yaml", r, size, "application/yaml")
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is implemented by every object-storage backend.
type Store interface {
	// Ping verifies the backend is reachable with the configured credentials.
	Ping(ctx context.Context) error

	Close() error

	// EnsureBucket creates bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads size bytes from r. size -1 streams until EOF.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// GetObject opens the object for reading. The caller must Close it.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// ListObjects returns the objects under opts.Prefix.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// PresignGetURL returns a download URL valid for ttl.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
