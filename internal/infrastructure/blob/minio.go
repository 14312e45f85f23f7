package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/buildless/buildcached/internal/application/ports"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// MinioConfig holds connection settings for an S3-compatible backend.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioStore is a BlobStore over an S3-compatible object store. S3 object
// writes are atomic per key, which satisfies the store's commit contract.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) (*ports.BlobInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMiss(err) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &ports.BlobInfo{Size: info.Size, Total: info.Size, StoredAt: info.LastModified}, nil
}

func (s *MinioStore) Get(ctx context.Context, key string, rng *ports.ByteRange) (io.ReadCloser, *ports.BlobInfo, error) {
	opts := minio.GetObjectOptions{}
	if rng != nil {
		// minio ranges are inclusive; ports.ByteRange.End is exclusive.
		end := rng.End - 1
		if rng.End < 0 {
			end = 0 // 0 means "to end of object" for SetRange
		}
		if err := opts.SetRange(rng.Start, end); err != nil {
			return nil, nil, domerrors.ErrRangeNotSatisfiable
		}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, nil, classify(err)
	}
	// GetObject is lazy: Stat forces the request so misses surface here.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isMiss(err) {
			return nil, nil, domerrors.ErrObjectNotFound
		}
		if minio.ToErrorResponse(err).Code == "InvalidRange" {
			return nil, nil, domerrors.ErrRangeNotSatisfiable
		}
		return nil, nil, classify(err)
	}
	// info.Size is the full object size even for ranged reads (parsed from
	// Content-Range); the returned byte count comes from the range itself.
	size := info.Size
	if rng != nil {
		end := rng.End
		if end < 0 || end > info.Size {
			end = info.Size
		}
		size = end - rng.Start
		if size < 0 {
			size = 0
		}
	}
	return obj, &ports.BlobInfo{Size: size, Total: info.Size, StoredAt: info.LastModified}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) (*ports.BlobInfo, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return nil, classify(err)
	}
	stored, err := s.Stat(ctx, key)
	if err != nil || stored == nil {
		return &ports.BlobInfo{Size: info.Size, Total: info.Size}, nil
	}
	return stored, nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMiss(err) {
			return false, nil
		}
		return false, classify(err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, classify(err)
	}
	return true, nil
}

func (s *MinioStore) RemoveScope(ctx context.Context, scope string) (int, error) {
	prefix := scope + "::"
	n := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return n, classify(obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return n, classify(err)
		}
		n++
	}
	return n, nil
}

func isMiss(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// classify wraps backend failures so the object manager retries them; 4xx
// responses other than misses pass through as-is.
func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" {
		return domerrors.ErrObjectNotFound
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return err
	}
	return fmt.Errorf("%w: %v", domerrors.ErrStorageUnavailable, err)
}

var _ ports.BlobStore = (*MinioStore)(nil)
