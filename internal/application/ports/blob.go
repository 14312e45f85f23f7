package ports

import (
	"context"
	"io"
	"time"
)

// ByteRange is a half-open byte range for partial fetches. End < 0 means
// "to end of object". Range semantics are delegated to the blob store; the
// object manager is range-agnostic.
type ByteRange struct {
	Start int64
	End   int64
}

// BlobInfo is metadata about a stored blob. Size is the byte count of the
// returned body (the range length for a partial Get); Total is always the
// full object size.
type BlobInfo struct {
	Size     int64
	Total    int64
	StoredAt time.Time
}

// BlobStore is the external content store. Implementations must publish
// writes atomically: a reader sees either the previous object or the fully
// committed one, never partial bytes.
//
// Get reports a miss as domain errors.ErrObjectNotFound; Stat reports it as
// a nil info with a nil error. Transient backend failures wrap
// errors.ErrStorageUnavailable so the object manager can retry with backoff.
type BlobStore interface {
	// Stat reports existence and size without fetching the body.
	Stat(ctx context.Context, key string) (*BlobInfo, error)
	// Get returns the body, optionally restricted to rng.
	Get(ctx context.Context, key string, rng *ByteRange) (io.ReadCloser, *BlobInfo, error)
	// Put atomically commits size bytes from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64) (*BlobInfo, error)
	// Remove deletes key; removed is false when the key was absent.
	Remove(ctx context.Context, key string) (removed bool, err error)
	// RemoveScope deletes every object under the scope prefix, returning
	// the number removed. Used by project purge.
	RemoveScope(ctx context.Context, scope string) (int, error)
}
