package ports

import (
	"context"

	"github.com/buildless/buildcached/internal/domain"
)

// TaskEnqueuer enqueues async work (deferred flush, project purge, usage
// propagation under open isolation).
type TaskEnqueuer interface {
	// EnqueueFlush schedules removal of ref within the flush window.
	EnqueueFlush(ctx context.Context, ref string) error
	// EnqueueProjectPurge schedules blob/tag/row removal for a tombstoned
	// project.
	EnqueueProjectPurge(ctx context.Context, projectID domain.ProjectID, scope string) error
	// EnqueueUsage mirrors a committed write's size to the parent account
	// scope for quota and analytics.
	EnqueueUsage(ctx context.Context, parentScope string, bytes int64) error
}
