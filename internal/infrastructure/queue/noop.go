package queue

import (
	"context"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
)

// NoopEnqueuer is a no-op enqueuer when Redis/Asynq is not configured.
type NoopEnqueuer struct{}

func NewNoopEnqueuer() *NoopEnqueuer {
	return &NoopEnqueuer{}
}

func (q *NoopEnqueuer) EnqueueFlush(ctx context.Context, ref string) error {
	return nil
}

func (q *NoopEnqueuer) EnqueueProjectPurge(ctx context.Context, projectID domain.ProjectID, scope string) error {
	return nil
}

func (q *NoopEnqueuer) EnqueueUsage(ctx context.Context, parentScope string, bytes int64) error {
	return nil
}

var _ ports.TaskEnqueuer = (*NoopEnqueuer)(nil)
