package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
)

const (
	TypeFlushObject  = "cache:flush"
	TypePurgeProject = "project:purge"
	TypeRecordUsage  = "usage:record"
)

// flushDelay defers removal slightly so a flush racing the tail of a store
// settles behind it; flushWindow bounds the documented eventual-removal
// contract (~30 seconds).
const (
	flushDelay  = 5 * time.Second
	flushWindow = 30 * time.Second
)

type TaskEnqueuer struct {
	client *asynq.Client
	log    zerolog.Logger
}

func NewAsynqEnqueuer(redisOpt asynq.RedisClientOpt, log zerolog.Logger) (*TaskEnqueuer, error) {
	client := asynq.NewClient(redisOpt)
	return &TaskEnqueuer{client: client, log: log}, nil
}

func (q *TaskEnqueuer) Close() error {
	return q.client.Close()
}

func (q *TaskEnqueuer) EnqueueFlush(ctx context.Context, ref string) error {
	payload, _ := json.Marshal(map[string]string{"ref": ref})
	task := asynq.NewTask(TypeFlushObject, payload)
	_, err := q.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(flushDelay),
		asynq.Deadline(time.Now().Add(flushWindow)),
	)
	if err != nil {
		q.log.Warn().Err(err).Str("ref", ref).Msg("enqueue flush failed")
		return err
	}
	return nil
}

func (q *TaskEnqueuer) EnqueueProjectPurge(ctx context.Context, projectID domain.ProjectID, scope string) error {
	payload, _ := json.Marshal(map[string]string{
		"project_id": projectID.String(),
		"scope":      scope,
	})
	task := asynq.NewTask(TypePurgeProject, payload)
	_, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		q.log.Warn().Err(err).Str("project_id", projectID.String()).Msg("enqueue project purge failed")
		return err
	}
	return nil
}

func (q *TaskEnqueuer) EnqueueUsage(ctx context.Context, parentScope string, bytes int64) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"scope": parentScope,
		"bytes": bytes,
	})
	task := asynq.NewTask(TypeRecordUsage, payload)
	_, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		q.log.Warn().Err(err).Str("scope", parentScope).Msg("enqueue usage failed")
		return err
	}
	return nil
}

var _ ports.TaskEnqueuer = (*TaskEnqueuer)(nil)
