package queue

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/buildless/buildcached/internal/application/cache"
	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
)

// flushPayload matches the JSON enqueued by TaskEnqueuer.EnqueueFlush.
type flushPayload struct {
	Ref string `json:"ref"`
}

// purgePayload matches the JSON enqueued by TaskEnqueuer.EnqueueProjectPurge.
type purgePayload struct {
	ProjectID string `json:"project_id"`
	Scope     string `json:"scope"`
}

// usagePayload matches the JSON enqueued by TaskEnqueuer.EnqueueUsage.
type usagePayload struct {
	Scope string `json:"scope"`
	Bytes int64  `json:"bytes"`
}

// Worker runs Asynq task handlers (deferred flush, project purge, usage
// accounting). Usage counters land in Redis under "usage:<scope>" for the
// billing pipeline to drain.
type Worker struct {
	srv      *asynq.Server
	mux      *asynq.ServeMux
	manager  *cache.Manager
	blobs    ports.BlobStore
	tags     ports.TagStore
	projects ports.ProjectRepository
	redis    *redis.Client
	log      zerolog.Logger
}

// NewWorker creates an Asynq server and registers handlers. Call Run() to start.
func NewWorker(redisOpt asynq.RedisClientOpt, manager *cache.Manager, blobs ports.BlobStore, tags ports.TagStore, projects ports.ProjectRepository, redisClient *redis.Client, log zerolog.Logger) *Worker {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		LogLevel:    asynq.InfoLevel,
	})
	mux := asynq.NewServeMux()
	w := &Worker{srv: srv, mux: mux, manager: manager, blobs: blobs, tags: tags, projects: projects, redis: redisClient, log: log}
	mux.HandleFunc(TypeFlushObject, w.handleFlush)
	mux.HandleFunc(TypePurgeProject, w.handlePurge)
	mux.HandleFunc(TypeRecordUsage, w.handleUsage)
	return w
}

func (w *Worker) handleFlush(ctx context.Context, t *asynq.Task) error {
	var p flushPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.log.Error().Err(err).Msg("flush task payload invalid")
		return err
	}
	// CompleteFlush takes the per-key write lock, so a flush arriving
	// mid-store waits for the store to commit or abort. A conflict here
	// returns an error and asynq redelivers within the window.
	if err := w.manager.CompleteFlush(ctx, p.Ref); err != nil {
		w.log.Warn().Err(err).Str("ref", p.Ref).Msg("flush retrying")
		return err
	}
	w.log.Debug().Str("ref", p.Ref).Msg("flushed")
	return nil
}

func (w *Worker) handlePurge(ctx context.Context, t *asynq.Task) error {
	var p purgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.log.Error().Err(err).Msg("purge task payload invalid")
		return err
	}
	removed, err := w.blobs.RemoveScope(ctx, p.Scope)
	if err != nil {
		return err
	}
	if err := w.clearScopeTags(ctx, p.Scope); err != nil {
		return err
	}
	id, err := uuid.Parse(p.ProjectID)
	if err != nil {
		w.log.Error().Err(err).Str("project_id", p.ProjectID).Msg("purge task has bad project id")
		return nil // malformed payload; retrying will not help
	}
	if err := w.projects.Purge(ctx, domain.NewProjectID(id)); err != nil {
		return err
	}
	w.log.Info().Str("project_id", p.ProjectID).Int("objects_removed", removed).Msg("project purged")
	return nil
}

// clearScopeTags drains the scope's tag index entry by entry; the iterator
// matches every tagged object in the scope.
func (w *Worker) clearScopeTags(ctx context.Context, scope string) error {
	iter, err := w.tags.MatchByTag(ctx, scope, func(domain.CacheTag) bool { return true })
	if err != nil {
		return err
	}
	for {
		ref, ok, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := w.tags.Clear(ctx, ref); err != nil {
			return err
		}
	}
}

func (w *Worker) handleUsage(ctx context.Context, t *asynq.Task) error {
	var p usagePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.log.Error().Err(err).Msg("usage task payload invalid")
		return err
	}
	if w.redis == nil {
		w.log.Info().Str("scope", p.Scope).Int64("bytes", p.Bytes).Msg("usage (log only; configure Redis for counters)")
		return nil
	}
	return w.redis.IncrBy(ctx, "usage:"+p.Scope, p.Bytes).Err()
}

// Run blocks until shutdown. Use Shutdown for graceful stop.
func (w *Worker) Run() error {
	return w.srv.Run(w.mux)
}

// Shutdown stops the worker.
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
