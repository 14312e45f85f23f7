package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildless/buildcached/internal/application/policy"
	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

const (
	DefaultLockWait      = 2 * time.Second
	DefaultMaxAttempts   = 3
	DefaultRetryBackoff  = 50 * time.Millisecond
	DefaultMaxObjectSize = 512 << 20 // 512 MiB
)

// Config tunes the manager. Zero fields take the defaults above.
type Config struct {
	// LockWait bounds how long a store waits for a concurrent writer
	// before returning a conflict.
	LockWait time.Duration
	// MaxAttempts bounds retries of transient blob-store failures.
	MaxAttempts int
	// RetryBackoff is the initial backoff between attempts (doubled each
	// retry).
	RetryBackoff time.Duration
	// MaxObjectSize rejects oversized stores before touching the backend.
	MaxObjectSize int64
}

func (c *Config) defaults() {
	if c.LockWait <= 0 {
		c.LockWait = DefaultLockWait
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxObjectSize <= 0 {
		c.MaxObjectSize = DefaultMaxObjectSize
	}
}

// Manager orchestrates probe/fetch/store/flush against the blob store,
// enforcing policy decisions and tag consistency. Safe for concurrent use;
// the only serialization point is the per-(scope,key) write lock.
type Manager struct {
	blobs  ports.BlobStore
	tags   ports.TagStore
	policy *policy.Engine
	locks  ports.WriteLocker
	queue  ports.TaskEnqueuer
	log    zerolog.Logger
	cfg    Config
}

// NewManager wires the object manager.
func NewManager(blobs ports.BlobStore, tags ports.TagStore, pol *policy.Engine, locks ports.WriteLocker, queue ports.TaskEnqueuer, log zerolog.Logger, cfg Config) *Manager {
	cfg.defaults()
	return &Manager{blobs: blobs, tags: tags, policy: pol, locks: locks, queue: queue, log: log, cfg: cfg}
}

// ProbeResult reports existence without the body.
type ProbeResult struct {
	Hit  bool
	Size int64
}

// Probe authorizes a read and delegates an existence check to the blob
// store. Never fetches the body.
func (m *Manager) Probe(ctx context.Context, project *domain.Project, key string, principal domain.Principal) (*ProbeResult, error) {
	nk, err := domain.NormalizeKey(key, projectScope(project))
	if err != nil {
		return nil, err
	}
	if err := m.authorize(project, policy.OpRead, principal); err != nil {
		return nil, err
	}
	info, err := m.statWithFallback(ctx, project, nk)
	if err != nil {
		if errors.Is(err, domerrors.ErrObjectNotFound) {
			return &ProbeResult{}, nil
		}
		return nil, err
	}
	return &ProbeResult{Hit: true, Size: info.Size}, nil
}

// FetchInput identifies the object and optional byte range.
type FetchInput struct {
	Project   *domain.Project
	Key       string
	Principal domain.Principal
	// Range is passed through to the blob store; the manager itself is
	// range-agnostic.
	Range *ports.ByteRange
}

// FetchResult is the object body. Size is the byte count of Body (the range
// length for partial fetches); Total is the full object size. Callers must
// close Body.
type FetchResult struct {
	Body  io.ReadCloser
	Size  int64
	Total int64
}

// Fetch authorizes a read and returns the body. A local miss falls back to
// the parent scope when the project's isolation mode allows it.
func (m *Manager) Fetch(ctx context.Context, in FetchInput) (*FetchResult, error) {
	nk, err := domain.NormalizeKey(in.Key, projectScope(in.Project))
	if err != nil {
		return nil, err
	}
	if err := m.authorize(in.Project, policy.OpRead, in.Principal); err != nil {
		return nil, err
	}
	body, info, err := m.getBlob(ctx, nk.String(), in.Range)
	if errors.Is(err, domerrors.ErrObjectNotFound) {
		if parent := m.policy.ReadFallbackScope(in.Project); parent != "" {
			if pk, perr := domain.NormalizeKey(in.Key, parent); perr == nil {
				body, info, err = m.getBlob(ctx, pk.String(), in.Range)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return &FetchResult{Body: body, Size: info.Size, Total: info.Total}, nil
}

// StoreInput carries the object bytes and optional tags.
type StoreInput struct {
	Project   *domain.Project
	Key       string
	Principal domain.Principal
	Body      io.Reader
	Size      int64
	Tags      []domain.CacheTag
}

// StoreResult echoes the committed key with size and timestamp.
type StoreResult struct {
	Key   string
	Size  int64
	Stamp time.Time
}

// Store authorizes a write, acquires the per-key write lock, commits the
// blob and tags as one visible unit, and mirrors usage to the parent scope
// under open isolation. A concurrent writer on the same key yields
// ErrWriteConflict after a bounded wait.
func (m *Manager) Store(ctx context.Context, in StoreInput) (*StoreResult, error) {
	// Validation precedes authorization; neither is ever retried.
	nk, err := domain.NormalizeKey(in.Key, projectScope(in.Project))
	if err != nil {
		return nil, err
	}
	caps := domain.TagCapabilities{System: in.Principal.System}
	if err := domain.ValidateTags(in.Tags, caps); err != nil {
		return nil, err
	}
	if err := m.authorize(in.Project, policy.OpWrite, in.Principal); err != nil {
		return nil, err
	}
	if in.Size > m.cfg.MaxObjectSize {
		return nil, domerrors.ErrPayloadTooLarge
	}

	release, err := m.locks.Acquire(ctx, nk.String(), m.cfg.LockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	// Snapshot the prior object under the lock so a failed tag commit can
	// put the index back the way it was.
	prior, err := m.blobs.Stat(ctx, nk.String())
	if err != nil {
		return nil, err
	}
	var priorTags []domain.CacheTag
	if prior != nil {
		if priorTags, err = m.tags.GetTags(ctx, nk.String()); err != nil {
			return nil, err
		}
	}

	var info *ports.BlobInfo
	first := true
	err = m.withRetry(ctx, func() error {
		// Retries must replay the body from the start; a non-seekable
		// body cannot be replayed, so its failure surfaces immediately.
		if !first {
			seeker, ok := in.Body.(io.Seeker)
			if !ok {
				return domerrors.ErrStorageUnavailable
			}
			if _, serr := seeker.Seek(0, io.SeekStart); serr != nil {
				return serr
			}
		}
		first = false
		var perr error
		info, perr = m.blobs.Put(ctx, nk.String(), in.Body, in.Size)
		return perr
	})
	if err != nil {
		return nil, err
	}

	// Tags commit with the blob or not at all. The set is replaced even when
	// empty: an overwrite must not keep the previous object's tags.
	if terr := m.tags.SetTags(ctx, nk.String(), in.Tags, caps); terr != nil {
		m.rollbackStore(ctx, nk.String(), prior != nil, priorTags)
		return nil, terr
	}

	if m.policy.PropagateWrites(in.Project) {
		if qerr := m.queue.EnqueueUsage(ctx, in.Project.ParentScope(), info.Size); qerr != nil {
			m.log.Warn().Err(qerr).Str("scope", in.Project.ParentScope()).Msg("enqueue usage propagation failed")
		}
	}

	return &StoreResult{Key: in.Key, Size: info.Size, Stamp: info.StoredAt}, nil
}

// rollbackStore undoes a store whose tag commit failed. A fresh key is
// removed so neither blob nor tags become visible; an overwritten key gets
// its previous tag set back, since the prior bytes cannot be reconstructed.
func (m *Manager) rollbackStore(ctx context.Context, ref string, existed bool, priorTags []domain.CacheTag) {
	if !existed {
		if _, err := m.blobs.Remove(ctx, ref); err != nil {
			m.log.Error().Err(err).Str("key", ref).Msg("rollback blob after tag failure")
		}
		return
	}
	// System capabilities: the prior set was validated when it was written
	// and may contain derived tags.
	if err := m.tags.SetTags(ctx, ref, priorTags, domain.TagCapabilities{System: true}); err != nil {
		m.log.Error().Err(err).Str("key", ref).Msg("restore tags after tag failure")
	}
}

// FlushOutcome distinguishes a scheduled removal from an idempotent no-op.
type FlushOutcome int

const (
	FlushNoOp FlushOutcome = iota
	FlushQueued
)

// Flush authorizes a write and schedules eventual removal of the key within
// the flush window. Flushing an absent key is a NoOp, not an error.
func (m *Manager) Flush(ctx context.Context, project *domain.Project, key string, principal domain.Principal) (FlushOutcome, error) {
	nk, err := domain.NormalizeKey(key, projectScope(project))
	if err != nil {
		return FlushNoOp, err
	}
	if err := m.authorize(project, policy.OpWrite, principal); err != nil {
		return FlushNoOp, err
	}
	info, err := m.blobs.Stat(ctx, nk.String())
	if err != nil && !errors.Is(err, domerrors.ErrObjectNotFound) {
		return FlushNoOp, err
	}
	if info == nil {
		return FlushNoOp, nil
	}
	if err := m.queue.EnqueueFlush(ctx, nk.String()); err != nil {
		return FlushNoOp, err
	}
	return FlushQueued, nil
}

// CompleteFlush performs the deferred removal. It takes the write lock so a
// flush never races an in-flight store on the same key: it waits (bounded)
// for the store to commit or abort, then removes. Called by the worker.
func (m *Manager) CompleteFlush(ctx context.Context, ref string) error {
	release, err := m.locks.Acquire(ctx, ref, m.cfg.LockWait)
	if err != nil {
		return err
	}
	defer release()
	if _, err := m.blobs.Remove(ctx, ref); err != nil {
		return err
	}
	return m.tags.Clear(ctx, ref)
}

// Tags returns the object's tag set without fetching the body. Reads are
// authorized like fetches; an untagged object yields an empty set.
func (m *Manager) Tags(ctx context.Context, project *domain.Project, key string, principal domain.Principal) ([]domain.CacheTag, error) {
	nk, err := domain.NormalizeKey(key, projectScope(project))
	if err != nil {
		return nil, err
	}
	if err := m.authorize(project, policy.OpRead, principal); err != nil {
		return nil, err
	}
	return m.tags.GetTags(ctx, nk.String())
}

// SetTags replaces an object's tags outside a store. Tag changes never
// require a key change. Authorized as a write and serialized under the same
// per-key lock as stores.
func (m *Manager) SetTags(ctx context.Context, project *domain.Project, key string, tags []domain.CacheTag, principal domain.Principal) error {
	nk, err := domain.NormalizeKey(key, projectScope(project))
	if err != nil {
		return err
	}
	caps := domain.TagCapabilities{System: principal.System}
	if err := domain.ValidateTags(tags, caps); err != nil {
		return err
	}
	if err := m.authorize(project, policy.OpWrite, principal); err != nil {
		return err
	}
	release, err := m.locks.Acquire(ctx, nk.String(), m.cfg.LockWait)
	if err != nil {
		return err
	}
	defer release()
	info, err := m.blobs.Stat(ctx, nk.String())
	if err != nil {
		return err
	}
	if info == nil {
		return domerrors.ErrObjectNotFound
	}
	return m.tags.SetTags(ctx, nk.String(), tags, caps)
}

// MatchByTag queries the project-local tag index. Read-authorized;
// metadata-only.
func (m *Manager) MatchByTag(ctx context.Context, project *domain.Project, principal domain.Principal, pred func(domain.CacheTag) bool) (ports.ObjectIterator, error) {
	if err := m.authorize(project, policy.OpRead, principal); err != nil {
		return nil, err
	}
	return m.tags.MatchByTag(ctx, project.Scope(), pred)
}

func (m *Manager) authorize(project *domain.Project, op policy.Operation, principal domain.Principal) error {
	err := m.policy.Authorize(project, op, principal)
	if err == nil {
		return nil
	}
	return m.policy.Conceal(project, principal, err)
}

func (m *Manager) statWithFallback(ctx context.Context, project *domain.Project, nk domain.NormalizedKey) (*ports.BlobInfo, error) {
	var info *ports.BlobInfo
	err := m.withRetry(ctx, func() error {
		var serr error
		info, serr = m.blobs.Stat(ctx, nk.String())
		return serr
	})
	if err != nil {
		return nil, err
	}
	if info != nil {
		return info, nil
	}
	if parent := m.policy.ReadFallbackScope(project); parent != "" {
		if pk, perr := domain.NormalizeKey(nk.Key(), parent); perr == nil {
			if err := m.withRetry(ctx, func() error {
				var serr error
				info, serr = m.blobs.Stat(ctx, pk.String())
				return serr
			}); err != nil {
				return nil, err
			}
			if info != nil {
				return info, nil
			}
		}
	}
	return nil, domerrors.ErrObjectNotFound
}

func (m *Manager) getBlob(ctx context.Context, ref string, rng *ports.ByteRange) (io.ReadCloser, *ports.BlobInfo, error) {
	var (
		body io.ReadCloser
		info *ports.BlobInfo
	)
	err := m.withRetry(ctx, func() error {
		var gerr error
		body, info, gerr = m.blobs.Get(ctx, ref, rng)
		return gerr
	})
	if err != nil {
		return nil, nil, err
	}
	return body, info, nil
}

// withRetry runs op, retrying only transient storage failures with doubling
// backoff up to the attempt bound, then surfaces ErrStorageUnavailable.
// Validation, authorization, miss, and range errors pass through untouched.
func (m *Manager) withRetry(ctx context.Context, op func() error) error {
	backoff := m.cfg.RetryBackoff
	var err error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, domerrors.ErrStorageUnavailable) {
			return err
		}
		if attempt == m.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func projectScope(p *domain.Project) string {
	if p == nil {
		return ""
	}
	return p.Scope()
}
