package ports

import (
	"context"

	"github.com/buildless/buildcached/internal/domain"
)

// ProjectRepository defines persistence for projects. Lookups return
// (nil, nil) when no row matches.
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id domain.ProjectID) (*domain.Project, error)
	GetByName(ctx context.Context, owner domain.AccountScope, name string) (*domain.Project, error)
	GetByAPIKeyDigest(ctx context.Context, digest string) (*domain.Project, error)
	List(ctx context.Context, owner domain.AccountScope) ([]*domain.Project, error)
	// UpdateSettings applies delta iff the stored version equals
	// expectedVersion, incrementing it. A stale version yields
	// *domerrors.StaleVersionError carrying the current version.
	UpdateSettings(ctx context.Context, id domain.ProjectID, expectedVersion int64, delta domain.SettingsDelta) (*domain.Project, error)
	// SetState performs a lifecycle transition. Non-monotonic transitions
	// are rejected by the caller before reaching the repository.
	SetState(ctx context.Context, id domain.ProjectID, state domain.LifecycleState) error
	UpdateAPIKey(ctx context.Context, id domain.ProjectID, digest, hash string) error
	// Purge hard-deletes a tombstoned project row. Called only by the
	// background worker, never synchronously from a request.
	Purge(ctx context.Context, id domain.ProjectID) error
}
