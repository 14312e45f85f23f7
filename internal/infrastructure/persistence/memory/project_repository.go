package memory

import (
	"context"
	"sync"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// ProjectRepository is an in-memory ports.ProjectRepository for tests and
// single-instance dev runs.
type ProjectRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.Project // keyed by project ID
}

// NewProjectRepository returns an empty repository.
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{data: make(map[string]*domain.Project)}
}

func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.Owner.Equal(p.Owner) && existing.Key.Name == p.Key.Name {
			return domerrors.ErrProjectExists
		}
	}
	cp := *p
	r.data[p.Key.ID.String()] = &cp
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.data[id.String()]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *ProjectRepository) GetByName(ctx context.Context, owner domain.AccountScope, name string) (*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.data {
		if p.Owner.Equal(owner) && p.Key.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *ProjectRepository) GetByAPIKeyDigest(ctx context.Context, digest string) (*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.data {
		if p.APIKeyDigest == digest {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *ProjectRepository) List(ctx context.Context, owner domain.AccountScope) ([]*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Project
	for _, p := range r.data {
		if p.Owner.Equal(owner) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ProjectRepository) UpdateSettings(ctx context.Context, id domain.ProjectID, expectedVersion int64, delta domain.SettingsDelta) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id.String()]
	if !ok {
		return nil, domerrors.ErrScopeNotFound
	}
	if p.Key.Version != expectedVersion {
		return nil, &domerrors.StaleVersionError{CurrentVersion: p.Key.Version}
	}
	if delta.DisplayName != nil {
		p.DisplayName = *delta.DisplayName
	}
	if delta.Visibility != nil {
		p.Visibility = *delta.Visibility
	}
	if delta.Isolation != nil {
		p.Isolation = *delta.Isolation
	}
	p.Key.Version++
	cp := *p
	return &cp, nil
}

func (r *ProjectRepository) SetState(ctx context.Context, id domain.ProjectID, state domain.LifecycleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id.String()]
	if !ok {
		return domerrors.ErrScopeNotFound
	}
	p.State = state
	return nil
}

func (r *ProjectRepository) UpdateAPIKey(ctx context.Context, id domain.ProjectID, digest, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id.String()]
	if !ok {
		return domerrors.ErrScopeNotFound
	}
	p.APIKeyDigest = digest
	p.APIKeyHash = hash
	return nil
}

func (r *ProjectRepository) Purge(ctx context.Context, id domain.ProjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id.String())
	return nil
}

var _ ports.ProjectRepository = (*ProjectRepository)(nil)
