package project

import (
	"context"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// RotateProjectKeyResult returns the new plain API key (only time it is visible).
type RotateProjectKeyResult struct {
	APIKey string
}

// RotateProjectKey generates a new API key for the project and updates storage.
type RotateProjectKey struct {
	projects ports.ProjectRepository
	hasher   ports.APIKeyHasher
}

// NewRotateProjectKey builds the use case.
func NewRotateProjectKey(projects ports.ProjectRepository, hasher ports.APIKeyHasher) *RotateProjectKey {
	return &RotateProjectKey{projects: projects, hasher: hasher}
}

// Execute rotates the key and returns the new plain key.
func (uc *RotateProjectKey) Execute(ctx context.Context, id domain.ProjectID) (*RotateProjectKeyResult, error) {
	p, err := uc.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domerrors.ErrScopeNotFound
	}
	plainKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	hash, err := uc.hasher.Hash(plainKey)
	if err != nil {
		return nil, err
	}
	if err := uc.projects.UpdateAPIKey(ctx, id, sha256Hex(plainKey), hash); err != nil {
		return nil, err
	}
	return &RotateProjectKeyResult{APIKey: plainKey}, nil
}
