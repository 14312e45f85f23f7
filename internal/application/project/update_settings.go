package project

import (
	"context"
	"fmt"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// UpdateSettingsInput is a settings delta applied under the version the
// caller last observed.
type UpdateSettingsInput struct {
	ProjectID       domain.ProjectID
	ExpectedVersion int64
	Delta           domain.SettingsDelta
}

// UpdateSettings applies a delta with optimistic concurrency: a stale
// version yields *domerrors.StaleVersionError (carrying the current
// version) so the caller can re-fetch and retry; a success increments the
// version.
type UpdateSettings struct {
	projects ports.ProjectRepository
}

// NewUpdateSettings builds the use case.
func NewUpdateSettings(projects ports.ProjectRepository) *UpdateSettings {
	return &UpdateSettings{projects: projects}
}

// Execute applies the delta and returns the updated project.
func (uc *UpdateSettings) Execute(ctx context.Context, input UpdateSettingsInput) (*domain.Project, error) {
	if input.Delta.Empty() {
		return nil, fmt.Errorf("%w: empty settings delta", domerrors.ErrInvalidDraft)
	}
	if v := input.Delta.Visibility; v != nil && !v.Valid() {
		return nil, fmt.Errorf("%w: visibility %q", domerrors.ErrInvalidDraft, *v)
	}
	return uc.projects.UpdateSettings(ctx, input.ProjectID, input.ExpectedVersion, input.Delta)
}
