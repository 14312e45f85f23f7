package project

import (
	"context"
	"fmt"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// Archive soft-disables a project. Archiving is the only exit from active
// and a prerequisite for deletion; archived projects reject all cache
// operations for their key namespace.
type Archive struct {
	projects ports.ProjectRepository
}

// NewArchive builds the use case.
func NewArchive(projects ports.ProjectRepository) *Archive {
	return &Archive{projects: projects}
}

// Execute transitions active -> archived.
func (uc *Archive) Execute(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	p, err := uc.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domerrors.ErrScopeNotFound
	}
	if !p.State.CanTransition(domain.StateArchived) {
		return nil, fmt.Errorf("%w: cannot archive a %s project", domerrors.ErrProjectInactive, p.State)
	}
	if err := uc.projects.SetState(ctx, id, domain.StateArchived); err != nil {
		return nil, err
	}
	p.State = domain.StateArchived
	return p, nil
}

// ScheduleDelete tombstones an archived project and schedules the purge of
// its blobs, tags, and row. Deletion is never synchronous: the request only
// records the tombstone and enqueues the work.
type ScheduleDelete struct {
	projects ports.ProjectRepository
	queue    ports.TaskEnqueuer
}

// NewScheduleDelete builds the use case.
func NewScheduleDelete(projects ports.ProjectRepository, queue ports.TaskEnqueuer) *ScheduleDelete {
	return &ScheduleDelete{projects: projects, queue: queue}
}

// Execute transitions archived -> tombstoned and enqueues the purge.
func (uc *ScheduleDelete) Execute(ctx context.Context, id domain.ProjectID) error {
	p, err := uc.projects.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return domerrors.ErrScopeNotFound
	}
	if !p.State.CanTransition(domain.StateTombstoned) {
		return fmt.Errorf("%w: cannot delete a %s project (archive first)", domerrors.ErrProjectInactive, p.State)
	}
	if err := uc.projects.SetState(ctx, id, domain.StateTombstoned); err != nil {
		return err
	}
	return uc.queue.EnqueueProjectPurge(ctx, id, p.Scope())
}
