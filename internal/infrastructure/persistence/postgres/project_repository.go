package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
	"github.com/buildless/buildcached/internal/infrastructure/persistence/db"
)

const uniqueViolation = "23505"

// ProjectRepository is the pgx-backed implementation of
// ports.ProjectRepository.
type ProjectRepository struct {
	queries *db.Queries
}

func NewProjectRepository(queries *db.Queries) *ProjectRepository {
	return &ProjectRepository{queries: queries}
}

func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	params := db.CreateProjectParams{
		ID:           project.Key.ID.UUID,
		Name:         project.Key.Name,
		DisplayName:  project.DisplayName,
		OwnerScope:   project.Owner.String(),
		Visibility:   string(project.Visibility),
		Isolation:    string(project.Isolation),
		State:        string(project.State),
		ApiKeyDigest: project.APIKeyDigest,
		ApiKeyHash:   project.APIKeyHash,
	}
	switch project.Owner.Kind() {
	case domain.ScopeUser:
		user, _ := project.Owner.User()
		params.OwnerKind = "user"
		params.OwnerUid = user.UID
	case domain.ScopeTenant:
		tenant, _ := project.Owner.Tenant()
		params.OwnerKind = "tenant"
		params.TenantID = pgtype.Int8{Int64: tenant.ID, Valid: true}
		params.TenantUuid = pgtype.UUID{Bytes: tenant.UUID, Valid: true}
		params.TenantName = tenant.Name
	}

	row, err := r.queries.CreateProject(ctx, params)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domerrors.ErrProjectExists
		}
		return err
	}
	*project = *rowToDomain(row)
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	row, err := r.queries.GetProjectByID(ctx, id.UUID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToDomain(row), nil
}

func (r *ProjectRepository) GetByName(ctx context.Context, owner domain.AccountScope, name string) (*domain.Project, error) {
	row, err := r.queries.GetProjectByScopeAndName(ctx, owner.String(), name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToDomain(row), nil
}

func (r *ProjectRepository) GetByAPIKeyDigest(ctx context.Context, digest string) (*domain.Project, error) {
	row, err := r.queries.GetProjectByAPIKeyDigest(ctx, digest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToDomain(row), nil
}

func (r *ProjectRepository) List(ctx context.Context, owner domain.AccountScope) ([]*domain.Project, error) {
	rows, err := r.queries.ListProjectsByScope(ctx, owner.String())
	if err != nil {
		return nil, err
	}
	projects := make([]*domain.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, rowToDomain(row))
	}
	return projects, nil
}

func (r *ProjectRepository) UpdateSettings(ctx context.Context, id domain.ProjectID, expectedVersion int64, delta domain.SettingsDelta) (*domain.Project, error) {
	params := db.UpdateProjectSettingsParams{
		ID:      id.UUID,
		Version: expectedVersion,
	}
	if delta.DisplayName != nil {
		params.DisplayName = pgtype.Text{String: *delta.DisplayName, Valid: true}
	}
	if delta.Visibility != nil {
		params.Visibility = pgtype.Text{String: string(*delta.Visibility), Valid: true}
	}
	if delta.Isolation != nil {
		params.Isolation = pgtype.Text{String: string(*delta.Isolation), Valid: true}
	}

	row, err := r.queries.UpdateProjectSettings(ctx, params)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the project is gone or the version predicate failed.
		// Distinguish by re-reading the current version.
		current, verr := r.queries.GetProjectVersion(ctx, id.UUID)
		if errors.Is(verr, pgx.ErrNoRows) {
			return nil, nil
		}
		if verr != nil {
			return nil, verr
		}
		return nil, &domerrors.StaleVersionError{CurrentVersion: current}
	}
	if err != nil {
		return nil, err
	}
	return rowToDomain(row), nil
}

func (r *ProjectRepository) SetState(ctx context.Context, id domain.ProjectID, state domain.LifecycleState) error {
	return r.queries.SetProjectState(ctx, id.UUID, string(state))
}

func (r *ProjectRepository) UpdateAPIKey(ctx context.Context, id domain.ProjectID, digest, hash string) error {
	return r.queries.UpdateProjectAPIKey(ctx, id.UUID, digest, hash)
}

func (r *ProjectRepository) Purge(ctx context.Context, id domain.ProjectID) error {
	return r.queries.DeleteProject(ctx, id.UUID)
}

func rowToDomain(row db.Project) *domain.Project {
	var owner domain.AccountScope
	switch row.OwnerKind {
	case "tenant":
		var tenantUUID uuid.UUID
		if row.TenantUuid.Valid {
			tenantUUID = row.TenantUuid.Bytes
		}
		owner = domain.TenantScope(row.TenantID.Int64, tenantUUID, row.TenantName)
	default:
		owner = domain.UserScope(row.OwnerUid)
	}
	return &domain.Project{
		Key: domain.ProjectKey{
			ID:      domain.NewProjectID(row.ID),
			Name:    row.Name,
			Version: row.Version,
		},
		Owner:        owner,
		DisplayName:  row.DisplayName,
		Visibility:   domain.Visibility(row.Visibility),
		Isolation:    domain.IsolationMode(row.Isolation),
		State:        domain.LifecycleState(row.State),
		APIKeyDigest: row.ApiKeyDigest,
		APIKeyHash:   row.ApiKeyHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

var _ ports.ProjectRepository = (*ProjectRepository)(nil)
