package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries wraps the project table's SQL. Column order matches projectCols.
type Queries struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const projectCols = `id, name, display_name, owner_scope, owner_kind, owner_uid,
	tenant_id, tenant_uuid, tenant_name, visibility, isolation, state, version,
	api_key_digest, api_key_hash, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(
		&p.ID, &p.Name, &p.DisplayName, &p.OwnerScope, &p.OwnerKind, &p.OwnerUid,
		&p.TenantID, &p.TenantUuid, &p.TenantName, &p.Visibility, &p.Isolation,
		&p.State, &p.Version, &p.ApiKeyDigest, &p.ApiKeyHash, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

type CreateProjectParams struct {
	ID           uuid.UUID
	Name         string
	DisplayName  string
	OwnerScope   string
	OwnerKind    string
	OwnerUid     string
	TenantID     pgtype.Int8
	TenantUuid   pgtype.UUID
	TenantName   string
	Visibility   string
	Isolation    string
	State        string
	ApiKeyDigest string
	ApiKeyHash   string
}

func (q *Queries) CreateProject(ctx context.Context, arg CreateProjectParams) (Project, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO projects (
			id, name, display_name, owner_scope, owner_kind, owner_uid,
			tenant_id, tenant_uuid, tenant_name, visibility, isolation, state,
			version, api_key_digest, api_key_hash, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,$13,$14,NOW(),NOW())
		RETURNING `+projectCols,
		arg.ID, arg.Name, arg.DisplayName, arg.OwnerScope, arg.OwnerKind, arg.OwnerUid,
		arg.TenantID, arg.TenantUuid, arg.TenantName, arg.Visibility, arg.Isolation,
		arg.State, arg.ApiKeyDigest, arg.ApiKeyHash,
	)
	return scanProject(row)
}

func (q *Queries) GetProjectByID(ctx context.Context, id uuid.UUID) (Project, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (q *Queries) GetProjectByScopeAndName(ctx context.Context, ownerScope, name string) (Project, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT `+projectCols+` FROM projects WHERE owner_scope = $1 AND name = $2`,
		ownerScope, name)
	return scanProject(row)
}

func (q *Queries) GetProjectByAPIKeyDigest(ctx context.Context, digest string) (Project, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT `+projectCols+` FROM projects WHERE api_key_digest = $1`, digest)
	return scanProject(row)
}

func (q *Queries) ListProjectsByScope(ctx context.Context, ownerScope string) ([]Project, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT `+projectCols+` FROM projects WHERE owner_scope = $1 ORDER BY name`, ownerScope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type UpdateProjectSettingsParams struct {
	ID          uuid.UUID
	Version     int64 // expected version; the row is untouched on mismatch
	DisplayName pgtype.Text
	Visibility  pgtype.Text
	Isolation   pgtype.Text
}

// UpdateProjectSettings is the optimistic-concurrency write: it matches the
// expected version in the predicate and increments atomically, so a stale
// caller updates zero rows.
func (q *Queries) UpdateProjectSettings(ctx context.Context, arg UpdateProjectSettingsParams) (Project, error) {
	row := q.pool.QueryRow(ctx, `
		UPDATE projects SET
			display_name = COALESCE($3, display_name),
			visibility   = COALESCE($4, visibility),
			isolation    = COALESCE($5, isolation),
			version      = version + 1,
			updated_at   = NOW()
		WHERE id = $1 AND version = $2
		RETURNING `+projectCols,
		arg.ID, arg.Version, arg.DisplayName, arg.Visibility, arg.Isolation,
	)
	return scanProject(row)
}

func (q *Queries) GetProjectVersion(ctx context.Context, id uuid.UUID) (int64, error) {
	var v int64
	err := q.pool.QueryRow(ctx, `SELECT version FROM projects WHERE id = $1`, id).Scan(&v)
	return v, err
}

func (q *Queries) SetProjectState(ctx context.Context, id uuid.UUID, state string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE projects SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	return err
}

func (q *Queries) UpdateProjectAPIKey(ctx context.Context, id uuid.UUID, digest, hash string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE projects SET api_key_digest = $2, api_key_hash = $3, updated_at = NOW()
		WHERE id = $1`, id, digest, hash)
	return err
}

func (q *Queries) DeleteProject(ctx context.Context, id uuid.UUID) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}
