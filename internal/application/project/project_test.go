package project

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
	"github.com/buildless/buildcached/internal/infrastructure/persistence/memory"
	"github.com/buildless/buildcached/internal/infrastructure/queue"
	"github.com/buildless/buildcached/internal/infrastructure/security"
)

func newCreate(t *testing.T) (*CreateProject, *memory.ProjectRepository) {
	t.Helper()
	repo := memory.NewProjectRepository()
	return NewCreateProject(repo, security.NewAPIKeyHasher(security.DefaultAPIKeyParams())), repo
}

func TestCreateProjectDefaults(t *testing.T) {
	create, _ := newCreate(t)
	owner := domain.TenantScope(1, uuid.New(), "acme")

	res, err := create.Execute(context.Background(), Draft{Owner: owner, Name: "widgets"})
	require.NoError(t, err)

	p := res.Project
	assert.Equal(t, int64(0), p.Key.Version)
	assert.Equal(t, domain.VisibilityInternal, p.Visibility)
	assert.Equal(t, domain.IsolationOpen, p.Isolation)
	assert.Equal(t, domain.StateActive, p.State)
	assert.Equal(t, "widgets", p.DisplayName)
	assert.True(t, strings.HasPrefix(res.APIKey, "bcx_"))
	assert.NotContains(t, p.APIKeyDigest, res.APIKey, "plaintext key is never stored")
}

func TestCreateProjectRejectsDuplicateName(t *testing.T) {
	create, _ := newCreate(t)
	owner := domain.TenantScope(1, uuid.New(), "acme")

	_, err := create.Execute(context.Background(), Draft{Owner: owner, Name: "widgets"})
	require.NoError(t, err)
	_, err = create.Execute(context.Background(), Draft{Owner: owner, Name: "widgets"})
	assert.ErrorIs(t, err, domerrors.ErrProjectExists)

	// The same name under a different owner scope is fine.
	_, err = create.Execute(context.Background(), Draft{Owner: domain.UserScope("u1"), Name: "widgets"})
	assert.NoError(t, err)
}

func TestCreateProjectValidatesDraft(t *testing.T) {
	create, _ := newCreate(t)
	owner := domain.TenantScope(1, uuid.New(), "acme")

	cases := []Draft{
		{Owner: domain.AccountScope{}, Name: "ok"},
		{Owner: owner, Name: ""},
		{Owner: owner, Name: "Widgets"},
		{Owner: owner, Name: "1widgets"},
		{Owner: owner, Name: "widgets", Visibility: domain.Visibility("secret")},
	}
	for _, draft := range cases {
		_, err := create.Execute(context.Background(), draft)
		assert.ErrorIs(t, err, domerrors.ErrInvalidDraft, "draft %+v", draft)
	}
}

func TestUpdateSettingsOptimisticConcurrency(t *testing.T) {
	create, repo := newCreate(t)
	owner := domain.TenantScope(1, uuid.New(), "acme")
	res, err := create.Execute(context.Background(), Draft{Owner: owner, Name: "widgets"})
	require.NoError(t, err)
	id := res.Project.Key.ID

	update := NewUpdateSettings(repo)
	private := domain.VisibilityPrivate

	// Walk the version to 4 with successive updates.
	for v := int64(0); v < 4; v++ {
		_, err := update.Execute(context.Background(), UpdateSettingsInput{
			ProjectID: id, ExpectedVersion: v,
			Delta: domain.SettingsDelta{Visibility: &private},
		})
		require.NoError(t, err)
	}

	// Version 3 against current version 4 conflicts, carrying the current
	// version for the retry.
	_, err = update.Execute(context.Background(), UpdateSettingsInput{
		ProjectID: id, ExpectedVersion: 3,
		Delta: domain.SettingsDelta{Visibility: &private},
	})
	require.ErrorIs(t, err, domerrors.ErrStaleVersion)
	var stale *domerrors.StaleVersionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, int64(4), stale.CurrentVersion)

	// Retried with the fresh version it succeeds and lands on 5.
	updated, err := update.Execute(context.Background(), UpdateSettingsInput{
		ProjectID: id, ExpectedVersion: 4,
		Delta: domain.SettingsDelta{Visibility: &private},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.Key.Version)
}

func TestUpdateSettingsRejectsEmptyDelta(t *testing.T) {
	_, repo := newCreate(t)
	update := NewUpdateSettings(repo)
	_, err := update.Execute(context.Background(), UpdateSettingsInput{
		ProjectID: domain.NewProjectID(uuid.New()),
	})
	assert.ErrorIs(t, err, domerrors.ErrInvalidDraft)
}

func TestLifecycleMonotonic(t *testing.T) {
	create, repo := newCreate(t)
	owner := domain.TenantScope(1, uuid.New(), "acme")
	res, err := create.Execute(context.Background(), Draft{Owner: owner, Name: "widgets"})
	require.NoError(t, err)
	id := res.Project.Key.ID

	archive := NewArchive(repo)
	del := NewScheduleDelete(repo, queue.NewNoopEnqueuer())

	// Delete before archive is rejected.
	require.Error(t, del.Execute(context.Background(), id))

	p, err := archive.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateArchived, p.State)

	// Archiving twice is rejected.
	_, err = archive.Execute(context.Background(), id)
	require.Error(t, err)

	require.NoError(t, del.Execute(context.Background(), id))
	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateTombstoned, got.State)

	// Tombstoned is terminal.
	_, err = archive.Execute(context.Background(), id)
	require.Error(t, err)
}

func TestRotateKeyInvalidatesOldKey(t *testing.T) {
	create, repo := newCreate(t)
	owner := domain.TenantScope(1, uuid.New(), "acme")
	res, err := create.Execute(context.Background(), Draft{Owner: owner, Name: "widgets"})
	require.NoError(t, err)

	rotate := NewRotateProjectKey(repo, security.NewAPIKeyHasher(security.DefaultAPIKeyParams()))
	rotated, err := rotate.Execute(context.Background(), res.Project.Key.ID)
	require.NoError(t, err)
	assert.NotEqual(t, res.APIKey, rotated.APIKey)

	old, err := repo.GetByAPIKeyDigest(context.Background(), sha256Hex(res.APIKey))
	require.NoError(t, err)
	assert.Nil(t, old, "old key digest no longer resolves")

	fresh, err := repo.GetByAPIKeyDigest(context.Background(), sha256Hex(rotated.APIKey))
	require.NoError(t, err)
	require.NotNil(t, fresh)
}
