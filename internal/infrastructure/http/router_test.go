package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildless/buildcached/internal/application/cache"
	"github.com/buildless/buildcached/internal/application/policy"
	"github.com/buildless/buildcached/internal/application/project"
	infraauth "github.com/buildless/buildcached/internal/infrastructure/auth"
	"github.com/buildless/buildcached/internal/infrastructure/blob"
	"github.com/buildless/buildcached/internal/infrastructure/http/handlers"
	"github.com/buildless/buildcached/internal/infrastructure/http/middleware"
	"github.com/buildless/buildcached/internal/infrastructure/locks"
	"github.com/buildless/buildcached/internal/infrastructure/persistence/memory"
	"github.com/buildless/buildcached/internal/infrastructure/queue"
	"github.com/buildless/buildcached/internal/infrastructure/security"
	"github.com/buildless/buildcached/internal/infrastructure/tagstore"
)

const (
	testJWTSecret   = "router-test-secret"
	testAdminSecret = "router-test-admin"
)

type testServer struct {
	router http.Handler
	issuer *infraauth.TokenIssuer
}

// lightweight argon2 params so tests stay fast
func testHasherParams() security.APIKeyParams {
	return security.APIKeyParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()

	projects := memory.NewProjectRepository()
	blobs := blob.NewMemoryStore()
	tags := tagstore.NewMemoryStore()
	hasher := security.NewAPIKeyHasher(testHasherParams())
	issuer := infraauth.NewTokenIssuer([]byte(testJWTSecret), "buildcached", "buildcached")
	enqueuer := queue.NewNoopEnqueuer()

	manager := cache.NewManager(blobs, tags, policy.NewEngine(), locks.NewMemoryLocker(), enqueuer, log, cache.Config{})

	cacheHandler := handlers.NewCacheHandler(manager, projects)
	projectsHandler := handlers.NewProjectsHandler(
		projects,
		project.NewCreateProject(projects, hasher),
		project.NewUpdateSettings(projects),
		project.NewArchive(projects),
		project.NewScheduleDelete(projects, enqueuer),
		project.NewRotateProjectKey(projects, hasher),
	)

	router := NewRouter(RouterConfig{
		CacheHandler:    cacheHandler,
		ProjectsHandler: projectsHandler,
		Principal:       middleware.NewPrincipalResolver(issuer, projects, hasher),
		RequireAdmin:    middleware.RequireAdminSecret(testAdminSecret),
		Log:             log,
	})
	return &testServer{router: router, issuer: issuer}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) token(t *testing.T, scope, userID string) string {
	t.Helper()
	tok, err := s.issuer.IssueAccessToken(scope, userID, 3600)
	require.NoError(t, err)
	return tok
}

// createProject provisions a project through the admin surface and returns
// its id and plain API key.
func (s *testServer) createProject(t *testing.T, ownerScope, name, visibility string) (id, apiKey string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"owner_scope": ownerScope,
		"name":        name,
		"visibility":  visibility,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", testAdminSecret)
	rec := s.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Project handlers.ProjectResponse `json:"project"`
		APIKey  string                   `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.APIKey)
	return out.Project.ID, out.APIKey
}

func TestAdminGateOnProjectCreation(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"owner_scope":"user:alice","name":"webapp"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/", body)
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCacheRoundTripWithAPIKey(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "user:alice", "webapp", "")

	payload := []byte("object-store-payload")
	put := httptest.NewRequest(http.MethodPut, "/v1/cache/build-abc123", bytes.NewReader(payload))
	put.Header.Set("X-API-Key", apiKey)
	rec := s.do(put)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored handlers.StoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, "build-abc123", stored.Key)
	assert.Equal(t, int64(len(payload)), stored.Size)
	assert.NotEmpty(t, stored.Stamp)

	head := httptest.NewRequest(http.MethodHead, "/v1/cache/build-abc123", nil)
	head.Header.Set("X-API-Key", apiKey)
	rec = s.do(head)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fmt.Sprint(len(payload)), rec.Header().Get("Content-Length"))

	get := httptest.NewRequest(http.MethodGet, "/v1/cache/build-abc123", nil)
	get.Header.Set("X-API-Key", apiKey)
	rec = s.do(get)
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ := io.ReadAll(rec.Body)
	assert.Equal(t, payload, got)

	del := httptest.NewRequest(http.MethodDelete, "/v1/cache/build-abc123", nil)
	del.Header.Set("X-API-Key", apiKey)
	rec = s.do(del)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestProbeMissAnswers404(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "user:alice", "webapp", "")

	head := httptest.NewRequest(http.MethodHead, "/v1/cache/never-stored", nil)
	head.Header.Set("X-API-Key", apiKey)
	rec := s.do(head)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRangeFetch(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "user:alice", "webapp", "")

	put := httptest.NewRequest(http.MethodPut, "/v1/cache/ranged", strings.NewReader("0123456789"))
	put.Header.Set("X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, s.do(put).Code)

	get := httptest.NewRequest(http.MethodGet, "/v1/cache/ranged", nil)
	get.Header.Set("X-API-Key", apiKey)
	get.Header.Set("Range", "bytes=2-5")
	rec := s.do(get)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	got, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "2345", string(got))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))

	get = httptest.NewRequest(http.MethodGet, "/v1/cache/ranged", nil)
	get.Header.Set("X-API-Key", apiKey)
	get.Header.Set("Range", "bytes=50-60")
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, s.do(get).Code)
}

func TestInternalVisibilityStatuses(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "user:alice", "webapp", "")

	put := httptest.NewRequest(http.MethodPut, "/v1/cache/shared", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, s.do(put).Code)

	// Anonymous read of an INTERNAL project: missing credentials.
	get := httptest.NewRequest(http.MethodGet, "/v1/cache/shared", nil)
	get.Header.Set(handlers.HeaderCacheProject, "user:alice/webapp")
	assert.Equal(t, http.StatusUnauthorized, s.do(get).Code)

	// Authenticated but out of scope: denied, not concealed.
	get = httptest.NewRequest(http.MethodGet, "/v1/cache/shared", nil)
	get.Header.Set(handlers.HeaderCacheProject, "user:alice/webapp")
	get.Header.Set("Authorization", "Bearer "+s.token(t, "user:mallory", "mallory"))
	assert.Equal(t, http.StatusForbidden, s.do(get).Code)

	// In scope via JWT: allowed.
	get = httptest.NewRequest(http.MethodGet, "/v1/cache/shared", nil)
	get.Header.Set(handlers.HeaderCacheProject, "user:alice/webapp")
	get.Header.Set("Authorization", "Bearer "+s.token(t, "user:alice", "alice"))
	assert.Equal(t, http.StatusOK, s.do(get).Code)
}

func TestPrivateProjectIsConcealed(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "user:alice", "vault", "private")

	put := httptest.NewRequest(http.MethodPut, "/v1/cache/secret", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, s.do(put).Code)

	// Out-of-scope caller sees the same 404 as a genuine miss.
	get := httptest.NewRequest(http.MethodGet, "/v1/cache/secret", nil)
	get.Header.Set(handlers.HeaderCacheProject, "user:alice/vault")
	get.Header.Set("Authorization", "Bearer "+s.token(t, "user:mallory", "mallory"))
	assert.Equal(t, http.StatusNotFound, s.do(get).Code)

	// Unknown project answers identically.
	get = httptest.NewRequest(http.MethodGet, "/v1/cache/secret", nil)
	get.Header.Set(handlers.HeaderCacheProject, "user:alice/no-such-project")
	get.Header.Set("Authorization", "Bearer "+s.token(t, "user:mallory", "mallory"))
	assert.Equal(t, http.StatusNotFound, s.do(get).Code)
}

func TestPublicProjectAnonymousAccess(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "tenant:oss", "mirror", "public")

	put := httptest.NewRequest(http.MethodPut, "/v1/cache/artifact", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, s.do(put).Code)

	get := httptest.NewRequest(http.MethodGet, "/v1/cache/artifact", nil)
	get.Header.Set(handlers.HeaderCacheProject, "tenant:oss/mirror")
	assert.Equal(t, http.StatusOK, s.do(get).Code)

	// Anonymous writes stay forbidden even on PUBLIC.
	anonPut := httptest.NewRequest(http.MethodPut, "/v1/cache/artifact", strings.NewReader("new"))
	anonPut.Header.Set(handlers.HeaderCacheProject, "tenant:oss/mirror")
	assert.Equal(t, http.StatusUnauthorized, s.do(anonPut).Code)
}

func TestStoreRequestValidation(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "user:alice", "webapp", "")

	// Key too long -> 414.
	longKey := strings.Repeat("k", 65)
	put := httptest.NewRequest(http.MethodPut, "/v1/cache/"+longKey, strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	assert.Equal(t, http.StatusRequestURITooLong, s.do(put).Code)

	// Missing Content-Length -> 411.
	put = httptest.NewRequest(http.MethodPut, "/v1/cache/nolen", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	put.ContentLength = -1
	assert.Equal(t, http.StatusLengthRequired, s.do(put).Code)

	// Wrong content type -> 415.
	put = httptest.NewRequest(http.MethodPut, "/v1/cache/wrongct", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	put.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, s.do(put).Code)
}

func TestTagHeadersAndIndex(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := s.createProject(t, "user:alice", "webapp", "")

	put := httptest.NewRequest(http.MethodPut, "/v1/cache/tagged", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	put.Header.Add(handlers.HeaderCacheTag, "build-artifact")
	put.Header.Add(handlers.HeaderCacheTag, "ci.branch=main")
	require.Equal(t, http.StatusOK, s.do(put).Code)

	get := httptest.NewRequest(http.MethodGet, "/v1/cache/tagged/tags", nil)
	get.Header.Set("X-API-Key", apiKey)
	rec := s.do(get)
	require.Equal(t, http.StatusOK, rec.Code)
	var tagsOut struct {
		Tags []handlers.TagResponse `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tagsOut))
	require.Len(t, tagsOut.Tags, 2)

	match := httptest.NewRequest(http.MethodGet, "/v1/cache-index/ci.branch", nil)
	match.Header.Set("X-API-Key", apiKey)
	rec = s.do(match)
	require.Equal(t, http.StatusOK, rec.Code)
	var matchOut struct {
		Objects []string `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matchOut))
	require.Len(t, matchOut.Objects, 1)
	assert.Contains(t, matchOut.Objects[0], "tagged")

	// Reserved prefix from a non-system caller -> 422.
	put = httptest.NewRequest(http.MethodPut, "/v1/cache/reserved", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	put.Header.Add(handlers.HeaderCacheTag, "system.internal=1")
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(put).Code)
}

func TestProjectSettingsOptimisticConcurrency(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.createProject(t, "user:alice", "webapp", "")
	token := s.token(t, "user:alice", "alice")

	patch := func(version int64, display string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]interface{}{
			"version":      version,
			"display_name": display,
		})
		req := httptest.NewRequest(http.MethodPatch, "/v1/projects/"+id+"/settings", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return s.do(req)
	}

	rec := patch(0, "First")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated handlers.ProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, int64(1), updated.Version)

	// Replaying the old version conflicts and reports the current one.
	rec = patch(0, "Stale")
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict struct {
		Code           string `json:"code"`
		CurrentVersion int64  `json:"current_version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "stale_version", conflict.Code)
	assert.Equal(t, int64(1), conflict.CurrentVersion)

	// Retrying at the reported version succeeds.
	rec = patch(1, "Second")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id, apiKey := s.createProject(t, "user:alice", "webapp", "")
	token := s.token(t, "user:alice", "alice")

	put := httptest.NewRequest(http.MethodPut, "/v1/cache/obj", strings.NewReader("data"))
	put.Header.Set("X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, s.do(put).Code)

	// Deleting an active project is rejected; it must be archived first.
	del := httptest.NewRequest(http.MethodDelete, "/v1/projects/"+id, nil)
	del.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, s.do(del).Code)

	arch := httptest.NewRequest(http.MethodPost, "/v1/projects/"+id+"/archive", nil)
	arch.Header.Set("Authorization", "Bearer "+token)
	rec := s.do(arch)
	require.Equal(t, http.StatusOK, rec.Code)

	// Archived projects reject cache traffic.
	get := httptest.NewRequest(http.MethodGet, "/v1/cache/obj", nil)
	get.Header.Set("X-API-Key", apiKey)
	assert.Equal(t, http.StatusForbidden, s.do(get).Code)

	del = httptest.NewRequest(http.MethodDelete, "/v1/projects/"+id, nil)
	del.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusAccepted, s.do(del).Code)

	// Archiving again after tombstoning stays rejected: lifecycle is monotonic.
	arch = httptest.NewRequest(http.MethodPost, "/v1/projects/"+id+"/archive", nil)
	arch.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, s.do(arch).Code)
}

func TestRotateKeyInvalidatesOldKey(t *testing.T) {
	s := newTestServer(t)
	id, oldKey := s.createProject(t, "user:alice", "webapp", "")
	token := s.token(t, "user:alice", "alice")

	rot := httptest.NewRequest(http.MethodPost, "/v1/projects/"+id+"/rotate-key", nil)
	rot.Header.Set("Authorization", "Bearer "+token)
	rec := s.do(rot)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEqual(t, oldKey, out.APIKey)

	get := httptest.NewRequest(http.MethodHead, "/v1/cache/whatever", nil)
	get.Header.Set("X-API-Key", oldKey)
	assert.Equal(t, http.StatusUnauthorized, s.do(get).Code)

	get = httptest.NewRequest(http.MethodHead, "/v1/cache/whatever", nil)
	get.Header.Set("X-API-Key", out.APIKey)
	assert.Equal(t, http.StatusNotFound, s.do(get).Code)
}

func TestProjectAccessIsScoped(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.createProject(t, "user:alice", "webapp", "")

	// Anonymous -> 401.
	get := httptest.NewRequest(http.MethodGet, "/v1/projects/"+id, nil)
	assert.Equal(t, http.StatusUnauthorized, s.do(get).Code)

	// Out of scope -> uniform 404.
	get = httptest.NewRequest(http.MethodGet, "/v1/projects/"+id, nil)
	get.Header.Set("Authorization", "Bearer "+s.token(t, "user:mallory", "mallory"))
	assert.Equal(t, http.StatusNotFound, s.do(get).Code)

	// Owner scope -> 200 and listed.
	get = httptest.NewRequest(http.MethodGet, "/v1/projects/"+id, nil)
	get.Header.Set("Authorization", "Bearer "+s.token(t, "user:alice", "alice"))
	assert.Equal(t, http.StatusOK, s.do(get).Code)

	list := httptest.NewRequest(http.MethodGet, "/v1/projects/", nil)
	list.Header.Set("Authorization", "Bearer "+s.token(t, "user:alice", "alice"))
	rec := s.do(list)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Projects []handlers.ProjectResponse `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Projects, 1)
	assert.Equal(t, "webapp", listed.Projects[0].Name)
}
