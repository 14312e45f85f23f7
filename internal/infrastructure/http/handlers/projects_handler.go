package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/application/project"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
	"github.com/buildless/buildcached/internal/infrastructure/http/middleware"
)

var validate = validator.New()

// ProjectsHandler serves /v1/projects/*. Creation is admin-gated; the rest
// requires a principal in the project's owner scope.
type ProjectsHandler struct {
	projects       ports.ProjectRepository
	create         *project.CreateProject
	updateSettings *project.UpdateSettings
	archive        *project.Archive
	scheduleDelete *project.ScheduleDelete
	rotateKey      *project.RotateProjectKey
}

// NewProjectsHandler creates the control-plane handler.
func NewProjectsHandler(
	projects ports.ProjectRepository,
	create *project.CreateProject,
	updateSettings *project.UpdateSettings,
	archive *project.Archive,
	scheduleDelete *project.ScheduleDelete,
	rotateKey *project.RotateProjectKey,
) *ProjectsHandler {
	return &ProjectsHandler{
		projects:       projects,
		create:         create,
		updateSettings: updateSettings,
		archive:        archive,
		scheduleDelete: scheduleDelete,
		rotateKey:      rotateKey,
	}
}

// ProjectResponse is the JSON shape of a project (no key material).
type ProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	OwnerScope  string `json:"owner_scope"`
	Visibility  string `json:"visibility"`
	Isolation   string `json:"isolation"`
	State       string `json:"state"`
	Version     int64  `json:"version"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func projectResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.Key.ID.String(),
		Name:        p.Key.Name,
		DisplayName: p.DisplayName,
		OwnerScope:  p.Owner.String(),
		Visibility:  string(p.Visibility),
		Isolation:   string(p.Isolation),
		State:       string(p.State),
		Version:     p.Key.Version,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Create provisions a project for an owner scope. Admin-gated; the API key
// is returned exactly once.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerScope  string `json:"owner_scope" validate:"required"`
		Name        string `json:"name" validate:"required,max=100"`
		DisplayName string `json:"display_name" validate:"max=255"`
		Visibility  string `json:"visibility"`
		Isolation   string `json:"isolation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, ErrCodeInvalidPayload, err.Error())
		return
	}
	owner, err := domain.ParseScope(body.OwnerScope)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, ErrCodeInvalidPayload, err.Error())
		return
	}
	res, err := h.create.Execute(r.Context(), project.Draft{
		Owner:       owner,
		Name:        body.Name,
		DisplayName: body.DisplayName,
		Visibility:  domain.Visibility(body.Visibility),
		Isolation:   domain.IsolationMode(body.Isolation),
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"project": projectResponse(res.Project),
		"api_key": res.APIKey,
	})
}

// List returns the caller's own projects.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal.Anonymous {
		writeDomainErr(w, domerrors.ErrUnauthenticated)
		return
	}
	projects, err := h.projects.List(r.Context(), principal.Scope)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	items := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": items})
}

// Get returns one project. Out-of-scope callers get a uniform 404 so project
// existence is not probeable.
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizedProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, projectResponse(p))
}

// UpdateSettings applies a settings delta under the version the caller last
// observed. A stale version answers 409 with the current version so the
// caller can re-read and retry.
func (h *ProjectsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizedProject(w, r)
	if !ok {
		return
	}
	var body struct {
		Version     *int64  `json:"version" validate:"required"`
		DisplayName *string `json:"display_name"`
		Visibility  *string `json:"visibility"`
		Isolation   *string `json:"isolation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, ErrCodeInvalidPayload, "version required")
		return
	}
	delta := domain.SettingsDelta{DisplayName: body.DisplayName}
	if body.Visibility != nil {
		v := domain.Visibility(*body.Visibility)
		delta.Visibility = &v
	}
	if body.Isolation != nil {
		iso := domain.IsolationMode(*body.Isolation)
		delta.Isolation = &iso
	}
	updated, err := h.updateSettings.Execute(r.Context(), project.UpdateSettingsInput{
		ProjectID:       p.Key.ID,
		ExpectedVersion: *body.Version,
		Delta:           delta,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if updated == nil {
		writeDomainErr(w, domerrors.ErrScopeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse(updated))
}

// Archive transitions active -> archived.
func (h *ProjectsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizedProject(w, r)
	if !ok {
		return
	}
	archived, err := h.archive.Execute(r.Context(), p.Key.ID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse(archived))
}

// Delete tombstones an archived project and schedules the purge of its data.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizedProject(w, r)
	if !ok {
		return
	}
	if err := h.scheduleDelete.Execute(r.Context(), p.Key.ID); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "purge scheduled"})
}

// RotateKey replaces the project API key, invalidating the previous one
// immediately. The new key is returned exactly once.
func (h *ProjectsHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizedProject(w, r)
	if !ok {
		return
	}
	res, err := h.rotateKey.Execute(r.Context(), p.Key.ID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": res.APIKey})
}

// authorizedProject loads the {id} project and enforces scope ownership,
// writing the error response itself on failure.
func (h *ProjectsHandler) authorizedProject(w http.ResponseWriter, r *http.Request) (*domain.Project, bool) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal.Anonymous {
		writeDomainErr(w, domerrors.ErrUnauthenticated)
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project id")
		return nil, false
	}
	p, err := h.projects.GetByID(r.Context(), domain.NewProjectID(id))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return nil, false
	}
	if p == nil || !principal.InScope(p.Owner) {
		writeDomainErr(w, domerrors.ErrScopeNotFound)
		return nil, false
	}
	return p, true
}
