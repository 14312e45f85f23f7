package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/buildless/buildcached/internal/application/cache"
	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
	"github.com/buildless/buildcached/internal/infrastructure/http/middleware"
)

// CacheHandler serves /v1/cache/{cacheKey}. The target project comes from
// the API-key binding when present, otherwise from the X-Cache-Project
// header ("<owner-scope>/<name>").
type CacheHandler struct {
	manager  *cache.Manager
	projects ports.ProjectRepository
}

// NewCacheHandler creates the cache data-plane handler.
func NewCacheHandler(manager *cache.Manager, projects ports.ProjectRepository) *CacheHandler {
	return &CacheHandler{manager: manager, projects: projects}
}

// resolveProject returns the project the request addresses, or nil when the
// reference does not resolve. A nil project is passed through to the policy
// engine so unknown and concealed projects answer identically.
func (h *CacheHandler) resolveProject(r *http.Request) (*domain.Project, error) {
	if p := middleware.ProjectFromContext(r.Context()); p != nil {
		return p, nil
	}
	ref := r.Header.Get(HeaderCacheProject)
	if ref == "" {
		return nil, errors.New("no project bound; set " + HeaderCacheProject)
	}
	scope, name, err := parseProjectRef(ref)
	if err != nil {
		return nil, err
	}
	return h.projects.GetByName(r.Context(), scope, name)
}

// Probe handles HEAD. Status-only: 200 with Content-Length on a hit, 404 on
// a miss, policy statuses otherwise.
func (h *CacheHandler) Probe(w http.ResponseWriter, r *http.Request) {
	project, err := h.resolveProject(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	principal := middleware.PrincipalFromContext(r.Context())
	res, err := h.manager.Probe(r.Context(), project, chi.URLParam(r, "cacheKey"), principal)
	if err != nil {
		w.WriteHeader(statusForErr(err))
		return
	}
	if !res.Hit {
		middleware.RecordCacheOp("probe", "miss")
		w.WriteHeader(http.StatusNotFound)
		return
	}
	middleware.RecordCacheOp("probe", "hit")
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// Fetch handles GET (and POST, which adds cache-avoidance headers so
// intermediaries never serve the response from their own cache).
func (h *CacheHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	project, err := h.resolveProject(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	rng, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		middleware.RecordCacheOp("fetch", "error")
		writeDomainErr(w, err)
		return
	}
	principal := middleware.PrincipalFromContext(r.Context())
	res, err := h.manager.Fetch(r.Context(), cache.FetchInput{
		Project:   project,
		Key:       chi.URLParam(r, "cacheKey"),
		Principal: principal,
		Range:     rng,
	})
	if err != nil {
		middleware.RecordCacheOp("fetch", outcomeForErr(err))
		writeDomainErr(w, err)
		return
	}
	defer res.Body.Close()
	middleware.RecordCacheOp("fetch", "hit")
	middleware.RecordObjectSize("fetch", res.Size)

	if r.Method == http.MethodPost {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	if rng != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.Start+res.Size-1, res.Total))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = io.Copy(w, res.Body)
}

// StoreResponse echoes the committed object.
type StoreResponse struct {
	Key   string `json:"key"`
	Size  int64  `json:"size"`
	Stamp string `json:"stamp"`
}

// Store handles PUT. Content-Length is mandatory and the body is opaque
// bytes; tags ride in X-Cache-Tag headers.
func (h *CacheHandler) Store(w http.ResponseWriter, r *http.Request) {
	project, err := h.resolveProject(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if r.ContentLength < 0 {
		writeErr(w, http.StatusLengthRequired, ErrCodeLengthRequired, "Content-Length required")
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		writeErr(w, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "unsupported Content-Type "+ct)
		return
	}
	principal := middleware.PrincipalFromContext(r.Context())
	res, err := h.manager.Store(r.Context(), cache.StoreInput{
		Project:   project,
		Key:       chi.URLParam(r, "cacheKey"),
		Principal: principal,
		Body:      r.Body,
		Size:      r.ContentLength,
		Tags:      parseTagHeaders(r.Header.Values(HeaderCacheTag)),
	})
	if err != nil {
		middleware.RecordCacheOp("store", outcomeForErr(err))
		writeDomainErr(w, err)
		return
	}
	middleware.RecordCacheOp("store", "ok")
	middleware.RecordObjectSize("store", res.Size)
	writeJSON(w, http.StatusOK, StoreResponse{
		Key:   res.Key,
		Size:  res.Size,
		Stamp: res.Stamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// Flush handles DELETE. Removal is scheduled, never synchronous; flushing an
// absent key is a no-op, and both answer 202.
func (h *CacheHandler) Flush(w http.ResponseWriter, r *http.Request) {
	project, err := h.resolveProject(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	principal := middleware.PrincipalFromContext(r.Context())
	outcome, err := h.manager.Flush(r.Context(), project, chi.URLParam(r, "cacheKey"), principal)
	if err != nil {
		middleware.RecordCacheOp("flush", outcomeForErr(err))
		writeDomainErr(w, err)
		return
	}
	middleware.RecordCacheOp("flush", "ok")
	status := "noop"
	if outcome == cache.FlushQueued {
		status = "queued"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

// TagResponse is the JSON shape of one tag.
type TagResponse struct {
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
	System bool   `json:"system,omitempty"`
}

// GetTags handles GET /{cacheKey}/tags. Metadata-only; never touches the
// object body.
func (h *CacheHandler) GetTags(w http.ResponseWriter, r *http.Request) {
	project, err := h.resolveProject(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	principal := middleware.PrincipalFromContext(r.Context())
	tags, err := h.manager.Tags(r.Context(), project, chi.URLParam(r, "cacheKey"), principal)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	items := make([]TagResponse, 0, len(tags))
	for _, t := range tags {
		items = append(items, tagResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": items})
}

// SetTags handles PUT /{cacheKey}/tags, replacing the tag set of an
// existing object. The object key never changes.
func (h *CacheHandler) SetTags(w http.ResponseWriter, r *http.Request) {
	project, err := h.resolveProject(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	var body struct {
		Tags []TagResponse `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid body")
		return
	}
	tags := make([]domain.CacheTag, 0, len(body.Tags))
	for _, t := range body.Tags {
		tag := domain.CacheTag{}
		if wk, ok := wellKnownTags[t.Name]; ok {
			tag.WellKnown = wk
		} else {
			tag.Keyed = &domain.KeyedTag{Key: t.Name, System: t.System}
		}
		if t.Value != "" {
			tag.Value = &domain.TagValue{Present: true, Inline: []byte(t.Value)}
		}
		tags = append(tags, tag)
	}
	principal := middleware.PrincipalFromContext(r.Context())
	if err := h.manager.SetTags(r.Context(), project, chi.URLParam(r, "cacheKey"), tags, principal); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MatchByTag handles GET /v1/cache-index/{tag}: object refs in the project
// carrying the named tag. Pagination is a simple limit; the iterator is lazy
// so unconsumed matches cost nothing.
func (h *CacheHandler) MatchByTag(w http.ResponseWriter, r *http.Request) {
	project, err := h.resolveProject(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	name := chi.URLParam(r, "tag")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	principal := middleware.PrincipalFromContext(r.Context())
	iter, err := h.manager.MatchByTag(r.Context(), project, principal, func(t domain.CacheTag) bool {
		if wk, ok := wellKnownTags[name]; ok {
			return t.WellKnown == wk
		}
		return t.Keyed != nil && t.Keyed.Key == name
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	refs := make([]string, 0, limit)
	for len(refs) < limit {
		ref, ok, err := iter.Next(r.Context())
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ok {
			break
		}
		refs = append(refs, ref)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"objects": refs})
}

func tagResponse(t domain.CacheTag) TagResponse {
	out := TagResponse{}
	if t.Keyed != nil {
		out.Name = t.Keyed.Key
		out.System = t.Keyed.System
	} else {
		out.Name = string(t.WellKnown)
	}
	if t.Value != nil && t.Value.Present && len(t.Value.Inline) > 0 {
		out.Value = string(t.Value.Inline)
	}
	return out
}

// statusForErr is the body-less mapping used by HEAD.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, domerrors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domerrors.ErrPermissionDenied), errors.Is(err, domerrors.ErrProjectInactive):
		return http.StatusForbidden
	case errors.Is(err, domerrors.ErrObjectNotFound), errors.Is(err, domerrors.ErrScopeNotFound):
		return http.StatusNotFound
	case errors.Is(err, domerrors.ErrKeyTooLong):
		return http.StatusRequestURITooLong
	case errors.Is(err, domerrors.ErrKeyEmpty), errors.Is(err, domerrors.ErrKeyReservedSequence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domerrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func outcomeForErr(err error) string {
	switch {
	case errors.Is(err, domerrors.ErrObjectNotFound):
		return "miss"
	case errors.Is(err, domerrors.ErrPermissionDenied),
		errors.Is(err, domerrors.ErrUnauthenticated),
		errors.Is(err, domerrors.ErrProjectInactive):
		return "denied"
	default:
		return "error"
	}
}
