package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/buildless/buildcached/internal/infrastructure/http/handlers"
	"github.com/buildless/buildcached/internal/infrastructure/http/middleware"
)

type RouterConfig struct {
	CacheHandler     *handlers.CacheHandler
	ProjectsHandler  *handlers.ProjectsHandler
	HealthHandler    *handlers.HealthHandler
	Principal        *middleware.PrincipalResolver
	RequireAdmin     func(http.Handler) http.Handler // X-Admin-Secret for project creation
	Log              zerolog.Logger
	Secure           func(http.Handler) http.Handler
	IPRateLimit      func(http.Handler) http.Handler
	ProjectRateLimit func(http.Handler) http.Handler
	Metrics          bool     // expose /metrics
	AllowedOrigins   []string // CORS; empty disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(loggerMiddleware(cfg.Log))
	r.Use(chimid.Recoverer)
	if cfg.Metrics {
		r.Use(middleware.PrometheusMiddleware)
	}
	if cfg.Secure != nil {
		r.Use(cfg.Secure)
	}
	r.Use(middleware.APIVersion("v1"))
	r.Use(middleware.CORS(cfg.AllowedOrigins, nil, nil))
	if cfg.IPRateLimit != nil {
		r.Use(cfg.IPRateLimit)
	}

	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.ServeHTTP)
	} else {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	}
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Data plane. Bodies are opaque bytes, so no content-type gate here; the
	// store handler enforces its own.
	r.Route("/v1/cache", func(r chi.Router) {
		r.Use(cfg.Principal.Handler)
		if cfg.ProjectRateLimit != nil {
			r.Use(cfg.ProjectRateLimit)
		}
		r.Head("/{cacheKey}", cfg.CacheHandler.Probe)
		r.Get("/{cacheKey}", cfg.CacheHandler.Fetch)
		r.Post("/{cacheKey}", cfg.CacheHandler.Fetch)
		r.Put("/{cacheKey}", cfg.CacheHandler.Store)
		r.Delete("/{cacheKey}", cfg.CacheHandler.Flush)
		r.Get("/{cacheKey}/tags", cfg.CacheHandler.GetTags)
		r.Put("/{cacheKey}/tags", cfg.CacheHandler.SetTags)
	})

	r.Route("/v1/cache-index", func(r chi.Router) {
		r.Use(cfg.Principal.Handler)
		r.Get("/{tag}", cfg.CacheHandler.MatchByTag)
	})

	// Control plane.
	r.Route("/v1/projects", func(r chi.Router) {
		r.Use(cfg.Principal.Handler)
		r.Use(chimid.AllowContentType("application/json"))
		if cfg.RequireAdmin != nil {
			r.With(cfg.RequireAdmin).Post("/", cfg.ProjectsHandler.Create)
		}
		r.Get("/", cfg.ProjectsHandler.List)
		r.Get("/{id}", cfg.ProjectsHandler.Get)
		r.Patch("/{id}/settings", cfg.ProjectsHandler.UpdateSettings)
		r.Post("/{id}/archive", cfg.ProjectsHandler.Archive)
		r.Delete("/{id}", cfg.ProjectsHandler.Delete)
		r.Post("/{id}/rotate-key", cfg.ProjectsHandler.RotateKey)
	})

	return r
}

func loggerMiddleware(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := chimid.GetReqID(r.Context())
			log.Info().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("request")
			next.ServeHTTP(w, r)
		})
	}
}
