package middleware

import (
	"context"

	"github.com/buildless/buildcached/internal/domain"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	projectContextKey   contextKey = "project"
)

// WithPrincipal injects the resolved principal into the context.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the principal from the context. Requests that
// never passed principal resolution read as anonymous.
func PrincipalFromContext(ctx context.Context) domain.Principal {
	v := ctx.Value(principalContextKey)
	if v == nil {
		return domain.Anonymous()
	}
	p, ok := v.(domain.Principal)
	if !ok {
		return domain.Anonymous()
	}
	return p
}

// WithProject injects the API-key-bound project into the context.
func WithProject(ctx context.Context, project *domain.Project) context.Context {
	return context.WithValue(ctx, projectContextKey, project)
}

// ProjectFromContext returns the project bound by the presented API key, or
// nil when the caller authenticated some other way.
func ProjectFromContext(ctx context.Context) *domain.Project {
	v := ctx.Value(projectContextKey)
	if v == nil {
		return nil
	}
	p, _ := v.(*domain.Project)
	return p
}
