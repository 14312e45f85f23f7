package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
)

const apiKeyHeader = "X-API-Key"

// apiKeyPrefix distinguishes project API keys from JWTs in the Authorization
// header.
const apiKeyPrefix = "bcx_"

// PrincipalResolver resolves the caller's principal from the request. It
// accepts a bearer JWT, a project API key (X-API-Key, Authorization: Bearer
// bcx_..., or HTTP Basic with username "apikey" for clients that only speak
// basic auth), or nothing at all; requests without credentials proceed as
// anonymous so that public caches stay reachable. Only malformed or revoked
// credentials are rejected here.
type PrincipalResolver struct {
	tokens   ports.TokenVerifier
	projects ports.ProjectRepository
	hasher   ports.APIKeyHasher
}

func NewPrincipalResolver(tokens ports.TokenVerifier, projects ports.ProjectRepository, hasher ports.APIKeyHasher) *PrincipalResolver {
	return &PrincipalResolver{tokens: tokens, projects: projects, hasher: hasher}
}

func (m *PrincipalResolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(apiKeyHeader); key != "" {
			m.resolveAPIKey(w, r, next, key)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth == "" {
			ctx := WithPrincipal(r.Context(), domain.Anonymous())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if user, pass, ok := r.BasicAuth(); ok {
			if user != "apikey" {
				writeAuthErr(w, "basic auth username must be \"apikey\"")
				return
			}
			m.resolveAPIKey(w, r, next, pass)
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			writeAuthErr(w, "unsupported authorization scheme")
			return
		}
		if strings.HasPrefix(token, apiKeyPrefix) {
			m.resolveAPIKey(w, r, next, token)
			return
		}
		scope, userID, err := m.tokens.ValidateAccessToken(token)
		if err != nil {
			writeAuthErr(w, "invalid token")
			return
		}
		accountScope, err := domain.ParseScope(scope)
		if err != nil {
			writeAuthErr(w, "invalid token scope")
			return
		}
		ctx := WithPrincipal(r.Context(), domain.UserPrincipal(accountScope, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveAPIKey looks the key up by its SHA-256 digest, then verifies the
// argon2 hash. The digest avoids scanning argon2 hashes on every request.
func (m *PrincipalResolver) resolveAPIKey(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	digest := DigestAPIKey(key)
	project, err := m.projects.GetByAPIKeyDigest(r.Context(), digest)
	if err != nil {
		writeErrJSON(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if project == nil || !m.hasher.Verify(key, project.APIKeyHash) {
		writeAuthErr(w, "invalid api key")
		return
	}
	ctx := WithPrincipal(r.Context(), domain.UserPrincipal(project.Owner, ""))
	ctx = WithProject(ctx, project)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// DigestAPIKey returns the hex SHA-256 lookup digest of an API key.
func DigestAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func writeAuthErr(w http.ResponseWriter, message string) {
	writeErrJSON(w, http.StatusUnauthorized, "unauthenticated", message)
}

func writeErrJSON(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": errCode})
}
