package middleware

import "net/http"

// APIVersion stamps every response with the cache API contract version so
// clients and intermediate proxies can tell which surface they spoke to.
func APIVersion(version string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-API-Version", version)
			h.Set("Server", "buildcached")
			next.ServeHTTP(w, r)
		})
	}
}
