package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureOptions returns security headers for an API that serves only JSON
// and raw cache bytes, never HTML. Nosniff is always on: cache bodies are
// caller-supplied bytes echoed back verbatim.
func SecureOptions(isDevelopment bool) secure.Options {
	return secure.Options{
		IsDevelopment:         isDevelopment,
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		ContentSecurityPolicy: "default-src 'none'",
		ReferrerPolicy:        "no-referrer",
	}
}

// NewSecure returns a middleware that adds security headers.
func NewSecure(opts secure.Options) func(next http.Handler) http.Handler {
	s := secure.New(opts)
	return s.Handler
}
