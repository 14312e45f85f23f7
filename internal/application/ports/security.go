package ports

// APIKeyHasher hashes and verifies project API keys (Argon2id), alongside a
// fast SHA-256 digest used only for lookup.
type APIKeyHasher interface {
	Hash(key string) (string, error)
	Verify(key, hash string) bool
}

// TokenVerifier validates bearer tokens and returns the principal's scope
// ("user:<uid>" or "tenant:<name>") and user id.
type TokenVerifier interface {
	ValidateAccessToken(tokenString string) (scope, userID string, err error)
}
