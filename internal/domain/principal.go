package domain

// Principal is the authenticated caller of a cache or project operation.
// The zero value is not meaningful; use Anonymous or the constructors.
type Principal struct {
	Scope     AccountScope
	UserID    string
	Anonymous bool
	// System marks platform-internal callers allowed to write derived and
	// reserved tags. Set only by trusted wiring, never from request data.
	System bool
}

// Anonymous is the unauthenticated principal.
func Anonymous() Principal { return Principal{Anonymous: true} }

// UserPrincipal returns an authenticated user principal in scope.
func UserPrincipal(scope AccountScope, userID string) Principal {
	return Principal{Scope: scope, UserID: userID}
}

// SystemPrincipal returns a platform-internal principal in scope.
func SystemPrincipal(scope AccountScope) Principal {
	return Principal{Scope: scope, System: true}
}

// InScope reports whether the principal belongs to owner's account scope.
func (p Principal) InScope(owner AccountScope) bool {
	if p.Anonymous {
		return false
	}
	return p.Scope.Equal(owner)
}
