package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ScopeKind discriminates the AccountScope union.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeUser
	ScopeTenant
)

// UserRef identifies an individual user by opaque uid.
type UserRef struct {
	UID string
}

// TenantRef identifies an organization tenant.
type TenantRef struct {
	ID   int64
	UUID uuid.UUID
	Name string
}

// AccountScope is a tagged union: exactly one of user or tenant.
// Construct via UserScope or TenantScope; the zero value is invalid.
type AccountScope struct {
	kind   ScopeKind
	user   UserRef
	tenant TenantRef
}

// UserScope returns an AccountScope owned by an individual user.
func UserScope(uid string) AccountScope {
	return AccountScope{kind: ScopeUser, user: UserRef{UID: uid}}
}

// TenantScope returns an AccountScope owned by a tenant.
func TenantScope(id int64, uid uuid.UUID, name string) AccountScope {
	return AccountScope{kind: ScopeTenant, tenant: TenantRef{ID: id, UUID: uid, Name: name}}
}

// Kind returns the populated variant.
func (s AccountScope) Kind() ScopeKind { return s.kind }

// User returns the user variant; ok is false for non-user scopes.
func (s AccountScope) User() (UserRef, bool) {
	return s.user, s.kind == ScopeUser
}

// Tenant returns the tenant variant; ok is false for non-tenant scopes.
func (s AccountScope) Tenant() (TenantRef, bool) {
	return s.tenant, s.kind == ScopeTenant
}

// IsZero reports whether no variant is populated.
func (s AccountScope) IsZero() bool { return s.kind == ScopeNone }

// String returns the canonical form used for key namespacing and storage
// ("user:<uid>" or "tenant:<name>").
func (s AccountScope) String() string {
	switch s.kind {
	case ScopeUser:
		return "user:" + s.user.UID
	case ScopeTenant:
		return "tenant:" + s.tenant.Name
	default:
		return ""
	}
}

// Equal reports whether two scopes refer to the same account.
func (s AccountScope) Equal(other AccountScope) bool {
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case ScopeUser:
		return s.user.UID == other.user.UID
	case ScopeTenant:
		return s.tenant.ID == other.tenant.ID && s.tenant.UUID == other.tenant.UUID
	default:
		return true
	}
}

// Validate checks the exactly-one-variant invariant.
func (s AccountScope) Validate() error {
	switch s.kind {
	case ScopeUser:
		if s.user.UID == "" {
			return fmt.Errorf("user scope: empty uid")
		}
	case ScopeTenant:
		if s.tenant.Name == "" {
			return fmt.Errorf("tenant scope: empty name")
		}
	default:
		return fmt.Errorf("account scope: no variant populated")
	}
	return nil
}

// ParseScope parses the canonical string form produced by String.
func ParseScope(s string) (AccountScope, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return AccountScope{}, fmt.Errorf("malformed scope %q", s)
	}
	switch kind {
	case "user":
		return UserScope(rest), nil
	case "tenant":
		return AccountScope{kind: ScopeTenant, tenant: TenantRef{Name: rest}}, nil
	default:
		return AccountScope{}, fmt.Errorf("unknown scope kind %q", kind)
	}
}
