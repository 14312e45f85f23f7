package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProjectID is a value object for project identity.
type ProjectID struct{ uuid.UUID }

// NewProjectID creates a new ProjectID from uuid.
func NewProjectID(id uuid.UUID) ProjectID { return ProjectID{UUID: id} }

// String returns the canonical string form.
func (p ProjectID) String() string { return p.UUID.String() }

// ProjectKey identifies a project plus the optimistic-concurrency version
// its caller last observed. Version increments on every settings update.
type ProjectKey struct {
	ID      ProjectID
	Name    string
	Version int64
}

// Visibility governs default access control for a project's cached data.
type Visibility string

const (
	VisibilityInternal Visibility = "internal" // default: any authenticated principal in the owner scope
	VisibilityPrivate  Visibility = "private"  // owner scope only
	VisibilityPublic   Visibility = "public"   // anonymous reads allowed
)

// Valid reports whether v is a defined visibility mode.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityInternal, VisibilityPrivate, VisibilityPublic:
		return true
	}
	return false
}

// IsolationMode governs whether project reads/writes propagate to the parent
// account scope. Open-ended: new modes register a strategy with the policy
// engine rather than extending a switch here.
type IsolationMode string

// IsolationOpen is the only mode currently defined: writes propagate to the
// parent scope for analytics/quota and reads fall back to the parent scope's
// shared objects.
const IsolationOpen IsolationMode = "open"

// LifecycleState is monotonic: active -> archived -> tombstoned. A tombstoned
// project never returns to active.
type LifecycleState string

const (
	StateActive     LifecycleState = "active"
	StateArchived   LifecycleState = "archived"
	StateTombstoned LifecycleState = "tombstoned"
)

// CanTransition reports whether the lifecycle may move from s to next.
func (s LifecycleState) CanTransition(next LifecycleState) bool {
	switch s {
	case StateActive:
		return next == StateArchived
	case StateArchived:
		return next == StateTombstoned
	default:
		return false
	}
}

// Project is the isolation unit for cached objects under one owner scope.
// Name is unique within the owner scope and immutable; DisplayName is not.
type Project struct {
	Key          ProjectKey
	Owner        AccountScope
	DisplayName  string
	Visibility   Visibility
	Isolation    IsolationMode
	State        LifecycleState
	APIKeyDigest string // SHA-256 lookup digest of the project API key
	APIKeyHash   string // argon2id verification hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the project accepts cache reads and writes.
func (p *Project) Active() bool { return p.State == StateActive }

// Scope returns the project-local cache namespace ("<owner>/<name>").
func (p *Project) Scope() string {
	return p.Owner.String() + "/" + p.Key.Name
}

// ParentScope returns the owner account's shared cache namespace, the
// fallback target under open isolation.
func (p *Project) ParentScope() string {
	return p.Owner.String()
}

// SettingsDelta is a partial settings update applied under the project's
// current version. Nil fields are left unchanged.
type SettingsDelta struct {
	DisplayName *string
	Visibility  *Visibility
	Isolation   *IsolationMode
}

// Empty reports whether the delta changes nothing.
func (d SettingsDelta) Empty() bool {
	return d.DisplayName == nil && d.Visibility == nil && d.Isolation == nil
}
