package policy

import (
	"sync"

	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// Operation is the access class being authorized.
type Operation int

const (
	OpRead Operation = iota
	OpWrite
)

// PrincipalClass buckets the caller relative to the project's owner scope.
type PrincipalClass int

const (
	ClassAnonymous PrincipalClass = iota
	ClassOutOfScope
	ClassInScope
)

// Classify resolves the principal's class against an owner scope.
func Classify(p domain.Principal, owner domain.AccountScope) PrincipalClass {
	switch {
	case p.Anonymous:
		return ClassAnonymous
	case p.InScope(owner):
		return ClassInScope
	default:
		return ClassOutOfScope
	}
}

// IsolationStrategy defines how one isolation mode propagates reads and
// writes to the parent account scope. New modes register a strategy; the
// engine dispatches by mode tag, never by hardcoded branching.
type IsolationStrategy interface {
	Mode() domain.IsolationMode
	// ReadFallbackScope returns the namespace to consult when a read
	// misses the project-local scope, or "" for none.
	ReadFallbackScope(project *domain.Project) string
	// PropagateWrites reports whether committed write sizes are mirrored
	// to the parent scope for quota/analytics.
	PropagateWrites(project *domain.Project) bool
}

var (
	isolationMu       sync.RWMutex
	isolationRegistry = make(map[domain.IsolationMode]IsolationStrategy)
)

// RegisterIsolation installs a strategy for its mode. Later registrations
// replace earlier ones.
func RegisterIsolation(s IsolationStrategy) {
	isolationMu.Lock()
	defer isolationMu.Unlock()
	isolationRegistry[s.Mode()] = s
}

func lookupIsolation(mode domain.IsolationMode) (IsolationStrategy, bool) {
	isolationMu.RLock()
	defer isolationMu.RUnlock()
	s, ok := isolationRegistry[mode]
	return s, ok
}

// openIsolation is the only defined mode: reads fall back to the parent
// scope's shared objects and writes propagate there for accounting.
type openIsolation struct{}

func (openIsolation) Mode() domain.IsolationMode { return domain.IsolationOpen }

func (openIsolation) ReadFallbackScope(p *domain.Project) string { return p.ParentScope() }

func (openIsolation) PropagateWrites(p *domain.Project) bool { return true }

func init() {
	RegisterIsolation(openIsolation{})
}

// Engine evaluates read/write eligibility from the project's visibility, its
// isolation mode, and the requesting principal's account scope.
type Engine struct{}

// NewEngine returns the policy engine.
func NewEngine() *Engine { return &Engine{} }

// Authorize decides whether principal may perform op against project.
// Returns nil on allow, or one of ErrPermissionDenied, ErrScopeNotFound,
// ErrProjectInactive. Authorization failures are terminal: callers must not
// retry them.
func (e *Engine) Authorize(project *domain.Project, op Operation, principal domain.Principal) error {
	if project == nil {
		return domerrors.ErrScopeNotFound
	}
	if !project.Active() {
		return domerrors.ErrProjectInactive
	}
	class := Classify(principal, project.Owner)
	if allowed(project.Visibility, op, class) {
		return nil
	}
	return domerrors.ErrPermissionDenied
}

// allowed is the visibility decision table. Writes are always confined to
// the owner scope; PUBLIC opens reads to everyone.
func allowed(v domain.Visibility, op Operation, class PrincipalClass) bool {
	if op == OpWrite {
		return class == ClassInScope
	}
	switch v {
	case domain.VisibilityPublic:
		return true
	case domain.VisibilityInternal, domain.VisibilityPrivate:
		return class == ClassInScope
	default:
		return false
	}
}

// Conceal maps a denial to the error shape the caller is allowed to see.
// For PRIVATE projects, unauthorized callers receive a uniform not-found so
// the project's existence is not leaked through the status code. Anonymous
// callers otherwise get Unauthenticated (credentials missing, not
// insufficient); authenticated out-of-scope callers keep PermissionDenied,
// since for non-private projects membership, not existence, is the secret.
func (e *Engine) Conceal(project *domain.Project, principal domain.Principal, err error) error {
	if err == nil || project == nil {
		return err
	}
	if err != domerrors.ErrPermissionDenied && err != domerrors.ErrProjectInactive {
		return err
	}
	class := Classify(principal, project.Owner)
	if class == ClassInScope {
		return err
	}
	if project.Visibility == domain.VisibilityPrivate {
		return domerrors.ErrObjectNotFound
	}
	if class == ClassAnonymous {
		return domerrors.ErrUnauthenticated
	}
	return err
}

// ReadFallbackScope asks the project's isolation strategy for a parent
// namespace to consult on a local miss; "" when the mode has no fallback or
// is unregistered.
func (e *Engine) ReadFallbackScope(project *domain.Project) string {
	s, ok := lookupIsolation(project.Isolation)
	if !ok {
		return ""
	}
	return s.ReadFallbackScope(project)
}

// PropagateWrites reports whether committed writes mirror usage to the
// parent scope.
func (e *Engine) PropagateWrites(project *domain.Project) bool {
	s, ok := lookupIsolation(project.Isolation)
	if !ok {
		return false
	}
	return s.PropagateWrites(project)
}
