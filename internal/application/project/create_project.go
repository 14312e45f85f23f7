package project

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

var projectNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,99}$`)

// Draft is the client-supplied shape of a new project. The server assigns
// the key and the initial version; the owner is fixed at creation.
type Draft struct {
	Owner       domain.AccountScope
	Name        string
	DisplayName string
	Visibility  domain.Visibility    // empty = INTERNAL
	Isolation   domain.IsolationMode // empty = OPEN
}

// CreateProjectResult returns the created project and the plain API key
// (only time it is visible).
type CreateProjectResult struct {
	Project *domain.Project
	APIKey  string
}

// CreateProject validates a draft and creates the project with a generated
// API key.
type CreateProject struct {
	projects ports.ProjectRepository
	hasher   ports.APIKeyHasher
}

// NewCreateProject builds the use case.
func NewCreateProject(projects ports.ProjectRepository, hasher ports.APIKeyHasher) *CreateProject {
	return &CreateProject{projects: projects, hasher: hasher}
}

// Execute creates the project at version 0 and returns it with the plain
// API key.
func (uc *CreateProject) Execute(ctx context.Context, draft Draft) (*CreateProjectResult, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	existing, err := uc.projects.GetByName(ctx, draft.Owner, draft.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domerrors.ErrProjectExists
	}

	plainKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	hash, err := uc.hasher.Hash(plainKey)
	if err != nil {
		return nil, err
	}

	visibility := draft.Visibility
	if visibility == "" {
		visibility = domain.VisibilityInternal
	}
	isolation := draft.Isolation
	if isolation == "" {
		isolation = domain.IsolationOpen
	}
	displayName := draft.DisplayName
	if displayName == "" {
		displayName = draft.Name
	}

	now := time.Now()
	p := &domain.Project{
		Key:          domain.ProjectKey{ID: domain.NewProjectID(uuid.New()), Name: draft.Name, Version: 0},
		Owner:        draft.Owner,
		DisplayName:  displayName,
		Visibility:   visibility,
		Isolation:    isolation,
		State:        domain.StateActive,
		APIKeyDigest: sha256Hex(plainKey),
		APIKeyHash:   hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return &CreateProjectResult{Project: p, APIKey: plainKey}, nil
}

func validateDraft(draft Draft) error {
	if err := draft.Owner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domerrors.ErrInvalidDraft, err)
	}
	if !projectNameRe.MatchString(draft.Name) {
		return fmt.Errorf("%w: name %q", domerrors.ErrInvalidDraft, draft.Name)
	}
	if draft.Visibility != "" && !draft.Visibility.Valid() {
		return fmt.Errorf("%w: visibility %q", domerrors.ErrInvalidDraft, draft.Visibility)
	}
	return nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "bcx_" + hex.EncodeToString(b), nil
}

// sha256Hex is the fast lookup digest stored next to the argon2 hash.
func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
