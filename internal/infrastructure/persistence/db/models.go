package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Project struct {
	ID           uuid.UUID
	Name         string
	DisplayName  string
	OwnerScope   string // canonical form, unique with name
	OwnerKind    string // "user" or "tenant"
	OwnerUid     string
	TenantID     pgtype.Int8
	TenantUuid   pgtype.UUID
	TenantName   string
	Visibility   string
	Isolation    string
	State        string
	Version      int64
	ApiKeyDigest string
	ApiKeyHash   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
