package stores

import (
	"context"
	"time"
)

// Login represents a SQL login account managed by the sql.login resource.
type Login struct {
	// ID is the stable login identifier, a UUID assigned on creation.
	ID string `json:"id"`

	// RowID is the integer row id SQLite assigns to the login row. It is
	// surfaced as the read-only loginId property.
	RowID int64 `json:"row_id"`

	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Enabled      bool      `json:"enabled"`
	DefaultRole  string    `json:"default_role"`
	Comment      string    `json:"comment"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuditAction identifies what happened to a login.
type AuditAction string

const (
	AuditActionCreated AuditAction = "login.created"
	AuditActionUpdated AuditAction = "login.updated"
	AuditActionDeleted AuditAction = "login.deleted"
)

// AuditEntry represents one row of the append-only auth audit trail.
type AuditEntry struct {
	ID        int64       `json:"id"`
	Action    AuditAction `json:"action"`
	LoginName string      `json:"login_name"`
	Actor     string      `json:"actor"`
	Details   *string     `json:"details,omitempty"` // JSON blob
	Timestamp time.Time   `json:"timestamp"`
}

// AuthStore defines the persistence interface backing the sql.login
// resource.
type AuthStore interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Login operations
	GetLogin(ctx context.Context, name string) (*Login, error)
	UpsertLogin(ctx context.Context, login *Login) error
	DeleteLogin(ctx context.Context, name string) error
	ListLogins(ctx context.Context, limit, offset int) ([]*Login, error)

	// Audit operations
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, action *AuditAction, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
