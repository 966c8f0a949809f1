package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openconverge/converge/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ProtectedLogin is seeded by the migrations and can never be deleted.
const ProtectedLogin = "admin"

// AuthDB implements the AuthStore interface using SQLite.
type AuthDB struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite auth database configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New creates an auth database instance. Init must be called before use.
func New(cfg Config) (*AuthDB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &AuthDB{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *AuthDB) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if s.path == ":memory:" {
		// An in-memory database is private to its connection; the pool
		// must not grow past one.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
		db.SetMaxIdleConns(s.cfg.MaxIdleConns)
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *AuthDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *AuthDB) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// GetLogin retrieves a login by name. Name comparison is case-insensitive.
func (s *AuthDB) GetLogin(ctx context.Context, name string) (*Login, error) {
	query := `
		SELECT rowid, id, name, password_hash, enabled, default_role, comment, created_at, updated_at
		FROM logins
		WHERE name = ?
	`

	login := &Login{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&login.RowID,
		&login.ID,
		&login.Name,
		&login.PasswordHash,
		&login.Enabled,
		&login.DefaultRole,
		&login.Comment,
		&login.CreatedAt,
		&login.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get login: %w", err)
	}

	roles, err := s.loginRoles(ctx, login.ID)
	if err != nil {
		return nil, err
	}
	login.Roles = roles

	return login, nil
}

// UpsertLogin inserts or updates a login and replaces its role memberships.
// An empty PasswordHash preserves the stored hash on update.
func (s *AuthDB) UpsertLogin(ctx context.Context, login *Login) error {
	if login == nil {
		return fmt.Errorf("login is nil")
	}
	if login.Name == "" {
		return fmt.Errorf("login name is required")
	}
	if login.ID == "" {
		login.ID = uuid.New().String()
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classifyErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO logins (id, name, password_hash, enabled, default_role, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			password_hash = CASE WHEN excluded.password_hash = '' THEN logins.password_hash ELSE excluded.password_hash END,
			enabled = excluded.enabled,
			default_role = excluded.default_role,
			comment = excluded.comment,
			updated_at = excluded.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		login.ID,
		login.Name,
		login.PasswordHash,
		login.Enabled,
		login.DefaultRole,
		login.Comment,
		now,
		now,
	)
	if err != nil {
		return classifyErr(fmt.Errorf("failed to upsert login: %w", err))
	}

	// The conflict branch keeps the original row id; read it back so the
	// role rows reference the right login.
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM logins WHERE name = ?`, login.Name).Scan(&id); err != nil {
		return fmt.Errorf("failed to resolve login id: %w", err)
	}
	login.ID = id

	if _, err := tx.ExecContext(ctx, `DELETE FROM login_roles WHERE login_id = ?`, id); err != nil {
		return classifyErr(fmt.Errorf("failed to clear roles: %w", err))
	}
	for _, role := range login.Roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO login_roles (login_id, role) VALUES (?, ?)`, id, role); err != nil {
			return classifyErr(fmt.Errorf("failed to add role %s: %w", role, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyErr(fmt.Errorf("failed to commit login: %w", err))
	}

	return nil
}

// DeleteLogin removes a login and its role memberships. The protected
// admin login cannot be deleted.
func (s *AuthDB) DeleteLogin(ctx context.Context, name string) error {
	if strings.EqualFold(name, ProtectedLogin) {
		return engine.NewInvalidOperationError(
			fmt.Sprintf("login %s is protected and cannot be deleted", ProtectedLogin), nil)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM logins WHERE name = ?`, name)
	if err != nil {
		return classifyErr(fmt.Errorf("failed to delete login: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return engine.ErrNotFound
	}

	return nil
}

// ListLogins lists logins ordered by name with pagination.
func (s *AuthDB) ListLogins(ctx context.Context, limit, offset int) ([]*Login, error) {
	query := `
		SELECT rowid, id, name, password_hash, enabled, default_role, comment, created_at, updated_at
		FROM logins
		ORDER BY name ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list logins: %w", err)
	}
	defer rows.Close()

	logins := []*Login{}
	for rows.Next() {
		login := &Login{}
		err := rows.Scan(
			&login.RowID,
			&login.ID,
			&login.Name,
			&login.PasswordHash,
			&login.Enabled,
			&login.DefaultRole,
			&login.Comment,
			&login.CreatedAt,
			&login.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login: %w", err)
		}
		logins = append(logins, login)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logins: %w", err)
	}

	for _, login := range logins {
		roles, err := s.loginRoles(ctx, login.ID)
		if err != nil {
			return nil, err
		}
		login.Roles = roles
	}

	return logins, nil
}

// loginRoles loads the sorted role memberships of a login.
func (s *AuthDB) loginRoles(ctx context.Context, loginID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role FROM login_roles WHERE login_id = ? ORDER BY role ASC`, loginID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}

// AppendAudit appends an entry to the auth audit trail.
func (s *AuthDB) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_audit (action, login_name, actor, details, timestamp) VALUES (?, ?, ?, ?, ?)`,
		entry.Action,
		entry.LoginName,
		entry.Actor,
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		return classifyErr(fmt.Errorf("failed to append audit entry: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}
	entry.ID = id

	return nil
}

// ListAudit lists audit entries, newest first, optionally filtered by
// action.
func (s *AuthDB) ListAudit(ctx context.Context, action *AuditAction, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, login_name, actor, details, timestamp
		FROM auth_audit
		WHERE (? IS NULL OR action = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.LoginName,
			&entry.Actor,
			&entry.Details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// classifyErr maps SQLite authorization failures onto the permission-denied
// category; every other error passes through unchanged.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "readonly database") {
		return engine.NewPermissionDeniedError("auth database is read-only", err)
	}
	return err
}

// HealthCheck verifies the database connection is healthy.
func (s *AuthDB) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// HashPassword derives the stored hash for a plaintext password.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func (l *Login) VerifyPassword(plain string) bool {
	if l.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(l.PasswordHash), []byte(plain)) == nil
}
