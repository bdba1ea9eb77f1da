// Package sqlite implements the invitation store on SQLite for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/aliuyar1234/inviteguard/internal/store"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const invitationColumns = `
	id, email, tenant_id, role, token_hash, token_prefix, status,
	invited_by, inviter_name, name, expires_at, created_at, updated_at
`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store persists invitations in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies the embedded schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == MemoryPath {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (s *Store) HasPendingInvitation(ctx context.Context, email string, tenantID uuid.UUID) (bool, error) {
	var exists bool
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invitations
			WHERE email = ? AND tenant_id = ? AND status = 'PENDING'
		)
	`, email, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending invitation: %w", err)
	}
	return exists, nil
}

func (s *Store) TenantName(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var name string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT name FROM tenants WHERE id = ?`, tenantID).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("get tenant: %w", err)
	}
	return name, nil
}

func (s *Store) InsertInvitation(ctx context.Context, inv *invitations.Invitation) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.Email, inv.TenantID, string(inv.Role), inv.TokenHash, inv.TokenPrefix, string(inv.Status),
		inv.InvitedBy, inv.InviterName, inv.Name, toMillis(inv.ExpiresAt), toMillis(inv.CreatedAt), toMillis(inv.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *Store) FindInvitation(ctx context.Context, tenantID, id uuid.UUID) (*invitations.Invitation, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = ? AND tenant_id = ?
	`, id, tenantID)

	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &inv, nil
}

func (s *Store) FindPendingByPrefix(ctx context.Context, prefix string) ([]invitations.Invitation, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE token_prefix = ? AND status = 'PENDING'
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query invitations: %w", err)
	}
	return collectInvitations(rows)
}

func (s *Store) ListInvitations(ctx context.Context, tenantID uuid.UUID, filter invitations.ListFilter) ([]invitations.Invitation, error) {
	var status sql.NullString
	if filter.Status != nil {
		status = sql.NullString{String: string(*filter.Status), Valid: true}
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE tenant_id = ? AND (? IS NULL OR status = ?)
		ORDER BY created_at DESC, id
	`, tenantID, status, status)
	if err != nil {
		return nil, fmt.Errorf("query invitations: %w", err)
	}
	return collectInvitations(rows)
}

func (s *Store) UpdatePending(ctx context.Context, inv *invitations.Invitation, expectHash string) error {
	return updatePending(ctx, s.sqlDB, inv, expectHash)
}

func (s *Store) DeleteInvitation(ctx context.Context, id uuid.UUID) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM invitations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE invitations
		SET status = 'EXPIRED', updated_at = ?
		WHERE status = 'PENDING' AND expires_at < ?
	`, toMillis(now), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	return res.RowsAffected()
}

// WithTx runs fn in one transaction. SQLite transactions are serializable.
func (s *Store) WithTx(ctx context.Context, fn func(tx invitations.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, invitation_id, actor_user_id, action, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.InvitationID, e.ActorUserID, e.Action, string(e.Meta), toMillis(e.CreatedAt))
	return err
}

// AuditActions returns the recorded audit actions, oldest first.
func (s *Store) AuditActions(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT action FROM audit_log ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, action)
	}
	return out, rows.Err()
}

// CreateTenant inserts a tenant and returns its id.
func (s *Store) CreateTenant(ctx context.Context, name, slug string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
		id, name, slug, toMillis(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, store.ErrDuplicate
		}
		return uuid.Nil, fmt.Errorf("create tenant: %w", err)
	}
	return id, nil
}

// SetPasswordHash replaces the password hash of the user with this email.
func (s *Store) SetPasswordHash(ctx context.Context, email, passwordHash string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?`,
		passwordHash, toMillis(time.Now()), email,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PasswordHash returns the stored hash for email.
func (s *Store) PasswordHash(ctx context.Context, email string) (string, error) {
	var hash string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE email = ?`, email).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	return hash, nil
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) CreateAccount(ctx context.Context, account invitations.Account) (uuid.UUID, error) {
	now := toMillis(time.Now())
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, tenant_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, account.ID, account.Email, account.PasswordHash, string(account.Role), account.TenantID, account.Name, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, store.ErrDuplicate
		}
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return account.ID, nil
}

func (t *txStore) UpdatePending(ctx context.Context, inv *invitations.Invitation, expectHash string) error {
	return updatePending(ctx, t.tx, inv, expectHash)
}

func updatePending(ctx context.Context, db execer, inv *invitations.Invitation, expectHash string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE invitations
		SET status = ?, token_hash = ?, token_prefix = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING' AND (? = '' OR token_hash = ?)
	`, string(inv.Status), inv.TokenHash, inv.TokenPrefix, toMillis(inv.ExpiresAt), toMillis(inv.UpdatedAt), inv.ID, expectHash, expectHash)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("update invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	if n == 0 {
		return store.ErrNotPending
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (invitations.Invitation, error) {
	var inv invitations.Invitation
	var role, status string
	var expiresAt, createdAt, updatedAt int64
	err := row.Scan(
		&inv.ID, &inv.Email, &inv.TenantID, &role, &inv.TokenHash, &inv.TokenPrefix, &status,
		&inv.InvitedBy, &inv.InviterName, &inv.Name, &expiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return invitations.Invitation{}, err
	}
	inv.Role = invitations.Role(role)
	inv.Status = invitations.Status(status)
	inv.ExpiresAt = fromMillis(expiresAt)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return inv, nil
}

func collectInvitations(rows *sql.Rows) ([]invitations.Invitation, error) {
	defer rows.Close()

	out := []invitations.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3lib.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
	return false
}

var (
	_ invitations.Store = (*Store)(nil)
	_ audit.Sink        = (*Store)(nil)
)
