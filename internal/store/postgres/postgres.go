// Package postgres implements the invitation store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/aliuyar1234/inviteguard/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const invitationColumns = `
	id, email, tenant_id, role, token_hash, token_prefix, status,
	invited_by, inviter_name, name, expires_at, created_at, updated_at
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL invitation store.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for migrations and health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (s *Store) HasPendingInvitation(ctx context.Context, email string, tenantID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invitations
			WHERE lower(email) = lower($1) AND tenant_id = $2 AND status = 'PENDING'
		)
	`, email, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending invitation: %w", err)
	}
	return exists, nil
}

func (s *Store) TenantName(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM tenants WHERE id = $1`, tenantID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("failed to get tenant: %w", err)
	}
	return name, nil
}

func (s *Store) InsertInvitation(ctx context.Context, inv *invitations.Invitation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		inv.ID, inv.Email, inv.TenantID, string(inv.Role), inv.TokenHash, inv.TokenPrefix, string(inv.Status),
		inv.InvitedBy, inv.InviterName, inv.Name, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

func (s *Store) FindInvitation(ctx context.Context, tenantID, id uuid.UUID) (*invitations.Invitation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)

	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

func (s *Store) FindPendingByPrefix(ctx context.Context, prefix string) ([]invitations.Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE token_prefix = $1 AND status = 'PENDING'
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	return collectInvitations(rows)
}

func (s *Store) ListInvitations(ctx context.Context, tenantID uuid.UUID, filter invitations.ListFilter) ([]invitations.Invitation, error) {
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id
	`, tenantID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	return collectInvitations(rows)
}

func (s *Store) UpdatePending(ctx context.Context, inv *invitations.Invitation, expectHash string) error {
	return updatePending(ctx, s.pool, inv, expectHash)
}

func (s *Store) DeleteInvitation(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	return nil
}

func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invitations
		SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'PENDING' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// WithTx runs fn in a read-committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx invitations.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, tenant_id, invitation_id, actor_user_id, action, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.TenantID, e.InvitationID, e.ActorUserID, e.Action, e.Meta, e.CreatedAt)
	return err
}

// CreateTenant inserts a tenant and returns its id.
func (s *Store) CreateTenant(ctx context.Context, name, slug string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `INSERT INTO tenants (id, name, slug) VALUES ($1, $2, $3)`, id, name, slug)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, store.ErrDuplicate
		}
		return uuid.Nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return id, nil
}

// SetPasswordHash replaces the password hash of the user with this email.
func (s *Store) SetPasswordHash(ctx context.Context, email, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE lower(email) = lower($1)`,
		email, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) CreateAccount(ctx context.Context, account invitations.Account) (uuid.UUID, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, tenant_id, name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, account.ID, account.Email, account.PasswordHash, string(account.Role), account.TenantID, account.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, store.ErrDuplicate
		}
		return uuid.Nil, fmt.Errorf("failed to create user: %w", err)
	}
	return account.ID, nil
}

func (t *txStore) UpdatePending(ctx context.Context, inv *invitations.Invitation, expectHash string) error {
	return updatePending(ctx, t.tx, inv, expectHash)
}

// updatePending only touches rows still PENDING and, unless expectHash is
// empty, still carrying expectHash. The row lock taken by the UPDATE
// serializes concurrent transitions of one invitation; the predicate is
// re-checked against the committed row after the lock is granted.
func updatePending(ctx context.Context, q querier, inv *invitations.Invitation, expectHash string) error {
	tag, err := q.Exec(ctx, `
		UPDATE invitations
		SET status = $2, token_hash = $3, token_prefix = $4, expires_at = $5, updated_at = $6
		WHERE id = $1 AND status = 'PENDING' AND ($7::text = '' OR token_hash = $7)
	`, inv.ID, string(inv.Status), inv.TokenHash, inv.TokenPrefix, inv.ExpiresAt, inv.UpdatedAt, expectHash)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotPending
	}
	return nil
}

func scanInvitation(row pgx.Row) (invitations.Invitation, error) {
	var inv invitations.Invitation
	var role, status string
	err := row.Scan(
		&inv.ID, &inv.Email, &inv.TenantID, &role, &inv.TokenHash, &inv.TokenPrefix, &status,
		&inv.InvitedBy, &inv.InviterName, &inv.Name, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return invitations.Invitation{}, err
	}
	inv.Role = invitations.Role(role)
	inv.Status = invitations.Status(strings.TrimSpace(status))
	return inv, nil
}

func collectInvitations(rows pgx.Rows) ([]invitations.Invitation, error) {
	defer rows.Close()

	out := []invitations.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var (
	_ invitations.Store = (*Store)(nil)
	_ audit.Sink        = (*Store)(nil)
)
