package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/aliuyar1234/inviteguard/internal/store"
	"github.com/aliuyar1234/inviteguard/internal/store/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type capturingNotifier struct {
	mu   sync.Mutex
	sent []invitations.Message
	err  error
}

func (n *capturingNotifier) SendInvitation(_ context.Context, msg invitations.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *capturingNotifier) last(t *testing.T) invitations.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

func newPostgresStore(t *testing.T) *postgres.Store {
	t.Helper()
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	return postgres.New(pool)
}

func newService(s *postgres.Store, n invitations.Notifier) *invitations.Service {
	return invitations.NewService(s, n, invitations.Options{PasswordCost: bcrypt.MinCost})
}

func TestIntegration_PostgresInvitationRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	tenantID, err := s.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, err)

	_, err = s.CreateTenant(ctx, "Acme again", "acme")
	require.ErrorIs(t, err, store.ErrDuplicate)

	now := time.Now().UTC().Truncate(time.Microsecond)
	inv := &invitations.Invitation{
		ID:          uuid.New(),
		Email:       "bob@x.io",
		TenantID:    tenantID,
		Role:        invitations.RoleCreator,
		TokenHash:   "$2a$10$hash",
		TokenPrefix: "abcdef01",
		Status:      invitations.StatusPending,
		InvitedBy:   uuid.New(),
		InviterName: "Alice",
		ExpiresAt:   now.Add(72 * time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.InsertInvitation(ctx, inv))

	dup := *inv
	dup.ID = uuid.New()
	dup.Email = "BOB@x.io"
	require.ErrorIs(t, s.InsertInvitation(ctx, &dup), store.ErrDuplicate)

	got, err := s.FindInvitation(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.Email, got.Email)
	require.Equal(t, invitations.StatusPending, got.Status)
	require.Equal(t, "abcdef01", got.TokenPrefix)
	require.True(t, inv.ExpiresAt.Equal(got.ExpiresAt))

	_, err = s.FindInvitation(ctx, uuid.New(), inv.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	byPrefix, err := s.FindPendingByPrefix(ctx, "abcdef01")
	require.NoError(t, err)
	require.Len(t, byPrefix, 1)

	revoked := *got
	revoked.Status = invitations.StatusRevoked
	require.ErrorIs(t, s.UpdatePending(ctx, &revoked, "$2a$10$stale"), store.ErrNotPending)
	require.NoError(t, s.UpdatePending(ctx, &revoked, got.TokenHash))
	require.ErrorIs(t, s.UpdatePending(ctx, &revoked, invitations.AnyTokenHash), store.ErrNotPending)
}

func TestIntegration_PostgresSagaCreateAccept(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	tenantID, err := s.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, err)

	notifier := &capturingNotifier{}
	svc := newService(s, notifier)

	pub, err := svc.Create(ctx, invitations.CreateInput{
		Email: "bob@x.io", Role: "viewer", TenantID: tenantID, InviterID: uuid.New(), InviterName: "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, "Acme", notifier.last(t).TenantName)

	_, err = svc.Create(ctx, invitations.CreateInput{
		Email: "bob@x.io", Role: "viewer", TenantID: tenantID, InviterID: uuid.New(),
	})
	require.ErrorIs(t, err, invitations.ErrPendingInvitationExists)

	require.NoError(t, svc.Accept(ctx, notifier.last(t).RawToken, "Pw123!"))
	require.ErrorIs(t, svc.Accept(ctx, notifier.last(t).RawToken, "Pw123!"), invitations.ErrInvalidOrExpired)

	got, err := svc.Get(ctx, pub.ID, tenantID)
	require.NoError(t, err)
	require.Equal(t, invitations.StatusAccepted, got.Status)

	exists, err := s.EmailExists(ctx, "BOB@X.IO")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, s.SetPasswordHash(ctx, "bob@x.io", "replaced"))
	require.ErrorIs(t, s.SetPasswordHash(ctx, "nobody@x.io", "replaced"), store.ErrNotFound)
}

func TestIntegration_PostgresNotifierFailureCompensates(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	tenantID, err := s.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, err)

	relayErr := errors.New("relay down")
	svc := newService(s, &capturingNotifier{err: relayErr})

	_, err = svc.Create(ctx, invitations.CreateInput{
		Email: "bob@x.io", Role: "viewer", TenantID: tenantID, InviterID: uuid.New(),
	})
	require.Same(t, relayErr, err)

	all, err := s.ListInvitations(ctx, tenantID, invitations.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestIntegration_PostgresConcurrentAcceptCreatesOneAccount(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	tenantID, err := s.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, err)

	notifier := &capturingNotifier{}
	svc := newService(s, notifier)

	_, err = svc.Create(ctx, invitations.CreateInput{
		Email: "bob@x.io", Role: "viewer", TenantID: tenantID, InviterID: uuid.New(),
	})
	require.NoError(t, err)
	raw := notifier.last(t).RawToken

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Accept(ctx, raw, "Pw123!")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t,
			errors.Is(err, invitations.ErrInvalidOrExpired) || errors.Is(err, invitations.ErrEmailExists),
			"unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)

	var users int
	require.NoError(t, s.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE lower(email) = 'bob@x.io'`).Scan(&users))
	require.Equal(t, 1, users)
}

func TestIntegration_PostgresExpireAndAudit(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	tenantID, err := s.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, err)

	notifier := &capturingNotifier{}
	svc := newService(s, notifier)
	pub, err := svc.Create(ctx, invitations.CreateInput{
		Email: "bob@x.io", Role: "viewer", TenantID: tenantID, InviterID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = s.Pool().Exec(ctx, `UPDATE invitations SET expires_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, pub.ID)
	require.NoError(t, err)

	n, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	writer := audit.NewWriter(s)
	require.NoError(t, writer.LogInvitationsExpired(ctx, n))
	require.NoError(t, writer.LogInvitationRevoked(ctx, tenantID, uuid.New(), pub.ID))

	var actions []string
	rows, err := s.Pool().Query(ctx, `SELECT action FROM audit_log ORDER BY created_at, action`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var a string
		require.NoError(t, rows.Scan(&a))
		actions = append(actions, a)
	}
	require.NoError(t, rows.Err())
	require.ElementsMatch(t, []string{audit.EventInvitationExpired, audit.EventInvitationRevoked}, actions)
}
