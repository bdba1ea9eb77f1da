package invitations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/apperrors"
	"github.com/aliuyar1234/inviteguard/internal/auth"
	"github.com/aliuyar1234/inviteguard/internal/metrics"
	"github.com/aliuyar1234/inviteguard/internal/store"
	"github.com/aliuyar1234/inviteguard/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultExpiryHours is the invitation lifetime when none is configured.
	DefaultExpiryHours = 72

	// FallbackTenantName is shown to the invitee when the tenant lookup misses.
	FallbackTenantName = "your organization"

	opCreate = "create"
	opAccept = "accept"
	opResend = "resend"
	opRevoke = "revoke"
	opExpire = "expire"
)

// Options configures a Service.
type Options struct {
	// ExpiryHours is the lifetime applied at mint time. Defaults to 72.
	ExpiryHours int

	// TokenCost is the bcrypt cost for token hashes. Values below
	// MinTokenCost are raised to it.
	TokenCost int

	// PasswordCost is the bcrypt cost for account passwords. Defaults to
	// auth.BcryptCost.
	PasswordCost int

	Metrics *metrics.Recorder

	// Now overrides the clock.
	Now func() time.Time
}

// CreateInput describes a new invitation.
type CreateInput struct {
	Email       string
	Role        string
	Name        string
	TenantID    uuid.UUID
	InviterID   uuid.UUID
	InviterName string
}

// Service runs the invitation saga: create, accept, resend and revoke.
type Service struct {
	store        Store
	notifier     Notifier
	metrics      *metrics.Recorder
	expiry       time.Duration
	tokenCost    int
	passwordCost int
	now          func() time.Time
}

// NewService creates a new invitation service.
func NewService(st Store, notifier Notifier, opts Options) *Service {
	if opts.ExpiryHours <= 0 {
		opts.ExpiryHours = DefaultExpiryHours
	}
	if opts.TokenCost < MinTokenCost {
		opts.TokenCost = DefaultTokenCost
	}
	if opts.PasswordCost == 0 {
		opts.PasswordCost = auth.BcryptCost
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		store:        st,
		notifier:     notifier,
		metrics:      opts.Metrics,
		expiry:       time.Duration(opts.ExpiryHours) * time.Hour,
		tokenCost:    opts.TokenCost,
		passwordCost: opts.PasswordCost,
		now:          opts.Now,
	}
}

// Create persists a PENDING invitation and sends its token. If the notifier
// fails the row is deleted again and the notifier's error is returned as is.
func (s *Service) Create(ctx context.Context, in CreateInput) (PublicInvitation, error) {
	email, err := validation.NormalizeEmail(in.Email)
	if err != nil {
		return PublicInvitation{}, apperrors.BadRequest(err.Error())
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return PublicInvitation{}, err
	}

	if err := s.checkEmailGloballyUnique(ctx, email); err != nil {
		s.metrics.Operation(opCreate, outcomeFor(err))
		return PublicInvitation{}, err
	}
	if err := s.checkNoPendingInvitation(ctx, email, in.TenantID); err != nil {
		s.metrics.Operation(opCreate, outcomeFor(err))
		return PublicInvitation{}, err
	}

	tenantName := s.tenantDisplayName(ctx, in.TenantID)

	token, err := MintToken(s.tokenCost)
	if err != nil {
		s.metrics.Operation(opCreate, metrics.OutcomeFailed)
		return PublicInvitation{}, err
	}

	now := s.now().UTC()
	inv := &Invitation{
		ID:          uuid.New(),
		Email:       email,
		TenantID:    in.TenantID,
		Role:        role,
		TokenHash:   token.Hash,
		TokenPrefix: token.Prefix,
		Status:      StatusPending,
		InvitedBy:   in.InviterID,
		InviterName: in.InviterName,
		Name:        in.Name,
		ExpiresAt:   now.Add(s.expiry),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.InsertInvitation(ctx, inv); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.metrics.Operation(opCreate, metrics.OutcomeRejected)
			return PublicInvitation{}, ErrPendingInvitationExists
		}
		s.metrics.Operation(opCreate, metrics.OutcomeFailed)
		return PublicInvitation{}, fmt.Errorf("failed to insert invitation: %w", err)
	}

	if err := s.send(ctx, inv, token.Raw, tenantName); err != nil {
		s.compensateCreate(ctx, inv)
		s.metrics.Operation(opCreate, metrics.OutcomeFailed)
		return PublicInvitation{}, err
	}

	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("tenant_id", inv.TenantID.String()).
		Str("token_prefix", inv.TokenPrefix).
		Str("role", string(inv.Role)).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invitation created")

	s.metrics.Operation(opCreate, metrics.OutcomeSuccess)
	return inv.Public(), nil
}

// compensateCreate removes the row inserted by a Create whose notification
// failed. It runs to completion even if the caller's context is cancelled.
func (s *Service) compensateCreate(ctx context.Context, inv *Invitation) {
	err := s.store.DeleteInvitation(context.WithoutCancel(ctx), inv.ID)
	s.metrics.Compensation(opCreate, err)
	if err != nil {
		log.Error().
			Err(err).
			Str("invitation_id", inv.ID.String()).
			Str("tenant_id", inv.TenantID.String()).
			Msg("Failed to delete invitation after notifier failure")
		return
	}

	log.Warn().
		Str("invitation_id", inv.ID.String()).
		Str("tenant_id", inv.TenantID.String()).
		Msg("Invitation rolled back after notifier failure")
}

// Accept validates rawToken and materializes the invitee's account. Unknown,
// already used and expired tokens all fail with ErrInvalidOrExpired.
func (s *Service) Accept(ctx context.Context, rawToken, password string) error {
	prefix, ok := TokenPrefix(rawToken)
	if !ok {
		s.metrics.Operation(opAccept, metrics.OutcomeRejected)
		return ErrInvalidOrExpired
	}
	if password == "" {
		s.metrics.Operation(opAccept, metrics.OutcomeRejected)
		return ErrInvalidPassword
	}

	candidates, err := s.store.FindPendingByPrefix(ctx, prefix)
	if err != nil {
		s.metrics.Operation(opAccept, metrics.OutcomeFailed)
		return fmt.Errorf("failed to load invitations: %w", err)
	}

	var matched *Invitation
	for i := range candidates {
		if VerifyToken(rawToken, candidates[i].TokenHash) {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		log.Debug().Str("token_prefix", prefix).Int("candidates", len(candidates)).Msg("Invitation token did not match")
		s.metrics.Operation(opAccept, metrics.OutcomeRejected)
		return ErrInvalidOrExpired
	}

	now := s.now().UTC()
	if matched.IsExpired(now) {
		s.markExpired(ctx, matched, now)
		s.metrics.Operation(opAccept, metrics.OutcomeRejected)
		return ErrInvalidOrExpired
	}

	if err := s.checkEmailGloballyUnique(ctx, matched.Email); err != nil {
		s.metrics.Operation(opAccept, outcomeFor(err))
		return err
	}

	passwordHash, err := auth.HashPasswordWithCost(password, s.passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			s.metrics.Operation(opAccept, metrics.OutcomeRejected)
			return ErrInvalidPassword
		}
		s.metrics.Operation(opAccept, metrics.OutcomeFailed)
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var accountID uuid.UUID
	err = s.store.WithTx(ctx, func(tx Tx) error {
		id, err := tx.CreateAccount(ctx, Account{
			ID:           uuid.New(),
			Email:        matched.Email,
			PasswordHash: passwordHash,
			Role:         matched.Role,
			TenantID:     matched.TenantID,
			Name:         matched.Name,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrEmailExists
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		accountID = id

		accepted := *matched
		accepted.Status = StatusAccepted
		accepted.UpdatedAt = now
		if err := tx.UpdatePending(ctx, &accepted, matched.TokenHash); err != nil {
			if errors.Is(err, store.ErrNotPending) {
				return ErrInvalidOrExpired
			}
			return fmt.Errorf("failed to mark invitation accepted: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.Operation(opAccept, outcomeFor(err))
		return err
	}

	log.Info().
		Str("invitation_id", matched.ID.String()).
		Str("tenant_id", matched.TenantID.String()).
		Str("account_id", accountID.String()).
		Str("role", string(matched.Role)).
		Msg("Invitation accepted")

	s.metrics.Operation(opAccept, metrics.OutcomeSuccess)
	return nil
}

// markExpired persists PENDING -> EXPIRED outside any transaction, only while
// the row still carries the expired token. Failures are logged only so the
// caller's error stays indistinguishable from an unknown token.
func (s *Service) markExpired(ctx context.Context, inv *Invitation, now time.Time) {
	expired := *inv
	expired.Status = StatusExpired
	expired.UpdatedAt = now

	err := s.store.UpdatePending(ctx, &expired, inv.TokenHash)
	switch {
	case err == nil:
		s.metrics.Expired(1)
		log.Info().
			Str("invitation_id", inv.ID.String()).
			Str("tenant_id", inv.TenantID.String()).
			Msg("Invitation expired on accept")
	case errors.Is(err, store.ErrNotPending):
		log.Debug().Str("invitation_id", inv.ID.String()).Msg("Invitation changed before expiry write")
	default:
		log.Error().Err(err).Str("invitation_id", inv.ID.String()).Msg("Failed to mark invitation expired")
	}
}

// Resend mints a fresh token for a PENDING invitation and sends it. The old
// token stops working as soon as the new hash is written. If the notifier
// fails the hash, prefix and expiry from before this call are restored.
func (s *Service) Resend(ctx context.Context, invitationID, tenantID uuid.UUID) (PublicInvitation, error) {
	inv, err := s.findInvitation(ctx, tenantID, invitationID)
	if err != nil {
		s.metrics.Operation(opResend, outcomeFor(err))
		return PublicInvitation{}, err
	}
	if inv.Status != StatusPending {
		s.metrics.Operation(opResend, metrics.OutcomeRejected)
		return PublicInvitation{}, ErrNotResendable
	}

	snapshot := *inv

	token, err := MintToken(s.tokenCost)
	if err != nil {
		s.metrics.Operation(opResend, metrics.OutcomeFailed)
		return PublicInvitation{}, err
	}

	now := s.now().UTC()
	inv.TokenHash = token.Hash
	inv.TokenPrefix = token.Prefix
	inv.ExpiresAt = now.Add(s.expiry)
	inv.UpdatedAt = now

	if err := s.store.UpdatePending(ctx, inv, AnyTokenHash); err != nil {
		if errors.Is(err, store.ErrNotPending) {
			s.metrics.Operation(opResend, metrics.OutcomeRejected)
			return PublicInvitation{}, ErrNotResendable
		}
		s.metrics.Operation(opResend, metrics.OutcomeFailed)
		return PublicInvitation{}, fmt.Errorf("failed to update invitation: %w", err)
	}

	tenantName := s.tenantDisplayName(ctx, inv.TenantID)
	if err := s.send(ctx, inv, token.Raw, tenantName); err != nil {
		s.compensateResend(ctx, &snapshot, token.Hash)
		s.metrics.Operation(opResend, metrics.OutcomeFailed)
		return PublicInvitation{}, err
	}

	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("tenant_id", inv.TenantID.String()).
		Str("token_prefix", inv.TokenPrefix).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invitation resent")

	s.metrics.Operation(opResend, metrics.OutcomeSuccess)
	return inv.Public(), nil
}

// compensateResend writes back the snapshot taken before the resend attempt,
// but only over the hash this attempt wrote. If another Resend, Accept or
// Revoke got there first the row is left alone.
func (s *Service) compensateResend(ctx context.Context, snapshot *Invitation, writtenHash string) {
	err := s.store.UpdatePending(context.WithoutCancel(ctx), snapshot, writtenHash)
	if errors.Is(err, store.ErrNotPending) {
		s.metrics.Compensation(opResend, nil)
		log.Info().
			Str("invitation_id", snapshot.ID.String()).
			Str("tenant_id", snapshot.TenantID.String()).
			Msg("Invitation moved on before restore, leaving it")
		return
	}
	s.metrics.Compensation(opResend, err)
	if err != nil {
		log.Error().
			Err(err).
			Str("invitation_id", snapshot.ID.String()).
			Str("tenant_id", snapshot.TenantID.String()).
			Msg("Failed to restore invitation token after notifier failure")
		return
	}

	log.Warn().
		Str("invitation_id", snapshot.ID.String()).
		Str("tenant_id", snapshot.TenantID.String()).
		Msg("Invitation token restored after notifier failure")
}

// Revoke moves a PENDING invitation to REVOKED.
func (s *Service) Revoke(ctx context.Context, invitationID, tenantID uuid.UUID) error {
	inv, err := s.findInvitation(ctx, tenantID, invitationID)
	if err != nil {
		s.metrics.Operation(opRevoke, outcomeFor(err))
		return err
	}
	if inv.Status != StatusPending {
		s.metrics.Operation(opRevoke, metrics.OutcomeRejected)
		return ErrNotRevocable
	}

	inv.Status = StatusRevoked
	inv.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePending(ctx, inv, AnyTokenHash); err != nil {
		if errors.Is(err, store.ErrNotPending) {
			s.metrics.Operation(opRevoke, metrics.OutcomeRejected)
			return ErrNotRevocable
		}
		s.metrics.Operation(opRevoke, metrics.OutcomeFailed)
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}

	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("tenant_id", inv.TenantID.String()).
		Msg("Invitation revoked")

	s.metrics.Operation(opRevoke, metrics.OutcomeSuccess)
	return nil
}

// Get returns one invitation of the tenant.
func (s *Service) Get(ctx context.Context, invitationID, tenantID uuid.UUID) (PublicInvitation, error) {
	inv, err := s.findInvitation(ctx, tenantID, invitationID)
	if err != nil {
		return PublicInvitation{}, err
	}
	return inv.Public(), nil
}

// List returns the tenant's invitations, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]PublicInvitation, error) {
	rows, err := s.store.ListInvitations(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	out := make([]PublicInvitation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Public())
	}
	return out, nil
}

// ExpireOverdue moves every PENDING invitation past its deadline to EXPIRED.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		s.metrics.Operation(opExpire, metrics.OutcomeFailed)
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	s.metrics.Expired(n)
	s.metrics.Operation(opExpire, metrics.OutcomeSuccess)
	return n, nil
}

func (s *Service) findInvitation(ctx context.Context, tenantID, invitationID uuid.UUID) (*Invitation, error) {
	inv, err := s.store.FindInvitation(ctx, tenantID, invitationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	return inv, nil
}

// send awaits the notifier. The returned error is the notifier's own.
func (s *Service) send(ctx context.Context, inv *Invitation, rawToken, tenantName string) error {
	started := time.Now()
	err := s.notifier.SendInvitation(ctx, Message{
		ToEmail:     inv.Email,
		RawToken:    rawToken,
		InviterName: inv.InviterName,
		TenantName:  tenantName,
		ExpiresAt:   inv.ExpiresAt,
	})
	s.metrics.NotifierCall(started, err)
	if err != nil {
		log.Warn().
			Err(err).
			Str("invitation_id", inv.ID.String()).
			Str("tenant_id", inv.TenantID.String()).
			Msg("Invitation notifier failed")
	}
	return err
}

// tenantDisplayName never fails; the name only decorates the email.
func (s *Service) tenantDisplayName(ctx context.Context, tenantID uuid.UUID) string {
	name, err := s.store.TenantName(ctx, tenantID)
	if err != nil || name == "" {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to resolve tenant name")
		}
		return FallbackTenantName
	}
	return name
}

func outcomeFor(err error) string {
	if apperrors.KindOf(err) != "" {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeFailed
}
