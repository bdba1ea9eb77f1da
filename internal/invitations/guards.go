package invitations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// checkEmailGloballyUnique rejects emails already owned by a user in any
// tenant. Accept runs it again because a user may have been created after
// the invitation was sent.
func (s *Service) checkEmailGloballyUnique(ctx context.Context, email string) error {
	exists, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return ErrEmailExists
	}
	return nil
}

// checkNoPendingInvitation rejects a second PENDING invitation for the same
// email in the same tenant. The store's unique index backs this up when two
// creates race.
func (s *Service) checkNoPendingInvitation(ctx context.Context, email string, tenantID uuid.UUID) error {
	pending, err := s.store.HasPendingInvitation(ctx, email, tenantID)
	if err != nil {
		return fmt.Errorf("failed to check pending invitations: %w", err)
	}
	if pending {
		return ErrPendingInvitationExists
	}
	return nil
}
