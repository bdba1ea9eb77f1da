package invitations

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an invitation. Only PENDING is mutable.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusExpired  Status = "EXPIRED"
	StatusRevoked  Status = "REVOKED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// IsTerminal reports whether s can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusExpired || s == StatusRevoked
}

// ParseStatus parses a status filter value, case-insensitively.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Role is the role granted to the invitee on acceptance.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
	RoleViewer  Role = "viewer"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCreator, RoleViewer:
		return true
	}
	return false
}

// ParseRole converts a caller-supplied role string into a Role.
func ParseRole(value string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	if !r.IsValid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Invitation is a single invitation row.
type Invitation struct {
	ID          uuid.UUID `db:"id"`
	Email       string    `db:"email"`
	TenantID    uuid.UUID `db:"tenant_id"`
	Role        Role      `db:"role"`
	TokenHash   string    `db:"token_hash"`
	TokenPrefix string    `db:"token_prefix"`
	Status      Status    `db:"status"`
	InvitedBy   uuid.UUID `db:"invited_by"`
	InviterName string    `db:"inviter_name"`
	Name        string    `db:"name"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// IsExpired reports whether the invitation deadline has passed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Public returns the externally visible projection of the invitation.
func (i *Invitation) Public() PublicInvitation {
	return PublicInvitation{
		ID:          i.ID,
		Email:       i.Email,
		Role:        i.Role,
		Status:      i.Status,
		InvitedBy:   i.InvitedBy,
		InviterName: i.InviterName,
		ExpiresAt:   i.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:   i.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// PublicInvitation never carries the token hash, prefix or raw token.
type PublicInvitation struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	Status      Status    `json:"status"`
	InvitedBy   uuid.UUID `json:"invited_by"`
	InviterName string    `json:"inviter_name"`
	ExpiresAt   string    `json:"expires_at"`
	CreatedAt   string    `json:"created_at"`
}

// Account is the principal materialized when an invitation is accepted.
type Account struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	TenantID     uuid.UUID `db:"tenant_id"`
	Name         string    `db:"name"`
}

// ListFilter narrows ListInvitations results.
type ListFilter struct {
	Status *Status
}
