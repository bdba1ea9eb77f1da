package invitations

import "github.com/aliuyar1234/inviteguard/internal/apperrors"

var (
	ErrEmailExists             = apperrors.Conflict("email exists")
	ErrPendingInvitationExists = apperrors.Conflict("pending invitation exists")
	ErrInvitationNotFound      = apperrors.NotFound("invitation not found")
	ErrNotResendable           = apperrors.BadRequest("only pending invitations can be resent")
	ErrNotRevocable            = apperrors.BadRequest("only pending invitations can be revoked")
	ErrInvalidRole             = apperrors.BadRequest("invalid role")
	ErrInvalidStatus           = apperrors.BadRequest("invalid status")
	ErrInvalidPassword         = apperrors.BadRequest("invalid password")

	// ErrInvalidOrExpired is returned for unknown, malformed, already used and
	// expired tokens alike.
	ErrInvalidOrExpired = apperrors.BadRequest("invalid or expired invitation")
)
