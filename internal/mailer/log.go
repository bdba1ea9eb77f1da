package mailer

import (
	"context"

	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/rs/zerolog/log"
)

// LogNotifier writes the accept link to the log instead of sending email.
// For local development only: the raw token ends up in the log.
type LogNotifier struct {
	BaseURL string
}

func (n LogNotifier) SendInvitation(_ context.Context, msg invitations.Message) error {
	log.Info().
		Str("to", msg.ToEmail).
		Str("tenant", msg.TenantName).
		Str("accept_url", AcceptURL(n.BaseURL, msg.RawToken)).
		Time("expires_at", msg.ExpiresAt).
		Msg("Invitation email (dev)")
	return nil
}

var _ invitations.Notifier = LogNotifier{}
